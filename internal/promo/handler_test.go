package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type memoryRepo map[string]*models.PromoCode

func (m memoryRepo) Active(ctx context.Context, code string) (*models.PromoCode, error) {
	p, ok := m[Normalize(code)]
	if !ok || !p.Active {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m memoryRepo) List(ctx context.Context) ([]*models.PromoCode, error) {
	var out []*models.PromoCode
	for _, p := range m {
		out = append(out, p)
	}
	return out, nil
}

func (m memoryRepo) Create(ctx context.Context, p *models.PromoCode) error {
	if _, ok := m[p.Code]; ok {
		return &pq.Error{Code: "23505"}
	}
	m[p.Code] = p
	return nil
}

func (m memoryRepo) Update(ctx context.Context, p *models.PromoCode) error {
	if _, ok := m[Normalize(p.Code)]; !ok {
		return ErrNotFound
	}
	m[Normalize(p.Code)] = p
	return nil
}

func (m memoryRepo) Delete(ctx context.Context, code string) error {
	if _, ok := m[Normalize(code)]; !ok {
		return ErrNotFound
	}
	delete(m, Normalize(code))
	return nil
}

func newPromoRouter(repo Repository) *mux.Router {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	h := NewHandler(repo, api.NewValidator(), logger)

	router := mux.NewRouter()
	router.HandleFunc("/promo/validate", h.Validate).Methods("POST")
	router.HandleFunc("/admin/promo-codes", h.List).Methods("GET")
	router.HandleFunc("/admin/promo-codes", h.Create).Methods("POST")
	router.HandleFunc("/admin/promo-codes/{code}", h.Update).Methods("PUT")
	router.HandleFunc("/admin/promo-codes/{code}", h.Delete).Methods("DELETE")
	return router
}

func post(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestValidateHandler(t *testing.T) {
	repo := memoryRepo{
		"SWEET10": {Code: "SWEET10", DiscountType: models.DiscountPercentage, DiscountValue: 10, Active: true},
		"OLD":     {Code: "OLD", DiscountType: models.DiscountFixed, DiscountValue: 5, Active: false},
	}
	router := newPromoRouter(repo)

	tests := []struct {
		name         string
		body         string
		wantValid    bool
		wantDiscount *int
	}{
		{"active_code_any_case", `{"code":"sweet10"}`, true, nil},
		{"with_subtotal", `{"code":"SWEET10","subtotal":120}`, true, intPtr(12)},
		{"inactive_code", `{"code":"OLD"}`, false, nil},
		{"unknown_code", `{"code":"NOPE"}`, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(router, "POST", "/promo/validate", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", rr.Code)
			}
			var resp ValidateResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", resp.Valid, tt.wantValid)
			}
			if tt.wantDiscount != nil && (resp.Discount == nil || *resp.Discount != *tt.wantDiscount) {
				t.Errorf("Discount = %v, want %d", resp.Discount, *tt.wantDiscount)
			}
		})
	}

	if rr := post(router, "POST", "/promo/validate", `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Missing code: got %d, want 400", rr.Code)
	}
}

func intPtr(v int) *int { return &v }

func TestPromoAdminCRUD(t *testing.T) {
	repo := memoryRepo{}
	router := newPromoRouter(repo)

	rr := post(router, "POST", "/admin/promo-codes", `{"code":"spring5","discountType":"fixed","discountValue":5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rr.Code, rr.Body.String())
	}
	if p, ok := repo["SPRING5"]; !ok || !p.Active {
		t.Fatalf("Expected normalized active code, got %v", repo)
	}

	rr = post(router, "POST", "/admin/promo-codes", `{"code":"SPRING5","discountType":"fixed","discountValue":5}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d, want 409", rr.Code)
	}

	rr = post(router, "POST", "/admin/promo-codes", `{"code":"BOGO","discountType":"bogo","discountValue":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad type: got %d, want 400", rr.Code)
	}

	rr = post(router, "POST", "/admin/promo-codes", `{"code":"HUGE","discountType":"fixed","discountValue":1e20}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("oversized value: got %d, want 400", rr.Code)
	}

	rr = post(router, "PUT", "/admin/promo-codes/spring5", `{"discountType":"percentage","discountValue":15,"active":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: got %d (%s)", rr.Code, rr.Body.String())
	}
	if p := repo["SPRING5"]; p.Active || p.DiscountType != models.DiscountPercentage {
		t.Errorf("Update not applied: %+v", p)
	}

	if rr = post(router, "DELETE", "/admin/promo-codes/spring5", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", rr.Code)
	}
	if rr = post(router, "DELETE", "/admin/promo-codes/spring5", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rr.Code)
	}
}
