package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type memoryRepo map[string]string

func (m memoryRepo) All(ctx context.Context) (map[string]string, error) {
	return m, nil
}

func (m memoryRepo) Put(ctx context.Context, key, value string) (*models.Setting, error) {
	m[key] = value
	return &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}, nil
}

func (m memoryRepo) Delete(ctx context.Context, key string) error {
	if _, ok := m[key]; !ok {
		return ErrNotFound
	}
	delete(m, key)
	return nil
}

func TestSettingsHandler(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	repo := memoryRepo{"hero_title": "Sweet things"}
	h := NewHandler(repo, api.NewValidator(), logger)

	router := mux.NewRouter()
	router.HandleFunc("/settings", h.List).Methods("GET")
	router.HandleFunc("/admin/settings/{key}", h.Put).Methods("PUT")
	router.HandleFunc("/admin/settings/{key}", h.Delete).Methods("DELETE")

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
		return rr
	}

	rr := do("PUT", "/admin/settings/footer_note", `{"value":"Closed Mondays"}`)
	if rr.Code != http.StatusOK || repo["footer_note"] != "Closed Mondays" {
		t.Fatalf("put: got %d, repo %v", rr.Code, repo)
	}

	rr = do("GET", "/settings", "")
	var values map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &values); err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values["hero_title"] != "Sweet things" {
		t.Errorf("Unexpected settings: %v", values)
	}

	if rr = do("DELETE", "/admin/settings/footer_note", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", rr.Code)
	}
	if rr = do("DELETE", "/admin/settings/footer_note", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rr.Code)
	}
}
