package promo

import (
	"context"
	"errors"
	"net/http"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	Active(ctx context.Context, code string) (*models.PromoCode, error)
	List(ctx context.Context) ([]*models.PromoCode, error)
	Create(ctx context.Context, p *models.PromoCode) error
	Update(ctx context.Context, p *models.PromoCode) error
	Delete(ctx context.Context, code string) error
}

type validateRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Subtotal *int   `json:"subtotal" validate:"omitempty,min=0"`
}

// ValidateResponse is advisory only. Checkout recomputes the discount itself.
type ValidateResponse struct {
	Valid         bool    `json:"valid"`
	Code          string  `json:"code,omitempty"`
	DiscountType  string  `json:"discountType,omitempty"`
	DiscountValue float64 `json:"discountValue,omitempty"`
	Discount      *int    `json:"discount,omitempty"`
}

type promoRequest struct {
	Code          string  `json:"code" validate:"required,max=64,alphanum"`
	DiscountType  string  `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue float64 `json:"discountValue" validate:"min=0,max=1000000"`
	Active        *bool   `json:"active"`
}

type Handler struct {
	repo     Repository
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewHandler(repo Repository, validate *validator.Validate, logger *logrus.Logger) *Handler {
	return &Handler{repo: repo, validate: validate, logger: logger}
}

// Validate never fails for unknown or inactive codes; it answers valid=false.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	code, err := h.repo.Active(r.Context(), req.Code)
	if errors.Is(err, ErrNotFound) {
		api.RespondWithJSON(w, http.StatusOK, ValidateResponse{Valid: false})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to look up promo code")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to validate promo code")
		return
	}

	resp := ValidateResponse{
		Valid:         true,
		Code:          code.Code,
		DiscountType:  code.DiscountType,
		DiscountValue: code.DiscountValue,
	}
	if req.Subtotal != nil {
		discount := Discount(*req.Subtotal, code)
		resp.Discount = &discount
	}
	api.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list promo codes")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load promo codes")
		return
	}
	if codes == nil {
		codes = []*models.PromoCode{}
	}
	api.RespondWithJSON(w, http.StatusOK, codes)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	code := req.promoCode()
	if err := h.repo.Create(r.Context(), code); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.WithField("promo_code", code.Code).Info("Promo code created")
	api.RespondWithJSON(w, http.StatusCreated, code)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	req.Code = mux.Vars(r)["code"]
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	code := req.promoCode()
	code.Code = mux.Vars(r)["code"]
	if err := h.repo.Update(r.Context(), code); err != nil {
		h.writeStoreError(w, err)
		return
	}
	api.RespondWithJSON(w, http.StatusOK, code)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), mux.Vars(r)["code"]); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.RespondWithCode(w, http.StatusNotFound, api.CodeNotFound, "Promo code not found", nil)
	case database.IsUniqueViolation(err):
		api.RespondWithCode(w, http.StatusConflict, api.CodeConflict, "Promo code already exists", nil)
	default:
		h.logger.WithError(err).Error("Promo code write failed")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to save promo code")
	}
}

func (req promoRequest) promoCode() *models.PromoCode {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.PromoCode{
		Code:          Normalize(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		Active:        active,
	}
}
