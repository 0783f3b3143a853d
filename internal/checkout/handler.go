package checkout

import (
	"errors"
	"net/http"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Client-sent prices and discounts are accepted for compatibility and ignored.
type cartItemRequest struct {
	ID          string   `json:"id" validate:"required_without=Name,max=200"`
	Name        string   `json:"name" validate:"max=200"`
	Quantity    int      `json:"quantity" validate:"required,min=1,max=1000"`
	Price       *float64 `json:"price,omitempty"`
	CustomNotes string   `json:"customNotes" validate:"max=2000"`
}

type prepareRequest struct {
	Items          []cartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	PromoCode      string            `json:"promoCode" validate:"max=64"`
	DiscountAmount *float64          `json:"discountAmount,omitempty"`
}

type completeRequest struct {
	PaymentIntentID     string            `json:"paymentIntentId" validate:"required,max=255"`
	CustomerName        string            `json:"customerName" validate:"required,max=200"`
	CustomerEmail       string            `json:"customerEmail" validate:"required,email,max=254"`
	CustomerPhone       string            `json:"customerPhone" validate:"max=50"`
	DeliveryAddress     string            `json:"deliveryAddress" validate:"max=500"`
	SpecialInstructions string            `json:"specialInstructions" validate:"max=2000"`
	Items               []cartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type freeOrderRequest struct {
	PromoCode           string            `json:"promoCode" validate:"max=64"`
	CustomerName        string            `json:"customerName" validate:"required,max=200"`
	CustomerEmail       string            `json:"customerEmail" validate:"required,email,max=254"`
	CustomerPhone       string            `json:"customerPhone" validate:"max=50"`
	DeliveryAddress     string            `json:"deliveryAddress" validate:"max=500"`
	SpecialInstructions string            `json:"specialInstructions" validate:"max=2000"`
	Items               []cartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type PrepareResponse struct {
	SkipPayment     bool              `json:"skipPayment"`
	ClientSecret    string            `json:"clientSecret,omitempty"`
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	ValidatedTotal  int               `json:"validatedTotal"`
	ValidatedItems  []models.LineItem `json:"validatedItems"`
	Subtotal        int               `json:"subtotal"`
	Discount        int               `json:"discount"`
	PromoCode       string            `json:"promoCode,omitempty"`
}

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewHandler(service *Service, validate *validator.Validate, logger *logrus.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

func (h *Handler) PreparePayment(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if !h.bind(w, r, &req) {
		return
	}

	prep, err := h.service.PreparePayment(r.Context(), cartLines(req.Items), req.PromoCode)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	api.RespondWithJSON(w, http.StatusOK, prepareResponse(prep))
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !h.bind(w, r, &req) {
		return
	}

	customer := Customer{
		Name:                req.CustomerName,
		Email:               req.CustomerEmail,
		Phone:               req.CustomerPhone,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
	}
	order, err := h.service.CompleteOrder(r.Context(), req.PaymentIntentID, customer, cartLines(req.Items))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	api.RespondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order confirmed",
		Order:   order,
	})
}

func (h *Handler) SubmitFreeOrder(w http.ResponseWriter, r *http.Request) {
	var req freeOrderRequest
	if !h.bind(w, r, &req) {
		return
	}

	customer := Customer{
		Name:                req.CustomerName,
		Email:               req.CustomerEmail,
		Phone:               req.CustomerPhone,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
	}
	order, err := h.service.SubmitFreeOrder(r.Context(), customer, cartLines(req.Items), req.PromoCode)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	api.RespondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Request received",
		Order:   order,
	})
}

func (h *Handler) PayQuote(w http.ResponseWriter, r *http.Request) {
	prep, err := h.service.PrepareQuotePayment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	api.RespondWithJSON(w, http.StatusOK, prepareResponse(prep))
}

func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	confirmation, err := h.service.Confirmation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	api.RespondWithJSON(w, http.StatusOK, confirmation)
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	return api.BindOrReject(w, r, h.validate, out)
}

func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	var ce *Error
	if errors.As(err, &ce) {
		api.RespondWithCode(w, ce.HTTPStatus(), string(ce.Code), ce.Message, ce.Fields)
		return
	}

	h.logger.WithError(err).Error("Checkout request failed")
	api.RespondWithError(w, http.StatusInternalServerError, "Failed to process checkout")
}

func cartLines(items []cartItemRequest) []catalog.CartLine {
	lines := make([]catalog.CartLine, len(items))
	for i, item := range items {
		lines[i] = catalog.CartLine{
			ID:          item.ID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			CustomNotes: item.CustomNotes,
		}
	}
	return lines
}

func prepareResponse(prep *Preparation) PrepareResponse {
	return PrepareResponse{
		SkipPayment:     prep.SkipPayment,
		ClientSecret:    prep.ClientSecret,
		PaymentIntentID: prep.PaymentIntentID,
		ValidatedTotal:  prep.Total,
		ValidatedItems:  prep.Items,
		Subtotal:        prep.Subtotal,
		Discount:        prep.Discount,
		PromoCode:       prep.PromoCode,
	}
}
