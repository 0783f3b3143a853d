package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/notify"
	"github.com/diamonddulceria/storefront/internal/orders"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type OrderStore interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, statuses ...string) ([]*models.Order, error)
	SetStatus(ctx context.Context, id, status string) (string, error)
	UpdateNotes(ctx context.Context, id string, notes *string) error
	UpdateQuote(ctx context.Context, id string, quotedPrice *int, quoteStatus *string, notifications []models.Notification) error
	Notify(ctx context.Context, id string, notifications []models.Notification) error
	Delete(ctx context.Context, id string) error
}

type EventPublisher interface {
	Broadcast(messageType string, data interface{}, source string)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid ready completed cancelled"`
}

type notesRequest struct {
	AdminNotes *string `json:"adminNotes" validate:"omitempty,max=5000"`
}

type quoteRequest struct {
	QuotedPrice *int    `json:"quotedPrice" validate:"omitempty,min=0"`
	QuoteStatus *string `json:"quoteStatus" validate:"omitempty,oneof=quoted accepted declined"`
}

type contactRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=10000"`
}

type Handler struct {
	auth     *Authenticator
	orders   OrderStore
	events   EventPublisher
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewHandler(auth *Authenticator, store OrderStore, validate *validator.Validate, logger *logrus.Logger) *Handler {
	return &Handler{auth: auth, orders: store, validate: validate, logger: logger}
}

func (h *Handler) SetEventPublisher(events EventPublisher) {
	h.events = events
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	token, expiresAt, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.logger.WithField("email", req.Email).Warn("Failed admin login")
		api.RespondWithCode(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Admin login failed")
		api.RespondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	api.RespondWithJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt.UTC().Format(timeLayout)})
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if !orders.ValidStatus(s) {
				api.RespondWithCode(w, http.StatusBadRequest, api.CodeValidation, "Unknown status "+s,
					map[string]string{"status": "must be one of: pending paid ready completed cancelled"})
				return
			}
			statuses = append(statuses, s)
		}
	}

	list, err := h.orders.List(r.Context(), statuses...)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load orders")
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	api.RespondWithJSON(w, http.StatusOK, list)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	api.RespondWithJSON(w, http.StatusOK, order)
}

// UpdateStatus lets an admin set any known status regardless of the current one.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	previous, err := h.orders.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":        id,
		"previous_status": previous,
		"status":          req.Status,
		"admin":           AdminEmail(r.Context()),
	}).Info("Order status changed by admin")

	h.publish("order_status_changed", map[string]interface{}{
		"order":           order,
		"previous_status": previous,
	})
	api.RespondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.orders.UpdateNotes(r.Context(), id, req.AdminNotes); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.respondWithOrder(w, r, id)
}

// UpdateQuote records a price for a custom order. Moving it to "quoted" emails the customer.
func (h *Handler) UpdateQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	var notifications []models.Notification
	if req.QuoteStatus != nil && *req.QuoteStatus == models.QuoteStatusQuoted {
		if req.QuotedPrice == nil || *req.QuotedPrice <= 0 {
			api.RespondWithCode(w, http.StatusBadRequest, api.CodeValidation, "A quote needs a price",
				map[string]string{"quotedPrice": "is required when quoteStatus is quoted"})
			return
		}
		notifications = append(notifications, notify.ForQuote(order, *req.QuotedPrice))
	}

	if err := h.orders.UpdateQuote(r.Context(), order.ID, req.QuotedPrice, req.QuoteStatus, notifications); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"quoted_price": req.QuotedPrice,
		"quote_status": req.QuoteStatus,
		"emailed":      len(notifications) > 0,
	}).Info("Order quote updated")
	h.respondWithOrder(w, r, order.ID)
}

func (h *Handler) ContactCustomer(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	n := notify.ForMessage(order, req.Subject, req.Message)
	if err := h.orders.Notify(r.Context(), order.ID, []models.Notification{n}); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to queue customer message")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to queue message")
		return
	}

	api.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Message queued",
	})
}

// DeleteOrder removes an order in any status.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.orders.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{"order_id": id, "admin": AdminEmail(r.Context())}).Info("Order deleted")
	h.publish("order_deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	order, err := h.orders.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, err)
		return nil, false
	}
	return order, true
}

func (h *Handler) respondWithOrder(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	api.RespondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, orders.ErrNotFound) {
		api.RespondWithCode(w, http.StatusNotFound, api.CodeNotFound, "Order not found", nil)
		return
	}
	h.logger.WithError(err).Error("Order store operation failed")
	api.RespondWithError(w, http.StatusInternalServerError, "Failed to process order")
}

func (h *Handler) publish(messageType string, data interface{}) {
	if h.events != nil {
		h.events.Broadcast(messageType, data, "admin")
	}
}
