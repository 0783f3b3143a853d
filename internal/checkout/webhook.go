package checkout

import (
	"io"
	"net/http"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/sirupsen/logrus"
)

const maxWebhookBytes = 64 << 10

type WebhookHandler struct {
	verifier *payments.WebhookVerifier
	service  *Service
	logger   *logrus.Logger
}

func NewWebhookHandler(verifier *payments.WebhookVerifier, service *Service, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, service: service, logger: logger}
}

// ServeHTTP acknowledges verified events. A 500 makes the processor redeliver.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.WithError(err).Warn("Rejected webhook")
		api.RespondWithError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Error("Failed to apply webhook event")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	api.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
