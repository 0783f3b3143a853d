package payments

import (
	"net/http"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/sirupsen/logrus"
)

// BreakerHandler exposes the processor circuit breaker to admins.
type BreakerHandler struct {
	guard  *Guarded
	logger *logrus.Logger
}

func NewBreakerHandler(guard *Guarded, logger *logrus.Logger) *BreakerHandler {
	return &BreakerHandler{guard: guard, logger: logger}
}

func (h *BreakerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.guard == nil {
		api.RespondWithJSON(w, http.StatusOK, map[string]string{"state": "disabled"})
		return
	}
	api.RespondWithJSON(w, http.StatusOK, h.guard.Metrics())
}

func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if h.guard == nil {
		api.RespondWithCode(w, http.StatusConflict, api.CodeConflict, "payments are disabled", nil)
		return
	}
	h.guard.Reset()
	h.logger.Warn("Payment processor circuit breaker reset by admin")
	api.RespondWithJSON(w, http.StatusOK, h.guard.Metrics())
}
