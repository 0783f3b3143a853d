package reconcile

import (
	"net/http"
	"strings"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	analyzer *Analyzer
	logger   *logrus.Logger
}

func NewHandler(analyzer *Analyzer, logger *logrus.Logger) *Handler {
	return &Handler{analyzer: analyzer, logger: logger}
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.analyzer.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Reconciliation failed")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to build reconciliation report")
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		api.RespondWithJSON(w, http.StatusOK, report)
	case "summary":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(Summary(report)))
	default:
		api.RespondWithCode(w, http.StatusBadRequest, api.CodeValidation, "unsupported format", nil)
	}
}
