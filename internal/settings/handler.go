package settings

import (
	"context"
	"errors"
	"net/http"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	All(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, key, value string) (*models.Setting, error)
	Delete(ctx context.Context, key string) error
}

type putRequest struct {
	Key   string `json:"-" validate:"required,max=128"`
	Value string `json:"value" validate:"max=20000"`
}

type Handler struct {
	repo     Repository
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewHandler(repo Repository, validate *validator.Validate, logger *logrus.Logger) *Handler {
	return &Handler{repo: repo, validate: validate, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	values, err := h.repo.All(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load settings")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, values)
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	req := putRequest{Key: mux.Vars(r)["key"]}
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	setting, err := h.repo.Put(r.Context(), req.Key, req.Value)
	if err != nil {
		h.logger.WithError(err).WithField("key", req.Key).Error("Failed to save setting")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, setting)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.repo.Delete(r.Context(), mux.Vars(r)["key"])
	if errors.Is(err, ErrNotFound) {
		api.RespondWithCode(w, http.StatusNotFound, api.CodeNotFound, "Setting not found", nil)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete setting")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
