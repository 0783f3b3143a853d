package catalog

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	ProductSource
	ListProducts(ctx context.Context, categoryID string, includeInactive bool) ([]*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type productRequest struct {
	ID          string  `json:"id" validate:"omitempty,max=128"`
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=5000"`
	Price       int     `json:"price" validate:"min=0"`
	CategoryID  *string `json:"categoryId" validate:"omitempty,max=64"`
	ImageURL    string  `json:"imageUrl" validate:"omitempty,max=2048"`
	Active      *bool   `json:"active"`
	IsCustom    bool    `json:"isCustom"`
	SortOrder   int     `json:"sortOrder"`
}

type categoryRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,max=255"`
	Slug      string `json:"slug" validate:"omitempty,max=255"`
	SortOrder int    `json:"sortOrder"`
}

type Handler struct {
	repo     Repository
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewHandler(repo Repository, validate *validator.Validate, logger *logrus.Logger) *Handler {
	return &Handler{repo: repo, validate: validate, logger: logger}
}

// ListProducts serves the public catalog. Inactive products are hidden.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, false)
}

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, true)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	products, err := h.repo.ListProducts(r.Context(), r.URL.Query().Get("category"), includeInactive)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load products")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	api.RespondWithJSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.repo.FindByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrProductNotFound) || err == nil && !product.Active {
		api.RespondWithCode(w, http.StatusNotFound, api.CodeNotFound, "Product not found", nil)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load product")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load product")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	product := req.product()
	if product.ID == "" {
		product.ID = Slugify(product.Name)
	}
	if product.ID == "" {
		api.RespondWithCode(w, http.StatusBadRequest, api.CodeValidation, "Product id could not be derived from name",
			map[string]string{"id": "is required"})
		return
	}

	if err := h.repo.CreateProduct(r.Context(), product); err != nil {
		h.writeStoreError(w, err, "product")
		return
	}

	h.logger.WithField("product_id", product.ID).Info("Product created")
	api.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	product := req.product()
	product.ID = mux.Vars(r)["id"]
	if err := h.repo.UpdateProduct(r.Context(), product); err != nil {
		h.writeStoreError(w, err, "product")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.DeleteProduct(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "product")
		return
	}
	h.logger.WithField("product_id", id).Info("Product deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list categories")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to load categories")
		return
	}
	if categories == nil {
		categories = []*models.Category{}
	}
	api.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	category := req.category()
	if category.ID == "" {
		category.ID = category.Slug
	}
	if err := h.repo.CreateCategory(r.Context(), category); err != nil {
		h.writeStoreError(w, err, "category")
		return
	}
	api.RespondWithJSON(w, http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !api.BindOrReject(w, r, h.validate, &req) {
		return
	}

	category := req.category()
	category.ID = mux.Vars(r)["id"]
	if err := h.repo.UpdateCategory(r.Context(), category); err != nil {
		h.writeStoreError(w, err, "category")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, category)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeStoreError(w, err, "category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, kind string) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrCategoryNotFound):
		api.RespondWithCode(w, http.StatusNotFound, api.CodeNotFound, strings.ToUpper(kind[:1])+kind[1:]+" not found", nil)
	case errors.Is(err, ErrCategoryInUse):
		api.RespondWithCode(w, http.StatusConflict, api.CodeConflict, "Category still has products", nil)
	case database.IsUniqueViolation(err):
		api.RespondWithCode(w, http.StatusConflict, api.CodeConflict, "A "+kind+" with this id already exists", nil)
	default:
		h.logger.WithError(err).WithField("kind", kind).Error("Catalog write failed")
		api.RespondWithError(w, http.StatusInternalServerError, "Failed to save "+kind)
	}
}

func (req productRequest) product() *models.Product {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.Product{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		Active:      active,
		IsCustom:    req.IsCustom,
		SortOrder:   req.SortOrder,
	}
}

func (req categoryRequest) category() *models.Category {
	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
	}
	return &models.Category{
		ID:        strings.TrimSpace(req.ID),
		Name:      strings.TrimSpace(req.Name),
		Slug:      slug,
		SortOrder: req.SortOrder,
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns "Dubai Chocolate Bar" into "dubai-chocolate-bar".
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
