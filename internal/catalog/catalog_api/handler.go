package catalog_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/catalog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CatalogService interface {
	FilterByCategory(ctx context.Context, category string) ([]catalog.ProductCard, error)
	Detail(ctx context.Context, sku string) (*catalog.ProductDetail, error)
	Categories(ctx context.Context) ([]models.Category, error)
}

type Handler struct {
	Service CatalogService
	Logger  *logger.Logger
}

func NewHandler(service CatalogService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/products", h.ListProducts)
	r.Get("/api/products/{sku}", h.GetProduct)
	r.Get("/api/categories", h.ListCategories)
}

// ListProducts handles GET /api/products?category=All|<name>
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = "All"
	}

	cards, err := h.Service.FilterByCategory(r.Context(), category)
	if err != nil {
		h.fail(w, "Failed to list products", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"count":    len(cards),
		"products": cards,
	})
}

// GetProduct handles GET /api/products/{sku}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	detail, err := h.Service.Detail(r.Context(), sku)
	if err != nil {
		h.fail(w, "Failed to load product", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		h.fail(w, "Failed to list categories", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrCategoryNotFound):
		utils.WriteError(w, http.StatusNotFound, message, err)
	default:
		h.Logger.Error("CATALOG", fmt.Sprintf("%s: %v", message, err))
		utils.WriteError(w, http.StatusInternalServerError, message, nil)
	}
}
