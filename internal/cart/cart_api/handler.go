package cart_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/cart"
	"ms-storefront/internal/catalog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CartStore interface {
	Load(ctx context.Context, sessionID string) (*cart.Cart, error)
	Save(ctx context.Context, sessionID string, c *cart.Cart) error
}

type Handler struct {
	Store   CartStore
	Catalog cart.Lookup
	Logger  *logger.Logger
}

func NewHandler(store CartStore, lookup cart.Lookup, log *logger.Logger) *Handler {
	return &Handler{Store: store, Catalog: lookup, Logger: log}
}

// RegisterRoutes mounts the cart routes. r must run cart.SessionMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/add", h.AddToCart)
		r.Post("/remove", h.RemoveFromCart)
		r.Post("/update", h.UpdateQuantity)
		r.Post("/clear", h.ClearCart)
	})
}

type CartResponse struct {
	Status  string                     `json:"status"`
	Message string                     `json:"message,omitempty"`
	Count   int                        `json:"count"`
	Cart    map[string]models.CartLine `json:"cart"`
	Summary cart.Summary               `json:"cart_summary"`
}

type AddRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=999"`
}

type RemoveRequest struct {
	SKU string `json:"sku" validate:"required"`
}

type UpdateRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=999"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	h.respond(w, c, "")
}

// AddToCart handles POST /api/cart/add
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid add to cart request", err)
		return
	}
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := c.Add(r.Context(), h.Catalog, req.SKU, req.Quantity); err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			utils.WriteError(w, http.StatusNotFound, fmt.Sprintf("Product with SKU '%s' not found", req.SKU), nil)
		default:
			h.Logger.Error("CART", fmt.Sprintf("Add %s failed: %v", req.SKU, err))
			utils.WriteError(w, http.StatusInternalServerError, "Failed to add product", nil)
		}
		return
	}
	if !h.save(w, r, c) {
		return
	}
	h.Logger.LogCart("ADD", cart.SessionID(r.Context()), fmt.Sprintf("%s x%d", req.SKU, req.Quantity))
	h.respond(w, c, "")
}

// RemoveFromCart handles POST /api/cart/remove
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req RemoveRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid remove request", err)
		return
	}
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	result := c.Remove(req.SKU)
	if !result.Removed {
		utils.WriteError(w, http.StatusNotFound, result.Message, nil)
		return
	}
	if !h.save(w, r, c) {
		return
	}
	h.Logger.LogCart("REMOVE", cart.SessionID(r.Context()), req.SKU)
	h.respond(w, c, result.Message)
}

// UpdateQuantity handles POST /api/cart/update
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid update request", err)
		return
	}
	c, ok := h.load(w, r)
	if !ok {
		return
	}

	if !c.UpdateQuantity(req.SKU, req.Quantity) {
		utils.WriteError(w, http.StatusBadRequest, fmt.Sprintf("product '%s' doesn't exist", req.SKU), nil)
		return
	}
	if !h.save(w, r, c) {
		return
	}
	h.respond(w, c, fmt.Sprintf("Quantity of %q updated successfully", req.SKU))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	c.Clear()
	if !h.save(w, r, c) {
		return
	}
	h.Logger.LogCart("CLEAR", cart.SessionID(r.Context()), "cart cleared")
	h.respond(w, c, "Cart cleared")
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	sessionID := cart.SessionID(r.Context())
	if sessionID == "" {
		utils.WriteError(w, http.StatusBadRequest, "Missing cart session", nil)
		return nil, false
	}
	c, err := h.Store.Load(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error("CART", fmt.Sprintf("Load cart %s failed: %v", sessionID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load cart", nil)
		return nil, false
	}
	return c, true
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, c *cart.Cart) bool {
	sessionID := cart.SessionID(r.Context())
	if err := h.Store.Save(r.Context(), sessionID, c); err != nil {
		h.Logger.Error("CART", fmt.Sprintf("Save cart %s failed: %v", sessionID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to save cart", nil)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, c *cart.Cart, message string) {
	summary := c.Summary()
	utils.WriteJSON(w, http.StatusOK, CartResponse{
		Status:  "success",
		Message: message,
		Count:   summary.DistinctCount,
		Cart:    c.Lines,
		Summary: summary,
	})
}
