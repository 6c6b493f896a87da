package order_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/checkout/checkout_api"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/receipt"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrderStore interface {
	ListUserOrders(ctx context.Context, userID string) ([]models.OrderSummary, error)
	RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error)
}

type ReceiptBuilder interface {
	Build(ctx context.Context, orderNumber, userID string) (*receipt.Receipt, error)
}

type UserEvents interface {
	SubscribeToUser(ctx context.Context, userID string) <-chan models.OrderEvent
}

type Handler struct {
	Orders   OrderStore
	Receipts ReceiptBuilder
	Events   UserEvents
	Logger   *logger.Logger
}

func NewHandler(orders OrderStore, receipts ReceiptBuilder, events UserEvents, log *logger.Logger) *Handler {
	return &Handler{Orders: orders, Receipts: receipts, Events: events, Logger: log}
}

// RegisterRoutes mounts the order history routes. r must run the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/events", h.StreamUserEvents)
		r.Get("/{orderNumber}", h.GetOrder)
		r.Get("/{orderNumber}/receipt", h.GetReceipt)
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	orders, err := h.Orders.ListUserOrders(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: user=%s: %v", userID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to retrieve orders", nil)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("ListOrders: found %d orders for user %s", len(orders), userID))
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"count":  len(orders),
		"orders": orders,
	})
}

// GetOrder returns one order with items, payment and shipping address.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	order, err := h.Orders.RetrieveUserOrder(r.Context(), orderNumber, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "Order unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// GetReceipt renders the receipt of an order with its QR code.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	rec, err := h.Receipts.Build(r.Context(), orderNumber, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "Receipt unavailable", err)
		return
	}
	h.Logger.LogOrder("RECEIPT", orderNumber, "receipt generated")
	utils.WriteJSON(w, http.StatusOK, rec)
}

// StreamUserEvents streams status events of every order placed by the caller.
func (h *Handler) StreamUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	checkout_api.SetupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.Events.SubscribeToUser(ctx, userID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"user_id\":%q}\n\n", userID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to order events for user %s", userID))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := checkout_api.WriteEvent(w, event); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize order event: %v", err))
				continue
			}
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from user events: %s", userID))
			return
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	var notFound *orderdb.OrderNotFoundError
	switch {
	case errors.As(err, &notFound):
		utils.WriteError(w, http.StatusNotFound, message, err)
	case errors.Is(err, orderdb.ErrPermissionDenied):
		utils.WriteError(w, http.StatusForbidden, message, err)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
		utils.WriteError(w, http.StatusInternalServerError, message, nil)
	}
}
