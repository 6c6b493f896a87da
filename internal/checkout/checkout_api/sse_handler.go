package checkout_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

// StreamOrderEvents streams status events of one order owned by the caller
func (h *Handler) StreamOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	userID := auth.UserID(r.Context())

	order, err := h.Orders.RetrieveUserOrder(r.Context(), orderNumber, userID)
	if err != nil {
		h.writeError(w, "Order events unavailable", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	SetupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.Events.SubscribeToOrder(ctx, orderNumber)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":%q,\"order_number\":%q}\n\n", order.Status, orderNumber)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to order events for %s", orderNumber))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for order: %s", orderNumber))
				return
			}
			if err := WriteEvent(w, event); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize order event: %v", err))
				continue
			}
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from order events for: %s", orderNumber))
			return
		}
	}
}

// WriteEvent writes one order event as an SSE frame named after its type.
func WriteEvent(w http.ResponseWriter, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
