package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/auth"
	"ms-payments/internal/logger"
	"ms-payments/internal/sse"
)

// SSEHandler manages Server-Sent Events endpoints for payment events
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.PaymentEventEmitter
	Auth         auth.Authorizer
}

// NewSSEHandler creates a new SSE handler for payment events
func NewSSEHandler(log *logger.Logger, emitter *sse.PaymentEventEmitter) *SSEHandler {
	return &SSEHandler{
		Logger:       log,
		EventEmitter: emitter,
	}
}

// HandleShopPayments streams payment lifecycle events for a shop
func (h *SSEHandler) HandleShopPayments(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")
	if shopID == "" {
		http.Error(w, "Shop ID is required", http.StatusBadRequest)
		return
	}

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok || !h.Auth.CanOperateOn(actor, shopID) {
		h.Logger.Warn("SSE", fmt.Sprintf("Shop stream access denied for shop %s", shopID))
		http.Error(w, "Unauthorized access", http.StatusForbidden)
		return
	}

	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToShop(ctx, shopID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"shopId\":\"%s\"}\n\n", shopID)
	w.(http.Flusher).Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to payment events for shop: %s", shopID))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for shop: %s", shopID))
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize payment event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: payment\ndata: %s\n\n", jsonData)
			w.(http.Flusher).Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from payment events for shop: %s", shopID))
			return
		}
	}
}

// HandleOrderPayments streams payment lifecycle events for one order
func (h *SSEHandler) HandleOrderPayments(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToOrder(ctx, orderID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"orderId\":\"%s\"}\n\n", orderID)
	w.(http.Flusher).Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to payment events for order: %s", orderID))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for order: %s", orderID))
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize payment event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: payment\ndata: %s\n\n", jsonData)
			w.(http.Flusher).Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from payment events for order: %s", orderID))
			return
		}
	}
}

// Helper function to set up SSE headers
func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
