package kafka

import (
	"context"
	"fmt"

	"ms-payments/internal/ledger"
	"ms-payments/internal/models"
)

type LedgerService interface {
	Get(ctx context.Context, orderID string) ([]models.Payment, error)
	Apply(ctx context.Context, paymentID string, tr ledger.Transition) (*models.Payment, error)
}

type OrderStore interface {
	UpdateOrderStatus(ctx context.Context, id, status string) error
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// OrderEventHandler reacts to upstream order lifecycle events. When the
// order service cancels an order, every payment that has not captured
// funds is canceled with it. Captured payments stay put; returning money
// is a deliberate refund, never a side effect of a bus message.
type OrderEventHandler struct {
	Ledger LedgerService
	Orders OrderStore
	Log    Logger
}

func NewOrderEventHandler(ledgerSvc LedgerService, orders OrderStore, log Logger) *OrderEventHandler {
	return &OrderEventHandler{Ledger: ledgerSvc, Orders: orders, Log: log}
}

func (h *OrderEventHandler) Handle(event models.OrderEvent) {
	if event.Type != models.EventOrderCancelled {
		return
	}

	ctx := context.Background()

	// Mark the read model first so the balance guard knows the order is
	// being torn down and lets the cancels through.
	if err := h.Orders.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusCancelled); err != nil {
		h.Log.Error("KAFKA", fmt.Sprintf("Failed to mark order %s cancelled: %v", event.OrderID, err))
		return
	}

	payments, err := h.Ledger.Get(ctx, event.OrderID)
	if err != nil {
		h.Log.Error("KAFKA", fmt.Sprintf("Failed to load payments for cancelled order %s: %v", event.OrderID, err))
		return
	}

	for _, p := range payments {
		if p.Status != models.StatusCreated && p.Status != models.StatusApproved {
			continue
		}
		if _, err := h.Ledger.Apply(ctx, p.PaymentID, ledger.Transition{Kind: ledger.TransitionCancel}); err != nil {
			h.Log.Warn("KAFKA", fmt.Sprintf("Failed to cancel payment %s for order %s: %v", p.PaymentID, event.OrderID, err))
			continue
		}
		h.Log.Info("KAFKA", fmt.Sprintf("Canceled payment %s after order %s was cancelled", p.PaymentID, event.OrderID))
	}
}
