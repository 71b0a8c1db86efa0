package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-payments/internal/auth"
	"ms-payments/internal/ledger"
	"ms-payments/internal/models"
	"ms-payments/internal/utils"
)

var ErrRefundFailed = errors.New("refund rejected")

// Refund returns part or all of a captured payment through its original
// provider. The provider call comes first; the ledger records a refund only
// after the processor accepted it, so a processor failure leaves the
// payment unchanged.
func (s *Service) Refund(ctx context.Context, actor auth.Actor, paymentID string, amount int64, reason string) (*models.Payment, error) {
	payment, err := s.Ledger.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	order, err := s.Orders.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", payment.OrderID, err)
	}
	if !s.Auth.CanOperateOn(actor, order.ShopID) {
		return nil, fmt.Errorf("%w: actor %s, shop %s", ErrUnauthorized, actor.ID, order.ShopID)
	}

	if !payment.IsCaptured() {
		return nil, fmt.Errorf("%w: payment %s in status %s holds no captured funds", ErrRefundFailed, paymentID, payment.Status)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %d", ErrRefundFailed, amount)
	}
	if remaining := payment.RemainingCaptured(); amount > remaining {
		return nil, fmt.Errorf("%w: amount %d exceeds remaining captured %d", ErrRefundFailed, amount, remaining)
	}

	prov, err := s.Lookup.Lookup(payment.MethodName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	if !prov.CanRefund() {
		return nil, fmt.Errorf("%w: method %s does not support refunds", ErrRefundFailed, payment.MethodName)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.ProviderTimeout)
	defer cancel()

	result, err := prov.Refund(callCtx, payment, amount)
	if err != nil {
		s.Log.Warn("ORCHESTRATOR", fmt.Sprintf("Provider refund of payment %s failed: %v", paymentID, err))
		return nil, fmt.Errorf("%w: provider rejected refund of payment %s: %v", ErrRefundFailed, paymentID, err)
	}

	refund := &models.Refund{
		RefundID:  utils.GenerateRefundID(),
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  payment.Currency,
		Reason:    reason,
		Status:    result.Status,
		CreatedAt: time.Now(),
	}

	updated, err := s.Ledger.Apply(ctx, paymentID, ledger.Transition{
		Kind:   ledger.TransitionRefund,
		Refund: refund,
	})
	if err != nil {
		// Funds moved at the processor but the ledger write failed. Surface
		// loudly; reconciliation has the provider's refund id to go on.
		s.Log.Error("ORCHESTRATOR", fmt.Sprintf("Refund %s accepted by provider but not recorded for payment %s: %v", result.RefundID, paymentID, err))
		return nil, fmt.Errorf("refund accepted but not recorded for payment %s: %w", paymentID, err)
	}

	s.Log.Info("ORCHESTRATOR", fmt.Sprintf("Refunded %d %s of payment %s", amount, payment.Currency, paymentID))
	return updated, nil
}
