package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-payments/internal/auth"
	"ms-payments/internal/ledger"
	"ms-payments/internal/models"
	"ms-payments/internal/provider"
)

var ErrUnauthorized = errors.New("actor is not authorized for this shop")

// LedgerAPI is the mutation surface of the payment ledger.
type LedgerAPI interface {
	Get(ctx context.Context, orderID string) ([]models.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	Apply(ctx context.Context, paymentID string, tr ledger.Transition) (*models.Payment, error)
}

type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
}

type ProviderResolver interface {
	Lookup(name string) (provider.Provider, error)
}

type Authorizer interface {
	CanOperateOn(actor auth.Actor, shopID string) bool
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// Service coordinates multi-payment approve/capture calls across the
// providers behind one order.
type Service struct {
	Ledger LedgerAPI
	Orders OrderStore
	Lookup ProviderResolver
	Auth   Authorizer
	Risk   RiskAssessor
	Log    Logger

	// ProviderTimeout is the budget for a single external processor call.
	// A call that exceeds it is recorded as a capture failure.
	ProviderTimeout time.Duration
}

func NewService(ledgerAPI LedgerAPI, orders OrderStore, lookup ProviderResolver, authz Authorizer, log Logger, providerTimeout time.Duration) *Service {
	if providerTimeout <= 0 {
		providerTimeout = 20 * time.Second
	}
	return &Service{
		Ledger:          ledgerAPI,
		Orders:          orders,
		Lookup:          lookup,
		Auth:            authz,
		Risk:            NewThresholdAssessor(),
		Log:             log,
		ProviderTimeout: providerTimeout,
	}
}

// Approve applies operator approval to the named payments. All payment ids
// are validated against the order before anything mutates; an unknown id
// aborts the whole call untouched. Re-approving is a no-op per payment.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error) {
	order, payments, err := s.prevalidate(ctx, actor, orderID, paymentIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range paymentIDs {
		p := payments[id]
		tr := ledger.Transition{
			Kind:      ledger.TransitionApprove,
			RiskLevel: s.Risk.Assess(p),
		}
		if _, err := s.Ledger.Apply(ctx, id, tr); err != nil {
			return nil, fmt.Errorf("approve of payment %s failed: %w", id, err)
		}
	}

	return s.orderView(ctx, order)
}

// Capture converts approved payments into funds transfers, one provider
// call per payment. Captures are fail-isolated: a processor failure lands
// in that payment's error status and never blocks its siblings. Provider
// calls run concurrently since each touches a disjoint payment row.
func (s *Service) Capture(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error) {
	order, payments, err := s.prevalidate(ctx, actor, orderID, paymentIDs)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for _, id := range paymentIDs {
		wg.Add(1)
		go func(p models.Payment) {
			defer wg.Done()
			s.captureOne(ctx, p)
		}(*payments[id])
	}
	wg.Wait()

	return s.orderView(ctx, order)
}

func (s *Service) captureOne(ctx context.Context, p models.Payment) {
	// A payment parked in error is retryable: clear the error first, then
	// go back to the processor.
	if p.Status == models.StatusError {
		updated, err := s.Ledger.Apply(ctx, p.PaymentID, ledger.Transition{Kind: ledger.TransitionRetryCapture})
		if err != nil {
			s.Log.Error("ORCHESTRATOR", fmt.Sprintf("Retry reset of payment %s failed: %v", p.PaymentID, err))
			return
		}
		p = *updated
	}

	if p.Status != models.StatusApproved {
		s.Log.Warn("ORCHESTRATOR", fmt.Sprintf("Skipping capture of payment %s in status %s", p.PaymentID, p.Status))
		return
	}

	prov, err := s.Lookup.Lookup(p.MethodName)
	if err != nil {
		s.recordCaptureFailure(ctx, p.PaymentID, &provider.Error{Code: "method_unregistered", Message: err.Error()})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.ProviderTimeout)
	defer cancel()

	result, err := prov.Capture(callCtx, &p)
	if err != nil {
		s.recordCaptureFailure(ctx, p.PaymentID, err)
		return
	}

	tr := ledger.Transition{
		Kind:          ledger.TransitionCaptureSucceeded,
		TransactionID: result.TransactionID,
	}
	if _, err := s.Ledger.Apply(ctx, p.PaymentID, tr); err != nil {
		s.Log.Error("ORCHESTRATOR", fmt.Sprintf("Failed to record capture of payment %s: %v", p.PaymentID, err))
	}
}

// recordCaptureFailure maps the provider failure onto the error transition.
// A timed-out call is a processor failure, never left pending.
func (s *Service) recordCaptureFailure(ctx context.Context, paymentID string, err error) {
	code := provider.CodeUnavailable
	message := err.Error()

	var provErr *provider.Error
	switch {
	case errors.As(err, &provErr):
		code = provErr.Code
		message = provErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		code = provider.CodeTimeout
		message = "provider call exceeded its timeout budget"
	}

	s.Log.Warn("ORCHESTRATOR", fmt.Sprintf("Capture of payment %s failed [%s]: %s", paymentID, code, message))

	tr := ledger.Transition{
		Kind:         ledger.TransitionCaptureFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	}
	if _, err := s.Ledger.Apply(ctx, paymentID, tr); err != nil {
		s.Log.Error("ORCHESTRATOR", fmt.Sprintf("Failed to record capture failure of payment %s: %v", paymentID, err))
	}
}

// Cancel voids uncaptured payments, subject to the ledger balance guard.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error) {
	order, _, err := s.prevalidate(ctx, actor, orderID, paymentIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range paymentIDs {
		if _, err := s.Ledger.Apply(ctx, id, ledger.Transition{Kind: ledger.TransitionCancel}); err != nil {
			return nil, fmt.Errorf("cancel of payment %s failed: %w", id, err)
		}
	}

	return s.orderView(ctx, order)
}

// prevalidate loads the order, enforces the auth predicate, and checks
// every named payment belongs to the order. Fails closed with no mutation.
func (s *Service) prevalidate(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.Order, map[string]*models.Payment, error) {
	order, err := s.Orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ledger.ErrOrderNotFound, orderID)
		}
		return nil, nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	if !s.Auth.CanOperateOn(actor, order.ShopID) {
		return nil, nil, fmt.Errorf("%w: actor %s, shop %s", ErrUnauthorized, actor.ID, order.ShopID)
	}

	payments, err := s.Ledger.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*models.Payment, len(payments))
	for i := range payments {
		byID[payments[i].PaymentID] = &payments[i]
	}

	if len(paymentIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: no payment ids given", ledger.ErrPaymentNotFound)
	}
	for _, id := range paymentIDs {
		if _, ok := byID[id]; !ok {
			return nil, nil, fmt.Errorf("%w: %s does not belong to order %s", ledger.ErrPaymentNotFound, id, orderID)
		}
	}

	return order, byID, nil
}

func (s *Service) orderView(ctx context.Context, order *models.Order) (*models.OrderView, error) {
	payments, err := s.Ledger.Get(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderView{Order: *order, Payments: payments}, nil
}
