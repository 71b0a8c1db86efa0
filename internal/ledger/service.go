package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-payments/internal/models"
	"ms-payments/internal/provider"
	"ms-payments/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreatePayments(ctx context.Context, payments []models.Payment) error
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentsByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment, fromStatus models.PaymentStatus, refund *models.Refund) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error
}

type PaymentLock interface {
	AcquirePayment(paymentID, token string) (bool, error)
	ReleasePayment(paymentID, token string) error
}

// MethodResolver is the registry surface the ledger needs for input
// validation.
type MethodResolver interface {
	Lookup(name string) (provider.Provider, error)
}

type EventPublisher interface {
	PublishPaymentEvent(event models.PaymentEvent) error
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// Service owns all writes to Payment rows. Every mutation goes through
// Apply under the payment's lock; nothing else is permitted to write.
type Service struct {
	DB     DBLayer
	Lock   PaymentLock
	Lookup MethodResolver
	Events EventPublisher
	Log    Logger

	LockRetries    int
	LockRetryDelay time.Duration
}

func NewService(db DBLayer, lock PaymentLock, lookup MethodResolver, events EventPublisher, log Logger) *Service {
	return &Service{
		DB:             db,
		Lock:           lock,
		Lookup:         lookup,
		Events:         events,
		Log:            log,
		LockRetries:    50,
		LockRetryDelay: 20 * time.Millisecond,
	}
}

// Create validates and inserts the order's payment batch, all-or-nothing.
// Every payment starts at status created.
func (s *Service) Create(ctx context.Context, orderID string, inputs []models.PaymentInput) ([]models.Payment, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no payments given for order %s", ErrInvalidPaymentInput, orderID)
	}

	now := time.Now()
	payments := make([]models.Payment, 0, len(inputs))
	var total int64

	for i, input := range inputs {
		if input.Amount <= 0 {
			return nil, fmt.Errorf("%w: input %d has non-positive amount %d", ErrInvalidPaymentInput, i, input.Amount)
		}
		if input.Currency != order.Currency {
			return nil, fmt.Errorf("%w: input %d currency %s does not match order currency %s",
				ErrInvalidPaymentInput, i, input.Currency, order.Currency)
		}

		prov, err := s.Lookup.Lookup(input.MethodName)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrInvalidPaymentInput, i, err)
		}

		total += input.Amount
		payments = append(payments, models.Payment{
			PaymentID:      utils.GeneratePaymentID(),
			OrderID:        orderID,
			ShopID:         order.ShopID,
			MethodName:     input.MethodName,
			PluginName:     prov.PluginName(),
			Amount:         input.Amount,
			Currency:       input.Currency,
			Status:         models.StatusCreated,
			Data:           input.Data,
			BillingAddress: input.BillingAddress,
			CreatedAt:      now,
		})
	}

	if total < order.TotalAmount {
		return nil, fmt.Errorf("%w: payments sum to %d, order requires %d", ErrLedgerImbalance, total, order.TotalAmount)
	}

	if err := s.DB.CreatePayments(ctx, payments); err != nil {
		return nil, fmt.Errorf("failed to create payments for order %s: %w", orderID, err)
	}

	s.Log.Info("LEDGER", fmt.Sprintf("Created %d payments for order %s", len(payments), orderID))
	for i := range payments {
		s.publish(models.EventPaymentCreated, &payments[i])
	}
	return payments, nil
}

// Get returns the order's ledger in creation order.
func (s *Service) Get(ctx context.Context, orderID string) ([]models.Payment, error) {
	payments, err := s.DB.GetPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for order %s: %w", orderID, err)
	}
	return payments, nil
}

// GetPayment returns one payment with its refunds.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.DB.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	return payment, nil
}

// Apply executes one transition under the payment's mutation lock and the
// ledger balance guard. It either persists the fully-applied transition or
// leaves the payment untouched.
func (s *Service) Apply(ctx context.Context, paymentID string, tr Transition) (*models.Payment, error) {
	token := uuid.NewString()
	if err := s.acquire(paymentID, token); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Lock.ReleasePayment(paymentID, token); err != nil {
			s.Log.Warn("LEDGER", fmt.Sprintf("Failed to release lock for payment %s: %v", paymentID, err))
		}
	}()

	payment, err := s.DB.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	fromStatus := payment.Status
	changed, err := applyTransition(payment, tr)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.Log.Info("LEDGER", fmt.Sprintf("Transition %s on payment %s is a no-op at status %s", tr.Kind, paymentID, payment.Status))
		return payment, nil
	}

	if tr.Kind == TransitionCancel {
		if err := s.checkBalance(ctx, payment); err != nil {
			return nil, err
		}
	}

	payment.UpdatedAt = time.Now()
	if err := s.DB.UpdatePayment(ctx, payment, fromStatus, tr.Refund); err != nil {
		return nil, fmt.Errorf("failed to persist transition %s on payment %s: %w", tr.Kind, paymentID, err)
	}

	s.Log.Info("LEDGER", fmt.Sprintf("Payment %s: %s -> %s (%s)", paymentID, fromStatus, payment.Status, tr.Kind))
	s.publish(eventTypeFor(tr.Kind), payment)
	return payment, nil
}

// checkBalance rejects a cancel that would leave an active order's live
// payments below its total. Orders already cancelled upstream are exempt;
// their payments are being torn down on purpose.
func (s *Service) checkBalance(ctx context.Context, canceled *models.Payment) error {
	order, err := s.DB.GetOrderByID(ctx, canceled.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s for balance check: %w", canceled.OrderID, err)
	}
	if order.Status == models.OrderStatusCancelled {
		return nil
	}

	payments, err := s.DB.GetPaymentsByOrder(ctx, canceled.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load ledger for order %s: %w", canceled.OrderID, err)
	}

	var active int64
	for _, p := range payments {
		if p.PaymentID == canceled.PaymentID {
			continue // being canceled right now
		}
		if p.Status == models.StatusCanceled || p.Status == models.StatusError {
			continue
		}
		active += p.Amount
	}

	if active < order.TotalAmount {
		return fmt.Errorf("%w: canceling payment %s leaves %d of required %d",
			ErrLedgerImbalance, canceled.PaymentID, active, order.TotalAmount)
	}
	return nil
}

func (s *Service) acquire(paymentID, token string) error {
	retries := s.LockRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		ok, err := s.Lock.AcquirePayment(paymentID, token)
		if err != nil {
			return fmt.Errorf("lock error for payment %s: %w", paymentID, err)
		}
		if ok {
			return nil
		}
		time.Sleep(s.LockRetryDelay)
	}
	return fmt.Errorf("%w: %s", ErrLockContended, paymentID)
}

func (s *Service) publish(eventType string, payment *models.Payment) {
	if s.Events == nil {
		return
	}
	event := models.PaymentEvent{
		Type:      eventType,
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		ShopID:    payment.ShopID,
		Payment:   payment,
		Timestamp: time.Now(),
	}
	if err := s.Events.PublishPaymentEvent(event); err != nil {
		s.Log.Warn("LEDGER", fmt.Sprintf("Failed to publish %s for payment %s: %v", eventType, payment.PaymentID, err))
	}
}

func eventTypeFor(kind TransitionKind) string {
	switch kind {
	case TransitionApprove, TransitionRetryCapture:
		return models.EventPaymentApproved
	case TransitionCaptureSucceeded:
		return models.EventPaymentCaptured
	case TransitionCaptureFailed:
		return models.EventPaymentCaptureFailed
	case TransitionCancel:
		return models.EventPaymentCanceled
	case TransitionRefund:
		return models.EventPaymentRefunded
	default:
		return "payment_updated"
	}
}
