package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/models"
)

func newPayment(status models.PaymentStatus) *models.Payment {
	return &models.Payment{
		PaymentID: "pay_test_1",
		OrderID:   "ord_test_1",
		ShopID:    "shop_test",
		Amount:    10000,
		Currency:  "EUR",
		Status:    status,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.PaymentStatus
		to      models.PaymentStatus
		allowed bool
	}{
		{"created to approved", models.StatusCreated, models.StatusApproved, true},
		{"created to canceled", models.StatusCreated, models.StatusCanceled, true},
		{"created to completed", models.StatusCreated, models.StatusCompleted, false},
		{"approved to completed", models.StatusApproved, models.StatusCompleted, true},
		{"approved to error", models.StatusApproved, models.StatusError, true},
		{"approved to canceled", models.StatusApproved, models.StatusCanceled, true},
		{"error back to approved", models.StatusError, models.StatusApproved, true},
		{"error to completed", models.StatusError, models.StatusCompleted, false},
		{"completed to partialRefund", models.StatusCompleted, models.StatusPartialRefund, true},
		{"completed to refunded", models.StatusCompleted, models.StatusRefunded, true},
		{"completed to canceled", models.StatusCompleted, models.StatusCanceled, false},
		{"partialRefund to refunded", models.StatusPartialRefund, models.StatusRefunded, true},
		{"canceled is terminal", models.StatusCanceled, models.StatusApproved, false},
		{"refunded is terminal", models.StatusRefunded, models.StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestApplyTransition_Approve(t *testing.T) {
	p := newPayment(models.StatusCreated)

	changed, err := applyTransition(p, Transition{Kind: TransitionApprove, RiskLevel: "normal"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusApproved, p.Status)
	assert.Equal(t, "normal", p.RiskLevel)
}

func TestApplyTransition_ApproveIsIdempotent(t *testing.T) {
	p := newPayment(models.StatusApproved)
	p.RiskLevel = "normal"

	changed, err := applyTransition(p, Transition{Kind: TransitionApprove, RiskLevel: "high"})
	require.NoError(t, err)
	assert.False(t, changed, "re-approving must be a no-op, not an error")
	assert.Equal(t, models.StatusApproved, p.Status)
	assert.Equal(t, "normal", p.RiskLevel, "duplicate approval must not overwrite the recorded risk level")
}

func TestApplyTransition_ApproveFromTerminalFails(t *testing.T) {
	p := newPayment(models.StatusCanceled)

	_, err := applyTransition(p, Transition{Kind: TransitionApprove})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)
	assert.Equal(t, models.StatusCanceled, p.Status, "failed transition must leave the payment untouched")
}

func TestApplyTransition_CaptureOutcomes(t *testing.T) {
	p := newPayment(models.StatusApproved)
	changed, err := applyTransition(p, Transition{Kind: TransitionCaptureSucceeded, TransactionID: "txn_abc"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Equal(t, "txn_abc", p.TransactionID)
	assert.True(t, p.IsCaptured())

	p = newPayment(models.StatusApproved)
	changed, err = applyTransition(p, Transition{
		Kind:         TransitionCaptureFailed,
		ErrorCode:    "card_declined",
		ErrorMessage: "the card was declined",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusError, p.Status)
	assert.Equal(t, "card_declined", p.CaptureErrorCode)
	assert.False(t, p.IsCaptured())
}

func TestApplyTransition_RetryClearsError(t *testing.T) {
	p := newPayment(models.StatusError)
	p.CaptureErrorCode = "provider_timeout"
	p.CaptureErrorMessage = "provider call exceeded its timeout budget"

	changed, err := applyTransition(p, Transition{Kind: TransitionRetryCapture})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusApproved, p.Status)
	assert.Empty(t, p.CaptureErrorCode)
	assert.Empty(t, p.CaptureErrorMessage)
}

func TestApplyTransition_CancelGuards(t *testing.T) {
	p := newPayment(models.StatusCreated)
	changed, err := applyTransition(p, Transition{Kind: TransitionCancel})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusCanceled, p.Status)
	assert.True(t, p.IsAuthorizationCanceled())

	// Captured funds can only leave through a refund.
	p = newPayment(models.StatusCompleted)
	_, err = applyTransition(p, Transition{Kind: TransitionCancel})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)

	p = newPayment(models.StatusError)
	_, err = applyTransition(p, Transition{Kind: TransitionCancel})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)
}

func refundOf(amount int64) *models.Refund {
	return &models.Refund{
		RefundID:  "ref_test",
		PaymentID: "pay_test_1",
		Amount:    amount,
		Currency:  "EUR",
		Status:    "succeeded",
		CreatedAt: time.Now(),
	}
}

func TestApplyTransition_RefundArithmetic(t *testing.T) {
	p := newPayment(models.StatusCompleted)
	p.Amount = 100

	// First partial refund of 60 leaves 40 captured.
	changed, err := applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(60)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusPartialRefund, p.Status)
	assert.Equal(t, int64(40), p.RemainingCaptured())

	// A 41 refund would overdraw the captured amount.
	_, err = applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(41)})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)
	assert.Equal(t, models.StatusPartialRefund, p.Status)
	assert.Equal(t, int64(40), p.RemainingCaptured(), "rejected refund must not change the ledger")

	// Refunding the exact remainder closes the payment out.
	changed, err = applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(40)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusRefunded, p.Status)
	assert.Equal(t, int64(0), p.RemainingCaptured())
	assert.Equal(t, int64(100), p.RefundedAmount())

	// refunded is terminal.
	_, err = applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(1)})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestApplyTransition_RefundRejectsNonPositiveAmount(t *testing.T) {
	p := newPayment(models.StatusCompleted)

	_, err := applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(0)})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)

	_, err = applyTransition(p, Transition{Kind: TransitionRefund, Refund: refundOf(-5)})
	assert.ErrorIs(t, err, ErrIllegalStateTransition)
}
