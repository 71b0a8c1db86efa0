package ledger

import (
	"fmt"

	"ms-payments/internal/models"
)

type TransitionKind string

const (
	TransitionApprove          TransitionKind = "approve"
	TransitionCancel           TransitionKind = "cancel"
	TransitionCaptureSucceeded TransitionKind = "capture_succeeded"
	TransitionCaptureFailed    TransitionKind = "capture_failed"
	TransitionRetryCapture     TransitionKind = "retry_capture"
	TransitionRefund           TransitionKind = "refund"
)

// Transition is one requested state change plus its payload. The ledger's
// Apply is the only place transitions are executed.
type Transition struct {
	Kind TransitionKind

	// approve
	RiskLevel string

	// capture_succeeded
	TransactionID string

	// capture_failed
	ErrorCode    string
	ErrorMessage string

	// refund
	Refund *models.Refund
}

// allowedTransitions is the legal status graph. canceled and refunded are
// terminal.
var allowedTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.StatusCreated:       {models.StatusApproved, models.StatusCanceled},
	models.StatusApproved:      {models.StatusCompleted, models.StatusError, models.StatusCanceled},
	models.StatusError:         {models.StatusApproved},
	models.StatusCompleted:     {models.StatusPartialRefund, models.StatusRefunded},
	models.StatusPartialRefund: {models.StatusPartialRefund, models.StatusRefunded},
	models.StatusCanceled:      {},
	models.StatusRefunded:      {},
}

// CanTransition checks the status graph only; guards on the payload are
// applied in applyTransition.
func CanTransition(from, to models.PaymentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func illegal(p *models.Payment, kind TransitionKind) error {
	return fmt.Errorf("%w: %s from status %s (payment %s)", ErrIllegalStateTransition, kind, p.Status, p.PaymentID)
}

// applyTransition mutates p in memory according to the transition table.
// It returns changed=false for the idempotent re-approve case. On error p
// is left untouched; callers must not persist it.
func applyTransition(p *models.Payment, tr Transition) (changed bool, err error) {
	switch tr.Kind {
	case TransitionApprove:
		if p.Status == models.StatusApproved {
			// Duplicate operator click; current state is the answer.
			return false, nil
		}
		if p.Status != models.StatusCreated {
			return false, illegal(p, tr.Kind)
		}
		p.Status = models.StatusApproved
		p.RiskLevel = tr.RiskLevel
		return true, nil

	case TransitionRetryCapture:
		if p.Status != models.StatusError {
			return false, illegal(p, tr.Kind)
		}
		p.Status = models.StatusApproved
		p.CaptureErrorCode = ""
		p.CaptureErrorMessage = ""
		return true, nil

	case TransitionCaptureSucceeded:
		if p.Status != models.StatusApproved {
			return false, illegal(p, tr.Kind)
		}
		p.Status = models.StatusCompleted
		p.TransactionID = tr.TransactionID
		return true, nil

	case TransitionCaptureFailed:
		if p.Status != models.StatusApproved {
			return false, illegal(p, tr.Kind)
		}
		p.Status = models.StatusError
		p.CaptureErrorCode = tr.ErrorCode
		p.CaptureErrorMessage = tr.ErrorMessage
		return true, nil

	case TransitionCancel:
		if p.IsCaptured() {
			return false, illegal(p, tr.Kind)
		}
		if p.Status != models.StatusCreated && p.Status != models.StatusApproved {
			return false, illegal(p, tr.Kind)
		}
		p.Status = models.StatusCanceled
		return true, nil

	case TransitionRefund:
		if tr.Refund == nil {
			return false, fmt.Errorf("%w: refund transition without a refund record", ErrIllegalStateTransition)
		}
		if p.Status != models.StatusCompleted && p.Status != models.StatusPartialRefund {
			return false, illegal(p, tr.Kind)
		}
		remaining := p.RemainingCaptured()
		if tr.Refund.Amount <= 0 || tr.Refund.Amount > remaining {
			return false, fmt.Errorf("%w: refund of %d exceeds remaining captured %d (payment %s)",
				ErrIllegalStateTransition, tr.Refund.Amount, remaining, p.PaymentID)
		}
		p.Refunds = append(p.Refunds, *tr.Refund)
		if tr.Refund.Amount == remaining {
			p.Status = models.StatusRefunded
		} else {
			p.Status = models.StatusPartialRefund
		}
		return true, nil

	default:
		return false, fmt.Errorf("%w: unknown transition %q", ErrIllegalStateTransition, tr.Kind)
	}
}
