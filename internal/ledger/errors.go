package ledger

import "errors"

var (
	// ErrInvalidPaymentInput rejects the whole creation batch; no rows are
	// written when any single input is invalid.
	ErrInvalidPaymentInput = errors.New("invalid payment input")

	// ErrLedgerImbalance guards the order total: the active payments of an
	// order may never sum below its outstanding total.
	ErrLedgerImbalance = errors.New("payments no longer cover the order total")

	ErrIllegalStateTransition = errors.New("illegal payment state transition")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrOrderNotFound          = errors.New("order not found")

	// ErrLockContended is returned when a payment's mutation lock could not
	// be acquired within the retry budget.
	ErrLockContended = errors.New("payment is locked by another operation")
)
