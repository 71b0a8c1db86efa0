package provider

import (
	"context"
	"fmt"

	"ms-payments/internal/models"
)

// Error is a processor failure carrying a machine-readable code alongside
// the human message. Capture failures land in the payment's
// capture_error_code/capture_error_message fields.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error [%s]: %s", e.Code, e.Message)
}

// Codes the orchestrator assigns itself when the processor never answered.
const (
	CodeTimeout     = "provider_timeout"
	CodeUnavailable = "provider_unavailable"
)

type CaptureResult struct {
	TransactionID string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Provider is one pluggable payment method implementation. Registration
// keys on Name(); the registry rejects duplicates.
type Provider interface {
	Name() string
	PluginName() string
	DisplayName() string
	CanRefund() bool

	// EnabledByDefault applies to shops without a persisted override.
	EnabledByDefault() bool

	// Available is the provider's own checkout-context predicate, applied
	// on top of the shop's enablement.
	Available(ctx models.CheckoutContext) bool

	// MethodData returns the provider-declared display payload.
	MethodData() models.MethodData

	// Capture converts the approved payment into a funds transfer. The
	// context carries the orchestrator's per-call timeout budget.
	Capture(ctx context.Context, payment *models.Payment) (*CaptureResult, error)

	// Refund returns amount (minor units) of a captured payment.
	Refund(ctx context.Context, payment *models.Payment, amount int64) (*RefundResult, error)
}
