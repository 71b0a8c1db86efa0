package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusCreated       PaymentStatus = "created"
	StatusApproved      PaymentStatus = "approved"
	StatusError         PaymentStatus = "error"
	StatusCanceled      PaymentStatus = "canceled"
	StatusCompleted     PaymentStatus = "completed"
	StatusPartialRefund PaymentStatus = "partialRefund"
	StatusRefunded      PaymentStatus = "refunded"
)

// IsTerminal reports whether no further transition can leave the status.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusRefunded
}

// IsCaptured reports whether funds have been captured in the status.
func (s PaymentStatus) IsCaptured() bool {
	return s == StatusCompleted || s == StatusPartialRefund || s == StatusRefunded
}

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID           string          `json:"payment_id" bun:"payment_id,pk"`
	OrderID             string          `json:"order_id" bun:"order_id,notnull"`
	ShopID              string          `json:"shop_id" bun:"shop_id,notnull"`
	MethodName          string          `json:"method_name" bun:"method_name,notnull"`
	PluginName          string          `json:"plugin_name" bun:"plugin_name,notnull"`
	Amount              int64           `json:"amount" bun:"amount,notnull"`
	Currency            string          `json:"currency" bun:"currency,notnull"`
	Status              PaymentStatus   `json:"status" bun:"status,notnull"`
	RiskLevel           string          `json:"risk_level,omitempty" bun:"risk_level,nullzero"`
	CaptureErrorCode    string          `json:"capture_error_code,omitempty" bun:"capture_error_code,nullzero"`
	CaptureErrorMessage string          `json:"capture_error_message,omitempty" bun:"capture_error_message,nullzero"`
	TransactionID       string          `json:"transaction_id,omitempty" bun:"transaction_id,nullzero"`
	Adjustments         bool            `json:"adjustments" bun:"adjustments"`
	Data                json.RawMessage `json:"data,omitempty" bun:"data,nullzero"`
	BillingAddress      json.RawMessage `json:"billing_address,omitempty" bun:"billing_address,nullzero"`
	CreatedAt           time.Time       `json:"created_at" bun:"created_at,notnull"`
	UpdatedAt           time.Time       `json:"updated_at,omitempty" bun:"updated_at,nullzero"`

	// Loaded separately by the db layer; refunds are append-only.
	Refunds []Refund `json:"refunds" bun:"-"`
}

// IsCaptured is derived from status, never stored.
func (p *Payment) IsCaptured() bool {
	return p.Status.IsCaptured()
}

// IsAuthorizationCanceled is derived from status, never stored.
func (p *Payment) IsAuthorizationCanceled() bool {
	return p.Status == StatusCanceled
}

// RefundedAmount sums all recorded refunds.
func (p *Payment) RefundedAmount() int64 {
	var total int64
	for _, r := range p.Refunds {
		total += r.Amount
	}
	return total
}

// RemainingCaptured is the captured amount still refundable.
func (p *Payment) RemainingCaptured() int64 {
	if !p.IsCaptured() {
		return 0
	}
	return p.Amount - p.RefundedAmount()
}

type Refund struct {
	bun.BaseModel `bun:"table:refunds"`

	RefundID  string    `json:"refund_id" bun:"refund_id,pk"`
	PaymentID string    `json:"payment_id" bun:"payment_id,notnull"`
	Amount    int64     `json:"amount" bun:"amount,notnull"`
	Currency  string    `json:"currency" bun:"currency,notnull"`
	Reason    string    `json:"reason,omitempty" bun:"reason,nullzero"`
	Status    string    `json:"status" bun:"status,notnull"`
	CreatedAt time.Time `json:"created_at" bun:"created_at,notnull"`
}

// PaymentInput is one requested payment at order placement.
type PaymentInput struct {
	MethodName     string          `json:"method_name"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Data           json.RawMessage `json:"data,omitempty"`
	BillingAddress json.RawMessage `json:"billing_address,omitempty"`
}

type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	ShopID    string    `json:"shop_id"`
	Payment   *Payment  `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventPaymentCreated       = "payment_created"
	EventPaymentApproved      = "payment_approved"
	EventPaymentCaptured      = "payment_captured"
	EventPaymentCaptureFailed = "payment_capture_failed"
	EventPaymentCanceled      = "payment_canceled"
	EventPaymentRefunded      = "payment_refunded"
)
