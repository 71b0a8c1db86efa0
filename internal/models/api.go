package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PaymentMethodSetting is the persisted per-shop enable/disable override.
// Absence of a row means the provider's declared default applies.
type PaymentMethodSetting struct {
	bun.BaseModel `bun:"table:payment_method_settings"`

	ShopID     string    `bun:"shop_id,pk"`
	MethodName string    `bun:"method_name,pk"`
	Enabled    bool      `bun:"enabled,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// CreatePaymentsRequest is the order-placement batch. The correlation token
// is caller-supplied and echoed back unchanged.
type CreatePaymentsRequest struct {
	Inputs           []PaymentInput `json:"inputs"`
	CorrelationToken string         `json:"correlation_token,omitempty"`
}

type CreatePaymentsResponse struct {
	Payments         []Payment `json:"payments"`
	CorrelationToken string    `json:"correlation_token,omitempty"`
}

type PaymentActionRequest struct {
	PaymentIDs       []string `json:"payment_ids"`
	CorrelationToken string   `json:"correlation_token,omitempty"`
}

type OrderViewResponse struct {
	Order            Order     `json:"order"`
	Payments         []Payment `json:"payments"`
	CorrelationToken string    `json:"correlation_token,omitempty"`
}

type RefundRequest struct {
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason,omitempty"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

type RefundResponse struct {
	Payment          Payment `json:"payment"`
	CorrelationToken string  `json:"correlation_token,omitempty"`
}

type SetMethodEnabledRequest struct {
	Enabled          bool   `json:"enabled"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

type MethodListResponse struct {
	Methods          []PaymentMethod `json:"methods"`
	CorrelationToken string          `json:"correlation_token,omitempty"`
}
