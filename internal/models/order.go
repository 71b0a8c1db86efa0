package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusPlaced    = "placed"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Order is the read model of the external order aggregate. The order service
// owns it; the ledger only reads the outstanding total and the status.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID     string    `json:"order_id" bun:"order_id,pk"`
	ShopID      string    `json:"shop_id" bun:"shop_id,notnull"`
	TotalAmount int64     `json:"total_amount" bun:"total_amount,notnull"`
	Currency    string    `json:"currency" bun:"currency,notnull"`
	Status      string    `json:"status" bun:"status,notnull"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at,notnull"`
}

// OrderView is an order together with its payment ledger, returned by the
// orchestrator after approve/capture.
type OrderView struct {
	Order    Order     `json:"order"`
	Payments []Payment `json:"payments"`
}

// OrderEvent mirrors the order service's lifecycle events on the bus.
type OrderEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	ShopID    string    `json:"shop_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

const EventOrderCancelled = "order_cancelled"
