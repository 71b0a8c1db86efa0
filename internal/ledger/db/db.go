package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-payments/internal/models"

	"github.com/uptrace/bun"
)

// ErrStaleUpdate means the payment's status changed underneath the caller;
// the compare-and-swap matched zero rows.
var ErrStaleUpdate = errors.New("payment was modified concurrently")

type DB struct {
	Bun *bun.DB
}

// ---------------- PAYMENTS ----------------

// CreatePayments inserts the batch in one transaction: all rows or none.
func (d *DB) CreatePayments(ctx context.Context, payments []models.Payment) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i := range payments {
			if _, err := tx.NewInsert().Model(&payments[i]).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert payment %s: %w", payments[i].PaymentID, err)
			}
		}
		return nil
	})
}

// GetPaymentByID fetches one payment with its refunds attached.
func (d *DB) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("payment_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	if err := d.loadRefunds(ctx, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentsByOrder returns the order's full ledger in creation order.
func (d *DB) GetPaymentsByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for i := range payments {
		if err := d.loadRefunds(ctx, &payments[i]); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// UpdatePayment persists a transition with a compare-and-swap on the prior
// status, appending the refund row in the same transaction when present.
func (d *DB) UpdatePayment(ctx context.Context, payment *models.Payment, fromStatus models.PaymentStatus, refund *models.Refund) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(payment).
			Column("status", "risk_level", "capture_error_code", "capture_error_message",
				"transaction_id", "adjustments", "updated_at").
			Where("payment_id = ?", payment.PaymentID).
			Where("status = ?", fromStatus).
			Exec(ctx)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: payment %s no longer in status %s", ErrStaleUpdate, payment.PaymentID, fromStatus)
		}

		if refund != nil {
			if _, err := tx.NewInsert().Model(refund).Exec(ctx); err != nil {
				return fmt.Errorf("failed to append refund %s: %w", refund.RefundID, err)
			}
		}
		return nil
	})
}

func (d *DB) loadRefunds(ctx context.Context, payment *models.Payment) error {
	var refunds []models.Refund
	err := d.Bun.NewSelect().
		Model(&refunds).
		Where("payment_id = ?", payment.PaymentID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	payment.Refunds = refunds
	return nil
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus mirrors order lifecycle changes reported on the bus
// into the local read model.
func (d *DB) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Where("order_id = ?", id).
		Exec(ctx)
	return err
}
