package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-payments/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Order)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Payment)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Refund)(nil)))

	return &DB{Bun: bunDB}
}

func seedOrder(t *testing.T, d *DB) models.Order {
	order := models.Order{
		OrderID:     "ord_1",
		ShopID:      "shop_1",
		TotalAmount: 10000,
		Currency:    "EUR",
		Status:      models.OrderStatusPlaced,
		CreatedAt:   time.Now().Round(time.Second),
	}
	_, err := d.Bun.NewInsert().Model(&order).Exec(context.Background())
	require.NoError(t, err)
	return order
}

func samplePayment(id string, amount int64, createdAt time.Time) models.Payment {
	return models.Payment{
		PaymentID:  id,
		OrderID:    "ord_1",
		ShopID:     "shop_1",
		MethodName: "stripe",
		PluginName: "payments-stripe",
		Amount:     amount,
		Currency:   "EUR",
		Status:     models.StatusCreated,
		CreatedAt:  createdAt,
	}
}

func TestCreatePaymentsAndGetByOrder(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	batch := []models.Payment{
		samplePayment("pay_1", 6000, now),
		samplePayment("pay_2", 4000, now.Add(time.Second)),
	}
	require.NoError(t, d.CreatePayments(ctx, batch))

	payments, err := d.GetPaymentsByOrder(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay_1", payments[0].PaymentID, "ledger must come back in creation order")
	assert.Equal(t, "pay_2", payments[1].PaymentID)
	assert.Equal(t, models.StatusCreated, payments[0].Status)
}

func TestCreatePayments_AllOrNothing(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	require.NoError(t, d.CreatePayments(ctx, []models.Payment{samplePayment("pay_dup", 1000, now)}))

	// Second batch reuses a primary key; the whole batch must roll back.
	err := d.CreatePayments(ctx, []models.Payment{
		samplePayment("pay_new", 2000, now),
		samplePayment("pay_dup", 3000, now),
	})
	require.Error(t, err)

	_, err = d.GetPaymentByID(ctx, "pay_new")
	assert.ErrorIs(t, err, sql.ErrNoRows, "no row from the failed batch may survive")
}

func TestUpdatePayment_CompareAndSwap(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	payment := samplePayment("pay_1", 6000, time.Now().Round(time.Second))
	require.NoError(t, d.CreatePayments(ctx, []models.Payment{payment}))

	payment.Status = models.StatusApproved
	payment.RiskLevel = "normal"
	payment.UpdatedAt = time.Now()
	require.NoError(t, d.UpdatePayment(ctx, &payment, models.StatusCreated, nil))

	stored, err := d.GetPaymentByID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, "normal", stored.RiskLevel)

	// A second writer still holding the old status must lose the swap.
	stale := *stored
	stale.Status = models.StatusCanceled
	err = d.UpdatePayment(ctx, &stale, models.StatusCreated, nil)
	assert.ErrorIs(t, err, ErrStaleUpdate)

	stored, err = d.GetPaymentByID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status, "losing swap must not change the row")
}

func TestUpdatePayment_AppendsRefundInSameTransaction(t *testing.T) {
	d := setupTestDB(t)
	seedOrder(t, d)
	ctx := context.Background()

	payment := samplePayment("pay_1", 6000, time.Now().Round(time.Second))
	payment.Status = models.StatusCompleted
	payment.TransactionID = "txn_1"
	require.NoError(t, d.CreatePayments(ctx, []models.Payment{payment}))

	refund := &models.Refund{
		RefundID:  "ref_1",
		PaymentID: "pay_1",
		Amount:    2500,
		Currency:  "EUR",
		Reason:    "customer returned one item",
		Status:    "succeeded",
		CreatedAt: time.Now().Round(time.Second),
	}
	payment.Status = models.StatusPartialRefund
	payment.UpdatedAt = time.Now()
	require.NoError(t, d.UpdatePayment(ctx, &payment, models.StatusCompleted, refund))

	stored, err := d.GetPaymentByID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialRefund, stored.Status)
	require.Len(t, stored.Refunds, 1)
	assert.Equal(t, int64(2500), stored.Refunds[0].Amount)
	assert.Equal(t, int64(3500), stored.RemainingCaptured())
}

func TestGetOrderAndUpdateStatus(t *testing.T) {
	d := setupTestDB(t)
	order := seedOrder(t, d)
	ctx := context.Background()

	stored, err := d.GetOrderByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalAmount, stored.TotalAmount)
	assert.Equal(t, models.OrderStatusPlaced, stored.Status)

	require.NoError(t, d.UpdateOrderStatus(ctx, order.OrderID, models.OrderStatusCancelled))

	stored, err = d.GetOrderByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
}
