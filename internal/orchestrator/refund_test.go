package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/ledger"
	"ms-payments/internal/models"
	"ms-payments/internal/orchestrator"
	"ms-payments/internal/provider"
)

func capturedPayment(amount int64) *models.Payment {
	p := approvedPayment("pay_cap", "stripe", amount)
	p.Status = models.StatusCompleted
	p.TransactionID = "txn_1"
	return &p
}

func TestRefund_HappyPathRecordsAfterProviderAccepts(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	resolver := new(MockResolver)
	svc := newTestService(led, orders, resolver, time.Second)

	payment := capturedPayment(10000)
	refunded := *payment
	refunded.Status = models.StatusPartialRefund

	led.On("GetPayment", mock.Anything, "pay_cap").Return(payment, nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)
	resolver.On("Lookup", "stripe").Return(scriptedProvider{
		methodName: "stripe",
		refundable: true,
		refund: func(ctx context.Context, p *models.Payment, amount int64) (*provider.RefundResult, error) {
			assert.Equal(t, int64(4000), amount)
			return &provider.RefundResult{RefundID: "re_1", Status: "succeeded"}, nil
		},
	}, nil)
	led.On("Apply", mock.Anything, "pay_cap", mock.MatchedBy(func(tr ledger.Transition) bool {
		return tr.Kind == ledger.TransitionRefund &&
			tr.Refund != nil &&
			tr.Refund.Amount == 4000 &&
			tr.Refund.Reason == "customer request" &&
			tr.Refund.Status == "succeeded"
	})).Return(&refunded, nil)

	updated, err := svc.Refund(context.Background(), shopActor(), "pay_cap", 4000, "customer request")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialRefund, updated.Status)
	led.AssertExpectations(t)
}

func TestRefund_ProviderFailureLeavesLedgerUntouched(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	resolver := new(MockResolver)
	svc := newTestService(led, orders, resolver, time.Second)

	led.On("GetPayment", mock.Anything, "pay_cap").Return(capturedPayment(10000), nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)
	resolver.On("Lookup", "stripe").Return(scriptedProvider{
		methodName: "stripe",
		refundable: true,
		refund: func(ctx context.Context, p *models.Payment, amount int64) (*provider.RefundResult, error) {
			return nil, errors.New("processor offline")
		},
	}, nil)

	_, err := svc.Refund(context.Background(), shopActor(), "pay_cap", 4000, "")
	assert.ErrorIs(t, err, orchestrator.ErrRefundFailed)
	led.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefund_MethodWithoutRefundSupport(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	resolver := new(MockResolver)
	svc := newTestService(led, orders, resolver, time.Second)

	payment := capturedPayment(10000)
	payment.MethodName = "banktransfer"

	led.On("GetPayment", mock.Anything, "pay_cap").Return(payment, nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)
	resolver.On("Lookup", "banktransfer").Return(scriptedProvider{
		methodName: "banktransfer",
		refundable: false,
	}, nil)

	_, err := svc.Refund(context.Background(), shopActor(), "pay_cap", 4000, "")
	assert.ErrorIs(t, err, orchestrator.ErrRefundFailed)
	led.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefund_RejectsAmountOverRemainingCaptured(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	resolver := new(MockResolver)
	svc := newTestService(led, orders, resolver, time.Second)

	// 10000 captured, 7000 already refunded, so only 3000 remains.
	payment := capturedPayment(10000)
	payment.Status = models.StatusPartialRefund
	payment.Refunds = []models.Refund{{RefundID: "ref_prev", PaymentID: "pay_cap", Amount: 7000, Currency: "EUR", Status: "succeeded"}}

	led.On("GetPayment", mock.Anything, "pay_cap").Return(payment, nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)

	_, err := svc.Refund(context.Background(), shopActor(), "pay_cap", 3001, "")
	assert.ErrorIs(t, err, orchestrator.ErrRefundFailed)
	resolver.AssertNotCalled(t, "Lookup", mock.Anything)
	led.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefund_RejectsUncapturedPayment(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	resolver := new(MockResolver)
	svc := newTestService(led, orders, resolver, time.Second)

	pending := approvedPayment("pay_cap", "stripe", 10000)

	led.On("GetPayment", mock.Anything, "pay_cap").Return(&pending, nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)

	_, err := svc.Refund(context.Background(), shopActor(), "pay_cap", 4000, "")
	assert.ErrorIs(t, err, orchestrator.ErrRefundFailed)
	resolver.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestRefund_UnauthorizedActor(t *testing.T) {
	led := new(MockLedger)
	orders := new(MockOrders)
	svc := newTestService(led, orders, new(MockResolver), time.Second)

	led.On("GetPayment", mock.Anything, "pay_cap").Return(capturedPayment(10000), nil)
	orders.On("GetOrderByID", mock.Anything, "ord_1").Return(testOrder(), nil)

	outsider := authActorWithoutShops()
	_, err := svc.Refund(context.Background(), outsider, "pay_cap", 4000, "")
	assert.ErrorIs(t, err, orchestrator.ErrUnauthorized)
}
