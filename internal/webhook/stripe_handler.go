package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-payments/internal/ledger"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/utils"
)

type LedgerService interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	Apply(ctx context.Context, paymentID string, tr ledger.Transition) (*models.Payment, error)
}

// StripeEvent is the slice of the processor's webhook envelope we act on.
// The payment id travels in the intent metadata, set at intent creation.
type StripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string            `json:"id"`
			Metadata         map[string]string `json:"metadata"`
			LastPaymentError *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// StripeHandler ingests asynchronous processor notifications and folds them
// into the ledger through the same transitions the orchestrator uses.
type StripeHandler struct {
	ledger LedgerService
	logger *logger.Logger
}

func NewStripeHandler(ledgerSvc LedgerService, log *logger.Logger) *StripeHandler {
	return &StripeHandler{
		ledger: ledgerSvc,
		logger: log,
	}
}

// HandleWebhook processes a processor event notification
func (h *StripeHandler) HandleWebhook(c *gin.Context) {
	var event StripeEvent
	if err := json.NewDecoder(c.Request.Body).Decode(&event); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}

	paymentID := event.Data.Object.Metadata["payment_id"]
	if paymentID == "" {
		// Not one of ours; acknowledge so the processor stops retrying.
		h.logger.Warn("WEBHOOK", fmt.Sprintf("Event %s carries no payment id, ignoring", event.Type))
		c.JSON(http.StatusOK, utils.SuccessResponse("Event ignored", nil))
		return
	}

	h.logger.Info("WEBHOOK", fmt.Sprintf("Received %s for payment %s", event.Type, paymentID))

	switch event.Type {
	case "payment_intent.succeeded":
		h.applyTransition(c, paymentID, ledger.Transition{
			Kind:          ledger.TransitionCaptureSucceeded,
			TransactionID: event.Data.Object.ID,
		})

	case "payment_intent.payment_failed":
		tr := ledger.Transition{
			Kind:         ledger.TransitionCaptureFailed,
			ErrorCode:    "payment_failed",
			ErrorMessage: "processor reported payment failure",
		}
		if lpe := event.Data.Object.LastPaymentError; lpe != nil {
			tr.ErrorCode = lpe.Code
			tr.ErrorMessage = lpe.Message
		}
		h.applyTransition(c, paymentID, tr)

	case "payment_intent.canceled":
		h.applyTransition(c, paymentID, ledger.Transition{Kind: ledger.TransitionCancel})

	default:
		h.logger.Debug("WEBHOOK", fmt.Sprintf("Unhandled event type %s", event.Type))
		c.JSON(http.StatusOK, utils.SuccessResponse("Event ignored", nil))
	}
}

func (h *StripeHandler) applyTransition(c *gin.Context, paymentID string, tr ledger.Transition) {
	payment, err := h.ledger.Apply(c.Request.Context(), paymentID, tr)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Payment not found", err.Error()))
		case errors.Is(err, ledger.ErrIllegalStateTransition):
			// Out-of-order or duplicate delivery; acknowledge, the ledger is
			// already past this event.
			h.logger.Warn("WEBHOOK", fmt.Sprintf("Stale event for payment %s: %v", paymentID, err))
			c.JSON(http.StatusOK, utils.SuccessResponse("Event superseded", nil))
		default:
			h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to apply event to payment %s: %v", paymentID, err))
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to apply event", err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Event applied", map[string]interface{}{
		"payment_id": payment.PaymentID,
		"status":     payment.Status,
	}))
}
