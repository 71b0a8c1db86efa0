package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/auth"
	"ms-payments/internal/ledger"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/orchestrator"
	"ms-payments/internal/provider"
	"ms-payments/internal/registry"
)

type RegistryAPI interface {
	ListAll(ctx context.Context, shopID string) ([]models.PaymentMethod, error)
	AvailableFor(ctx context.Context, shopID string, checkout models.CheckoutContext) ([]models.PaymentMethod, error)
	SetEnabled(ctx context.Context, shopID, name string, enabled bool) error
	Lookup(name string) (provider.Provider, error)
}

type LedgerAPI interface {
	Create(ctx context.Context, orderID string, inputs []models.PaymentInput) ([]models.Payment, error)
	Get(ctx context.Context, orderID string) ([]models.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

type OrchestratorAPI interface {
	Approve(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error)
	Capture(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error)
	Cancel(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error)
	Refund(ctx context.Context, actor auth.Actor, paymentID string, amount int64, reason string) (*models.Payment, error)
}

type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
}

// ReferenceQRer is implemented by providers that hand the shopper a
// scannable payment reference instead of capturing online.
type ReferenceQRer interface {
	ReferenceQR(payment *models.Payment) ([]byte, error)
}

type Handler struct {
	Registry     RegistryAPI
	Ledger       LedgerAPI
	Orchestrator OrchestratorAPI
	Orders       OrderStore
	Auth         auth.Authorizer
	Logger       *logger.Logger
}

func NewHandler(reg RegistryAPI, ledgerSvc LedgerAPI, orch OrchestratorAPI, orders OrderStore, log *logger.Logger) *Handler {
	return &Handler{
		Registry:     reg,
		Ledger:       ledgerSvc,
		Orchestrator: orch,
		Orders:       orders,
		Logger:       log,
	}
}

// ListMethods returns every registered method with the shop's enablement
// resolved.
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")
	h.Logger.Info("API", fmt.Sprintf("ListMethods: shopId=%s", shopID))

	methods, err := h.Registry.ListAll(r.Context(), shopID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMethods: %v", err))
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.MethodListResponse{
		Methods:          methods,
		CorrelationToken: r.Header.Get("Correlation-Token"),
	})
}

// ListAvailableMethods returns the enabled methods whose providers accept
// the checkout described by the query parameters.
func (h *Handler) ListAvailableMethods(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")
	checkout := models.CheckoutContext{
		Currency:  r.URL.Query().Get("currency"),
		Region:    r.URL.Query().Get("region"),
		AuthLevel: r.URL.Query().Get("auth_level"),
	}
	h.Logger.Info("API", fmt.Sprintf("ListAvailableMethods: shopId=%s currency=%s", shopID, checkout.Currency))

	methods, err := h.Registry.AvailableFor(r.Context(), shopID, checkout)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAvailableMethods: %v", err))
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.MethodListResponse{
		Methods:          methods,
		CorrelationToken: r.Header.Get("Correlation-Token"),
	})
}

// SetMethodEnabled persists the shop's enable/disable override for one
// method. Existing payments are unaffected.
func (h *Handler) SetMethodEnabled(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")
	methodName := chi.URLParam(r, "methodName")
	h.Logger.Info("API", fmt.Sprintf("SetMethodEnabled: shopId=%s method=%s", shopID, methodName))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok || !h.Auth.CanOperateOn(actor, shopID) {
		h.Logger.Warn("API", fmt.Sprintf("SetMethodEnabled: actor not authorized for shop %s", shopID))
		http.Error(w, "Not authorized for this shop", http.StatusForbidden)
		return
	}

	var req models.SetMethodEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Registry.SetEnabled(r.Context(), shopID, methodName, req.Enabled); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetMethodEnabled: %v", err))
		h.writeServiceError(w, err)
		return
	}

	methods, err := h.Registry.ListAll(r.Context(), shopID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.MethodListResponse{
		Methods:          methods,
		CorrelationToken: req.CorrelationToken,
	})
}

// CreatePayments records the order's payment batch, all-or-nothing.
func (h *Handler) CreatePayments(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CreatePayments: orderId=%s", orderID))

	var req models.CreatePaymentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePayments: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	payments, err := h.Ledger.Create(r.Context(), orderID, req.Inputs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePayments: %v", err))
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, models.CreatePaymentsResponse{
		Payments:         payments,
		CorrelationToken: req.CorrelationToken,
	})
}

// GetOrderPayments returns the order together with its full ledger.
func (h *Handler) GetOrderPayments(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrderPayments: orderId=%s", orderID))

	order, err := h.Orders.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.writeServiceError(w, err)
		return
	}

	payments, err := h.Ledger.Get(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.OrderViewResponse{
		Order:            *order,
		Payments:         payments,
		CorrelationToken: r.Header.Get("Correlation-Token"),
	})
}

// ApprovePayments applies operator approval to the named payments.
func (h *Handler) ApprovePayments(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, "ApprovePayments", h.Orchestrator.Approve)
}

// CapturePayments triggers the provider captures for the named payments.
func (h *Handler) CapturePayments(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, "CapturePayments", h.Orchestrator.Capture)
}

// CancelPayments voids the named uncaptured payments.
func (h *Handler) CancelPayments(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, "CancelPayments", h.Orchestrator.Cancel)
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request,
	name string,
	action func(ctx context.Context, actor auth.Actor, orderID string, paymentIDs []string) (*models.OrderView, error),
) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("%s: orderId=%s", name, orderID))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing authenticated actor", http.StatusUnauthorized)
		return
	}

	var req models.PaymentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to decode request body: %v", name, err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	view, err := action(r.Context(), actor, orderID, req.PaymentIDs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", name, err))
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.OrderViewResponse{
		Order:            view.Order,
		Payments:         view.Payments,
		CorrelationToken: req.CorrelationToken,
	})
}

// RefundPayment returns part or all of a captured payment.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	h.Logger.Info("API", fmt.Sprintf("RefundPayment: paymentId=%s", paymentID))

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing authenticated actor", http.StatusUnauthorized)
		return
	}

	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	payment, err := h.Orchestrator.Refund(r.Context(), actor, paymentID, req.Amount, req.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RefundPayment: %v", err))
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.RefundResponse{
		Payment:          *payment,
		CorrelationToken: req.CorrelationToken,
	})
}

// GetPaymentQR renders the scannable payment reference for methods that
// settle out of band. Methods that capture online have no reference.
func (h *Handler) GetPaymentQR(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	h.Logger.Info("API", fmt.Sprintf("GetPaymentQR: paymentId=%s", paymentID))

	payment, err := h.Ledger.GetPayment(r.Context(), paymentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	prov, err := h.Registry.Lookup(payment.MethodName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	qrer, ok := prov.(ReferenceQRer)
	if !ok {
		http.Error(w, "Payment method has no scannable reference", http.StatusUnprocessableEntity)
		return
	}

	png, err := qrer.ReferenceQR(payment)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPaymentQR: failed to render QR: %v", err))
		http.Error(w, "Failed to render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPaymentQR: failed to write response: %v", err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidPaymentInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrUnknownMethodName):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrPaymentNotFound), errors.Is(err, ledger.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrLedgerImbalance):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrIllegalStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrLockContended):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, orchestrator.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, orchestrator.ErrRefundFailed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	}
}
