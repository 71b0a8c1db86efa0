package provider

import (
	"context"
	"fmt"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/qr"
	"ms-payments/internal/utils"
)

// BankTransferMethodData tells the storefront which account the shopper
// transfers to and that a reference QR will be issued.
type BankTransferMethodData struct {
	BeneficiaryName string   `json:"beneficiary_name"`
	IBAN            string   `json:"iban"`
	Currencies      []string `json:"currencies"`
}

func (BankTransferMethodData) MethodDataOf() string { return "banktransfer" }

// BankTransferProvider settles payments by manual bank transfer. The
// operator captures once the transfer shows up on the account, matched by
// the encrypted reference QR handed to the shopper. Transfers cannot be
// pulled back, so the method declares canRefund = false.
type BankTransferProvider struct {
	qrgen      *qr.QRGenerator
	log        *logger.Logger
	currencies map[string]bool
}

func NewBankTransferProvider(qrgen *qr.QRGenerator, log *logger.Logger, currencies ...string) *BankTransferProvider {
	if len(currencies) == 0 {
		currencies = []string{"EUR"}
	}
	supported := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		supported[c] = true
	}
	return &BankTransferProvider{qrgen: qrgen, log: log, currencies: supported}
}

func (p *BankTransferProvider) Name() string        { return "banktransfer" }
func (p *BankTransferProvider) PluginName() string  { return "payments-banktransfer" }
func (p *BankTransferProvider) DisplayName() string { return "Bank transfer" }
func (p *BankTransferProvider) CanRefund() bool     { return false }

func (p *BankTransferProvider) EnabledByDefault() bool { return false }

func (p *BankTransferProvider) Available(ctx models.CheckoutContext) bool {
	return p.currencies[ctx.Currency]
}

func (p *BankTransferProvider) MethodData() models.MethodData {
	currencies := make([]string, 0, len(p.currencies))
	for c := range p.currencies {
		currencies = append(currencies, c)
	}
	return BankTransferMethodData{
		BeneficiaryName: "Commerce Platform Settlement",
		IBAN:            "DE02120300000000202051",
		Currencies:      currencies,
	}
}

func (p *BankTransferProvider) Capture(ctx context.Context, payment *models.Payment) (*CaptureResult, error) {
	if !p.currencies[payment.Currency] {
		return nil, &Error{
			Code:    "currency_unsupported",
			Message: fmt.Sprintf("bank transfer does not settle in %s", payment.Currency),
		}
	}

	reference := utils.GenerateTransactionID()
	p.log.LogProvider("banktransfer", "CAPTURE", fmt.Sprintf("Payment %s captured against transfer reference %s", payment.PaymentID, reference))
	return &CaptureResult{TransactionID: reference}, nil
}

func (p *BankTransferProvider) Refund(ctx context.Context, payment *models.Payment, amount int64) (*RefundResult, error) {
	return nil, &Error{Code: "refund_unsupported", Message: "bank transfers cannot be refunded through the processor"}
}

// ReferenceQR renders the encrypted reference QR for a captured payment.
func (p *BankTransferProvider) ReferenceQR(payment *models.Payment) ([]byte, error) {
	return p.qrgen.GenerateEncryptedQR(qr.PaymentReference{
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Reference: payment.TransactionID,
	})
}
