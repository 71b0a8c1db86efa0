package models

// MethodData is the provider-declared display payload of a payment method.
// Each provider contributes its own concrete variant; the set is open and
// resolved through the live registry, not a closed enum.
type MethodData interface {
	MethodDataOf() string
}

// PaymentMethod is the shop-facing view of a registered provider.
type PaymentMethod struct {
	Name        string     `json:"name"`
	PluginName  string     `json:"plugin_name"`
	DisplayName string     `json:"display_name"`
	CanRefund   bool       `json:"can_refund"`
	IsEnabled   bool       `json:"is_enabled"`
	Data        MethodData `json:"data,omitempty"`
}

// CheckoutContext carries the checkout attributes availability is filtered on.
type CheckoutContext struct {
	Currency  string `json:"currency"`
	Region    string `json:"region"`
	AuthLevel string `json:"auth_level"`
}
