// internal/domain/payment/dto.go
package payment

type CreateCheckoutRequest struct {
	Tier   string `json:"tier" binding:"required"`
	Months int    `json:"months" binding:"required"`
}

type RenewCheckoutRequest struct {
	Months int `json:"months"`
}

// CallbackRequest is posted by the gateway when a payment settles.
type CallbackRequest struct {
	TransactionID string        `json:"transaction_id" binding:"required"`
	Status        GatewayStatus `json:"status" binding:"required,oneof=completed failed"`
	Reason        string        `json:"reason"`
}

type PaymentHistoryQuery struct {
	Limit int `form:"limit"`
}

// Outcome is returned to the caller after a payment result was applied.
type Outcome struct {
	Transaction *Transaction `json:"transaction"`
	// Replayed is true when the transaction id had already been applied.
	Replayed bool `json:"replayed"`
}
