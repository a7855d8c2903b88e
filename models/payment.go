package models

import "time"

// GatewayOrderHandle is what the client needs to open the gateway checkout.
// Amount is in paise.
type GatewayOrderHandle struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
}

type PaymentProof struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

type CallerIdentity struct {
	UserID string
	Email  string
}

type CreatePaymentOrderRequest struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency"`
	OrderID  string   `json:"orderId"`
	Receipt  string   `json:"receipt"`
}

type VerifyPaymentRequest struct {
	PaymentProof
	OrderID string `json:"firebaseOrderId"`
}

type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

const (
	EventPaymentVerified = "payment_verified"
	EventPaymentFailed   = "payment_failed"
	EventPaymentCaptured = "payment_captured"
)

type PaymentEvent struct {
	EventType      string        `json:"event_type"`
	OrderID        string        `json:"order_id"`
	UserID         string        `json:"user_id"`
	GatewayOrderID string        `json:"gateway_order_id"`
	PaymentID      string        `json:"payment_id"`
	Amount         int64         `json:"amount"`
	Status         PaymentStatus `json:"status"`
	Source         string        `json:"source"` // verify, webhook
	OccurredAt     time.Time     `json:"occurred_at"`
}
