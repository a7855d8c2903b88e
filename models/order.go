package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodRazorpay
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "payment_failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// OrderStatus tracks fulfilment, which is owned by the admin tooling.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusFailed:    {PaymentStatusPending, PaymentStatusCompleted, PaymentStatusCancelled},
	PaymentStatusCompleted: {},
	PaymentStatusCancelled: {},
}

// CanTransition reports whether a payment status may move from one state to
// another. Re-applying completed is handled by the store, not here.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	PinCode string `json:"pinCode"`
}

type LineItem struct {
	ProductID       string  `json:"productId"`
	Name            string  `json:"name"`
	Variant         string  `json:"variant"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discountPercent"`
	Quantity        int     `json:"quantity"`
}

// Order is the storefront's own record of a purchase. TotalAmount is in
// whole rupees.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Products        []LineItem      `json:"products"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	OrderStatus     OrderStatus     `json:"orderStatus"`
	TotalAmount     int64           `json:"totalAmount"`
	PaymentID       string          `json:"paymentId,omitempty"`
	GatewayOrderID  string          `json:"gatewayOrderId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PaymentUpdate is the only mutation the payment flow applies to an order.
type PaymentUpdate struct {
	Status         PaymentStatus
	PaymentID      string
	GatewayOrderID string
}
