package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"agro-payment-svc/database"
	"agro-payment-svc/models"

	"go.uber.org/zap"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrNotRetryable = errors.New("order is not awaiting a payment retry")
)

// OrderStore persists the shopper's pending orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, update models.PaymentUpdate) (*models.Order, bool, error)
}

type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, amount int64, orderID string) (*models.GatewayOrderHandle, error)
	VerifyPayment(ctx context.Context, orderID string, proof models.PaymentProof) (*models.VerifyPaymentResponse, error)
}

// Cart is the checkout's view of the shopper's cart.
type Cart interface {
	Items() []models.CartItem
	Total() int64
	Clear(ctx context.Context) error
}

type Request struct {
	UserID          string
	Email           string
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
}

// Confirmation is what the confirmation view shows.
type Confirmation struct {
	OrderID       string
	PaymentMethod models.PaymentMethod
	PaymentID     string
	TotalAmount   int64
}

// ValidationError maps form fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid checkout form: " + strings.Join(names, ", ")
}

// PaymentError is a failed gateway payment. The order is kept and, when
// Retryable, can be paid again with Initiator.Retry.
type PaymentError struct {
	OrderID   string
	Reason    string
	Retryable bool
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment for order %s failed: %s", e.OrderID, e.Reason)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

type Initiator struct {
	orders   OrderStore
	payments PaymentService
	ui       GatewayUI
	logger   *zap.Logger

	verifyAttempts int
	verifyBackoff  time.Duration
}

func NewInitiator(orders OrderStore, payments PaymentService, ui GatewayUI, logger *zap.Logger) *Initiator {
	return &Initiator{
		orders:         orders,
		payments:       payments,
		ui:             ui,
		logger:         logger,
		verifyAttempts: 3,
		verifyBackoff:  500 * time.Millisecond,
	}
}

// Checkout places an order for the cart. Cash on delivery completes at
// once; gateway payments complete only after the server verifies the proof.
func (i *Initiator) Checkout(ctx context.Context, cart Cart, req Request) (*Confirmation, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	items := cart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	order := &models.Order{
		UserID:          req.UserID,
		Products:        make([]models.LineItem, 0, len(items)),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     cart.Total(),
	}
	for _, item := range items {
		order.Products = append(order.Products, item.LineItem())
	}

	if err := i.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	i.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.Int64("total_amount", order.TotalAmount),
	)

	if order.PaymentMethod == models.PaymentMethodCOD {
		if _, _, err := i.orders.UpdatePaymentStatus(ctx, order.ID, models.PaymentUpdate{Status: models.PaymentStatusCompleted}); err != nil {
			return nil, fmt.Errorf("failed to confirm order: %w", err)
		}
		i.clearCart(ctx, cart)
		return &Confirmation{
			OrderID:       order.ID,
			PaymentMethod: order.PaymentMethod,
			TotalAmount:   order.TotalAmount,
		}, nil
	}

	return i.pay(ctx, cart, order, req.Email)
}

// Retry starts a fresh gateway payment for an order whose last attempt
// failed. A new gateway order is always minted.
func (i *Initiator) Retry(ctx context.Context, cart Cart, orderID, email string) (*Confirmation, error) {
	order, err := i.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.PaymentMethod != models.PaymentMethodRazorpay || order.PaymentStatus != models.PaymentStatusFailed {
		return nil, ErrNotRetryable
	}

	order, _, err = i.orders.UpdatePaymentStatus(ctx, orderID, models.PaymentUpdate{Status: models.PaymentStatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to reopen order: %w", err)
	}
	return i.pay(ctx, cart, order, email)
}

func (i *Initiator) pay(ctx context.Context, cart Cart, order *models.Order, email string) (*Confirmation, error) {
	handle, err := i.payments.CreatePaymentOrder(ctx, order.TotalAmount, order.ID)
	if err != nil {
		i.markFailed(ctx, order.ID)
		return nil, &PaymentError{OrderID: order.ID, Reason: "Could not start payment", Retryable: true, Err: err}
	}

	proof, err := i.ui.Open(ctx, *handle, Prefill{Email: email, OrderID: order.ID})
	if err != nil {
		i.markFailed(ctx, order.ID)
		reason := "Payment was not completed"
		var failure *GatewayFailure
		if errors.As(err, &failure) && failure.Reason != "" {
			reason = failure.Reason
		}
		return nil, &PaymentError{OrderID: order.ID, Reason: reason, Retryable: true, Err: err}
	}

	resp, err := i.verify(ctx, order.ID, *proof)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			// The proof was rejected, so a fresh attempt can still succeed.
			i.markFailed(ctx, order.ID)
			return nil, &PaymentError{OrderID: order.ID, Reason: apiErr.Message, Retryable: true, Err: err}
		}
		if apiErr != nil && !apiErr.Temporary() {
			i.logger.Warn("Payment verification refused",
				zap.String("order_id", order.ID),
				zap.Int("status", apiErr.StatusCode),
				zap.String("reason", apiErr.Message),
			)
			return nil, &PaymentError{OrderID: order.ID, Reason: apiErr.Message, Retryable: false, Err: err}
		}
		// The payment may have gone through; the order stays pending until the
		// gateway webhook settles it.
		i.logger.Warn("Payment verification did not complete",
			zap.String("order_id", order.ID),
			zap.String("payment_id", proof.GatewayPaymentID),
			zap.Error(err),
		)
		return nil, &PaymentError{OrderID: order.ID, Reason: "Could not confirm payment", Retryable: false, Err: err}
	}

	i.clearCart(ctx, cart)
	i.logger.Info("Payment completed",
		zap.String("order_id", resp.OrderID),
		zap.String("payment_id", proof.GatewayPaymentID),
	)
	return &Confirmation{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		PaymentID:     proof.GatewayPaymentID,
		TotalAmount:   order.TotalAmount,
	}, nil
}

// verify re-submits the same proof while the failure is transient.
func (i *Initiator) verify(ctx context.Context, orderID string, proof models.PaymentProof) (*models.VerifyPaymentResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= i.verifyAttempts; attempt++ {
		resp, err := i.payments.VerifyPayment(ctx, orderID, proof)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return nil, err
		}
		if attempt < i.verifyAttempts {
			backoff := time.Duration(attempt) * i.verifyBackoff
			i.logger.Warn("Retrying payment verification",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", i.verifyAttempts, lastErr)
}

func (i *Initiator) markFailed(ctx context.Context, orderID string) {
	_, _, err := i.orders.UpdatePaymentStatus(ctx, orderID, models.PaymentUpdate{Status: models.PaymentStatusFailed})
	if err != nil && !errors.Is(err, database.ErrInvalidTransition) {
		i.logger.Error("Failed to mark order payment_failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (i *Initiator) clearCart(ctx context.Context, cart Cart) {
	if err := cart.Clear(ctx); err != nil {
		i.logger.Warn("Failed to clear cart", zap.Error(err))
	}
}

func validate(req Request) error {
	fields := make(map[string]string)
	addr := req.ShippingAddress
	if strings.TrimSpace(addr.Street) == "" {
		fields["street"] = "Street address is required"
	}
	if strings.TrimSpace(addr.City) == "" {
		fields["city"] = "City is required"
	}
	if strings.TrimSpace(addr.State) == "" {
		fields["state"] = "State is required"
	}
	if strings.TrimSpace(addr.PinCode) == "" {
		fields["pinCode"] = "PIN code is required"
	}
	if !req.PaymentMethod.Valid() {
		fields["paymentMethod"] = "Select a payment method"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
