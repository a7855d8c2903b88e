package database

import (
	"errors"
	"fmt"
	"time"

	"agro-payment-svc/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrAlreadyPaid       = errors.New("order already paid by another payment")
	ErrPaymentReused     = errors.New("payment already applied to another order")
)

// applyPaymentUpdate mutates order in place and reports whether anything
// changed. Re-applying the same completed payment is a no-op so that a
// re-submitted proof is safe.
func applyPaymentUpdate(order *models.Order, update models.PaymentUpdate, now time.Time) (bool, error) {
	current := order.PaymentStatus

	if current == models.PaymentStatusCompleted && update.Status == models.PaymentStatusCompleted {
		if update.PaymentID == "" || update.PaymentID == order.PaymentID {
			return false, nil
		}
		return false, ErrAlreadyPaid
	}

	if current == update.Status {
		return false, nil
	}

	if !current.CanTransition(update.Status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, update.Status)
	}

	order.PaymentStatus = update.Status
	if update.PaymentID != "" {
		order.PaymentID = update.PaymentID
	}
	if update.GatewayOrderID != "" {
		order.GatewayOrderID = update.GatewayOrderID
	}
	order.UpdatedAt = now
	return true, nil
}

func prepareNewOrder(order *models.Order, newID func() string, now time.Time) {
	if order.ID == "" {
		order.ID = newID()
	}
	order.PaymentStatus = models.PaymentStatusPending
	if order.OrderStatus == "" {
		order.OrderStatus = models.OrderStatusProcessing
	}
	order.CreatedAt = now
	order.UpdatedAt = now
}

// attachGatewayOrder binds a freshly minted gateway order to a pending order,
// replacing the handle of any earlier attempt.
func attachGatewayOrder(order *models.Order, gatewayOrderID string, now time.Time) error {
	if order.PaymentStatus != models.PaymentStatusPending {
		return fmt.Errorf("%w: cannot attach gateway order to %s order", ErrInvalidTransition, order.PaymentStatus)
	}
	order.GatewayOrderID = gatewayOrderID
	order.UpdatedAt = now
	return nil
}
