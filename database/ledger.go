package database

import (
	"context"
	"database/sql"
	"fmt"

	"agro-payment-svc/models"
)

// RecordPaymentEvent appends event to the payments ledger. Replays of the
// same event are ignored.
func RecordPaymentEvent(ctx context.Context, db *sql.DB, event models.PaymentEvent) (bool, error) {
	result, err := db.ExecContext(ctx,
		"INSERT INTO payments (order_id, user_id, gateway_order_id, payment_id, amount, status, event_type, source, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (order_id, event_type, payment_id) DO NOTHING",
		event.OrderID, event.UserID, event.GatewayOrderID, event.PaymentID, event.Amount, event.Status, event.EventType, event.Source, event.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record payment event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read ledger result: %w", err)
	}
	return n > 0, nil
}
