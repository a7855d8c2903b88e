package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agro-payment-svc/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const orderColumns = "id, user_id, payment_method, payment_status, order_status, total_amount, street, city, state, pin_code, payment_id, gateway_order_id, created_at, updated_at"

// OrderRepository is the PostgreSQL order store.
type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	prepareNewOrder(order, uuid.NewString, r.now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	addr := order.ShippingAddress
	err = tx.QueryRowContext(ctx,
		"INSERT INTO orders (id, user_id, payment_method, payment_status, order_status, total_amount, street, city, state, pin_code, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING created_at, updated_at",
		order.ID, order.UserID, order.PaymentMethod, order.PaymentStatus, order.OrderStatus, order.TotalAmount,
		addr.Street, addr.City, addr.State, addr.PinCode, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Products {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, variant, price, discount_percent, quantity) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			order.ID, item.ProductID, item.Name, item.Variant, item.Price, item.DiscountPercent, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	return order, r.loadItems(ctx, order)
}

// GetOrderByGatewayOrderID finds the order a gateway order was minted for.
func (r *OrderRepository) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	if gatewayOrderID == "" {
		return nil, ErrOrderNotFound
	}
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE gateway_order_id = $1", gatewayOrderID))
	if err != nil {
		return nil, err
	}
	return order, r.loadItems(ctx, order)
}

func (r *OrderRepository) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, name, variant, price, discount_percent, quantity FROM order_items WHERE order_id = $1 ORDER BY id",
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Variant, &item.Price, &item.DiscountPercent, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Products = append(order.Products, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read order items: %w", err)
	}
	return nil
}

// AttachGatewayOrder records the gateway order minted for a pending order.
func (r *OrderRepository) AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if err := attachGatewayOrder(order, gatewayOrderID, r.now()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET gateway_order_id = $1, updated_at = $2 WHERE id = $3",
		order.GatewayOrderID, order.UpdatedAt, order.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to attach gateway order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit gateway order: %w", err)
	}
	return order, nil
}

// UpdatePaymentStatus applies update under a row lock. The returned order
// carries the header fields only; line items are not reloaded.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, update models.PaymentUpdate) (*models.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, false, err
	}

	changed, err := applyPaymentUpdate(order, update, r.now())
	if err != nil || !changed {
		return order, false, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, payment_id = $2, gateway_order_id = $3, updated_at = $4 WHERE id = $5",
		order.PaymentStatus, order.PaymentID, order.GatewayOrderID, order.UpdatedAt, order.ID,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil, false, ErrPaymentReused
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit payment status: %w", err)
	}
	return order, true, nil
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.PaymentMethod, &o.PaymentStatus, &o.OrderStatus, &o.TotalAmount,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State, &o.ShippingAddress.PinCode,
		&o.PaymentID, &o.GatewayOrderID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}
