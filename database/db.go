package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		order_status VARCHAR(32) NOT NULL DEFAULT 'processing',
		total_amount BIGINT NOT NULL,
		street TEXT NOT NULL,
		city VARCHAR(255) NOT NULL,
		state VARCHAR(255) NOT NULL,
		pin_code VARCHAR(16) NOT NULL,
		payment_id VARCHAR(64) NOT NULL DEFAULT '',
		gateway_order_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_payment_id_key ON orders (payment_id) WHERE payment_id <> '';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_gateway_order_id_key ON orders (gateway_order_id) WHERE gateway_order_id <> '';`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		variant VARCHAR(64) NOT NULL DEFAULT '',
		price DECIMAL(10, 2) NOT NULL,
		discount_percent DECIMAL(5, 2) NOT NULL DEFAULT 0,
		quantity INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		gateway_order_id VARCHAR(64) NOT NULL DEFAULT '',
		payment_id VARCHAR(64) NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		source VARCHAR(16) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (order_id, event_type, payment_id)
	);`,
}

func InitDB(dsn string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
