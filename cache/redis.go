package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agro-payment-svc/cart"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(addr, password string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// CartStorage keeps serialized carts under cart:<key>. Abandoned carts
// expire after ttl.
type CartStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartStorage(rdb *redis.Client, ttl time.Duration) *CartStorage {
	return &CartStorage{rdb: rdb, ttl: ttl}
}

func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, cartKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNotFound
	}
	return data, err
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	return s.rdb.Set(ctx, cartKey(key), data, s.ttl).Err()
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, cartKey(key)).Err()
}

func cartKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}

// EventDeduplicator remembers processed gateway webhook deliveries.
type EventDeduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEventDeduplicator(rdb *redis.Client, ttl time.Duration) *EventDeduplicator {
	return &EventDeduplicator{rdb: rdb, ttl: ttl}
}

// Claim returns true the first time eventID is seen within the TTL.
func (d *EventDeduplicator) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, webhookKey(eventID), time.Now().Unix(), d.ttl).Result()
}

// Release forgets eventID so a failed delivery can be processed on retry.
func (d *EventDeduplicator) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, webhookKey(eventID)).Err()
}

func webhookKey(eventID string) string {
	return fmt.Sprintf("webhook:razorpay:%s", eventID)
}
