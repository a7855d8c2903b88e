package database

import (
	"context"
	"sync"
	"time"

	"agro-payment-svc/models"

	"github.com/google/uuid"
)

// MemoryOrderStore is an in-process order store with the same transition
// rules as OrderRepository. Used by the checkout client in tests and local
// runs without PostgreSQL.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]models.Order
	now    func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[string]models.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareNewOrder(order, uuid.NewString, s.now())
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *MemoryOrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *MemoryOrderStore) UpdatePaymentStatus(ctx context.Context, id string, update models.PaymentUpdate) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, false, ErrOrderNotFound
	}

	if update.PaymentID != "" && update.PaymentID != order.PaymentID {
		for otherID, other := range s.orders {
			if otherID != id && other.PaymentID == update.PaymentID {
				out := cloneOrder(order)
				return &out, false, ErrPaymentReused
			}
		}
	}

	changed, err := applyPaymentUpdate(&order, update, s.now())
	if err != nil {
		out := cloneOrder(s.orders[id])
		return &out, false, err
	}
	if changed {
		s.orders[id] = order
	}
	out := cloneOrder(order)
	return &out, changed, nil
}

func (s *MemoryOrderStore) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gatewayOrderID != "" {
		for _, order := range s.orders {
			if order.GatewayOrderID == gatewayOrderID {
				out := cloneOrder(order)
				return &out, nil
			}
		}
	}
	return nil, ErrOrderNotFound
}

func (s *MemoryOrderStore) AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := attachGatewayOrder(&order, gatewayOrderID, s.now()); err != nil {
		return nil, err
	}
	s.orders[id] = order
	out := cloneOrder(order)
	return &out, nil
}

func cloneOrder(o models.Order) models.Order {
	o.Products = append([]models.LineItem(nil), o.Products...)
	return o
}
