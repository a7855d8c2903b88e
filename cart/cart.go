package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"agro-payment-svc/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrOutOfStock      = errors.New("requested quantity exceeds stock")
	ErrItemNotFound    = errors.New("item not in cart")
	ErrNotFound        = errors.New("cart not found")
)

// Storage persists the serialized cart. Load returns ErrNotFound for a key
// that was never saved.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

var hundred = decimal.NewFromInt(100)

// Cart is one shopper's cart. Every mutation is written through to storage.
type Cart struct {
	mu      sync.Mutex
	storage Storage
	key     string
	items   []models.CartItem
	now     func() time.Time
}

// Open loads the cart stored under key, or starts an empty one.
func Open(ctx context.Context, storage Storage, key string) (*Cart, error) {
	c := &Cart{storage: storage, key: key, now: time.Now}

	data, err := storage.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := json.Unmarshal(data, &c.items); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return c, nil
}

func (c *Cart) Add(ctx context.Context, product models.Product, variant string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	v, err := product.Variant(variant)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	items := append([]models.CartItem(nil), c.items...)
	if i := indexOf(items, product.ID, variant); i >= 0 {
		if items[i].Quantity+quantity > v.Stock {
			return ErrOutOfStock
		}
		items[i].Quantity += quantity
	} else {
		if quantity > v.Stock {
			return ErrOutOfStock
		}
		items = append(items, models.CartItem{
			ProductID:       product.ID,
			Name:            product.Name,
			Variant:         variant,
			UnitPrice:       v.Price,
			DiscountPercent: product.DiscountPercent,
			Quantity:        quantity,
			AddedAt:         c.now().UTC(),
		})
	}
	return c.commit(ctx, items)
}

func (c *Cart) Remove(ctx context.Context, productID, variant string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.items, productID, variant)
	if i < 0 {
		return ErrItemNotFound
	}
	items := append(append([]models.CartItem(nil), c.items[:i]...), c.items[i+1:]...)
	return c.commit(ctx, items)
}

func (c *Cart) UpdateQuantity(ctx context.Context, productID, variant string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.items, productID, variant)
	if i < 0 {
		return ErrItemNotFound
	}
	items := append([]models.CartItem(nil), c.items...)
	items[i].Quantity = quantity
	return c.commit(ctx, items)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	c.items = nil
	return nil
}

func (c *Cart) Items() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CartItem(nil), c.items...)
}

func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

// Total is the amount charged for the cart in whole rupees.
func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Total(c.items)
}

// Total sums price * (1 - discount/100) * quantity over items and rounds
// half up once, on the final sum. Rounding per line would drift from the
// amount authorized with the gateway.
func Total(items []models.CartItem) int64 {
	sum := decimal.Zero
	for _, item := range items {
		price := item.UnitPrice
		if !item.DiscountPercent.IsZero() {
			price = price.Mul(decimal.NewFromInt(1).Sub(item.DiscountPercent.Div(hundred)))
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum.Round(0).IntPart()
}

// commit persists items before making them visible, so a failed write
// leaves the in-memory cart unchanged.
func (c *Cart) commit(ctx context.Context, items []models.CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := c.storage.Save(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	c.items = items
	return nil
}

func indexOf(items []models.CartItem, productID, variant string) int {
	for i, item := range items {
		if item.ProductID == productID && item.Variant == variant {
			return i
		}
	}
	return -1
}
