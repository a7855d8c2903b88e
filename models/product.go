package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProductSchemaVersion is bumped whenever the product document layout changes.
const ProductSchemaVersion = 2

type Variant struct {
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Product carries one price per variant label ("1kg", "5kg", ...). A product
// sold in a single size has exactly one entry.
type Product struct {
	ID              string             `json:"id"`
	SchemaVersion   int                `json:"schemaVersion"`
	Name            string             `json:"name"`
	Category        string             `json:"category"`
	Images          []string           `json:"images"`
	DiscountPercent decimal.Decimal    `json:"discountPercent"`
	Variants        map[string]Variant `json:"variants"`
}

func (p Product) Variant(label string) (Variant, error) {
	v, ok := p.Variants[label]
	if !ok {
		return Variant{}, fmt.Errorf("product %s has no variant %q", p.ID, label)
	}
	return v, nil
}

type CartItem struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Variant         string          `json:"variant"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Quantity        int             `json:"quantity"`
	AddedAt         time.Time       `json:"addedAt"`
}

// LineItem snapshots a cart entry onto an order.
func (i CartItem) LineItem() LineItem {
	return LineItem{
		ProductID:       i.ProductID,
		Name:            i.Name,
		Variant:         i.Variant,
		Price:           i.UnitPrice.InexactFloat64(),
		DiscountPercent: i.DiscountPercent.InexactFloat64(),
		Quantity:        i.Quantity,
	}
}
