package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a customer has no cart yet.
var ErrNotFound = errors.New("cart not found")

// Item is a single design variant in the cart. UnitPrice is the price at the
// time the item was added and is display-only: checkout re-reads the catalog.
type Item struct {
	ProductID string          `json:"product_id"`
	OptionID  string          `json:"option_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Cart holds a customer's selected items. It is created lazily on first add
// and persists across sessions until cleared on successful payment.
type Cart struct {
	CustomerID string
	Items      []Item
	UpdatedAt  time.Time
}

// Subtotal is derived from the items, never stored.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Count returns the total quantity across all items.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Repository defines persistence operations for carts.
type Repository interface {
	GetByCustomer(ctx context.Context, customerID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, customerID string) error
}
