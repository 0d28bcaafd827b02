package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or option does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item: a digital design sold in one or more file
// variants (options). The catalog itself is managed elsewhere; this core
// only reads it.
type Product struct {
	ID       string
	Name     string
	Category string
	Options  []Option
}

// Option is a purchasable variant of a design, carrying its current price
// and the path of the downloadable file on the storage backend.
type Option struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	FilePath string
}

// Option returns the option with the given id, or nil when the product has
// no such option.
func (p *Product) Option(id string) *Option {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}

// Repository defines read operations against the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
