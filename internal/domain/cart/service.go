package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/digikart/digikart/internal/domain/product"
)

// Service mutates carts, pricing added items against the current catalog.
type Service struct {
	carts   Repository
	catalog product.Repository
	now     func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, catalog product.Repository) *Service {
	return &Service{carts: carts, catalog: catalog, now: time.Now}
}

// Get returns the customer's cart. A customer without a cart gets an empty one.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	c, err := s.carts.GetByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{CustomerID: customerID}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds one unit of the given design option to the customer's cart,
// creating the cart if needed. Adding an option already present bumps its
// quantity instead of duplicating the line.
func (s *Service) AddItem(ctx context.Context, customerID, productID, optionID string) (*Cart, error) {
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup product")
	}
	opt := p.Option(optionID)
	if opt == nil {
		if optionID != "" || len(p.Options) == 0 {
			return nil, product.ErrNotFound
		}
		opt = &p.Options[0]
	}

	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range c.Items {
		if c.Items[i].ProductID == p.ID && c.Items[i].OptionID == opt.ID {
			c.Items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		c.Items = append(c.Items, Item{
			ProductID: p.ID,
			OptionID:  opt.ID,
			Name:      p.Name + " / " + opt.Name,
			UnitPrice: opt.Price,
			Quantity:  1,
		})
	}
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// RemoveItem drops all lines for the given product (and option, when set).
func (s *Service) RemoveItem(ctx context.Context, customerID, productID, optionID string) (*Cart, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID == productID && (optionID == "" || it.OptionID == optionID) {
			continue
		}
		kept = append(kept, it)
	}
	c.Items = kept
	c.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Clear removes every item from the customer's cart.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	if err := s.carts.Clear(ctx, customerID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
