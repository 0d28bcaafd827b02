package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digikart/digikart/internal/domain/cart"
)

const (
	getCartSQL = `SELECT customer_id, items, updated_at FROM carts WHERE customer_id = $1`

	upsertCartSQL = `INSERT INTO carts (customer_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`

	clearCartSQL = `UPDATE carts SET items = '[]', updated_at = now() WHERE customer_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Items are
// stored as a JSONB document per customer.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByCustomer loads the customer's cart.
// Returns cart.ErrNotFound when the customer has no cart row.
func (r *CartRepository) GetByCustomer(ctx context.Context, customerID string) (*cart.Cart, error) {
	var (
		c        cart.Cart
		itemsRaw []byte
	)
	err := r.pool.QueryRow(ctx, getCartSQL, customerID).Scan(&c.CustomerID, &itemsRaw, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for %q: %w", customerID, err)
	}

	if err := json.Unmarshal(itemsRaw, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	return &c, nil
}

// Save upserts the cart's full item list.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	if _, err := r.pool.Exec(ctx, upsertCartSQL, c.CustomerID, itemsJSON, c.UpdatedAt); err != nil {
		return fmt.Errorf("saving cart for %q: %w", c.CustomerID, err)
	}
	return nil
}

// Clear empties the customer's cart. Clearing an absent cart is a no-op.
func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, customerID); err != nil {
		return fmt.Errorf("clearing cart for %q: %w", customerID, err)
	}
	return nil
}
