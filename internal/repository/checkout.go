package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/checkout"
)

const (
	createCheckoutSQL = `INSERT INTO checkouts
		(id, customer_id, items, subtotal, discount, total_amount, coupon_code, status, billing, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getCheckoutSQL = `SELECT id, customer_id, items, subtotal, discount, total_amount,
		coupon_code, status, billing, expires_at, created_at
		FROM checkouts WHERE id = $1`

	findPendingCheckoutSQL = `SELECT id, customer_id, items, subtotal, discount, total_amount,
		coupon_code, status, billing, expires_at, created_at
		FROM checkouts WHERE customer_id = $1 AND status = 'pending'`

	updateCheckoutStatusSQL = `UPDATE checkouts SET status = $3 WHERE id = $1 AND status = $2`

	setCheckoutCouponSQL = `UPDATE checkouts
		SET coupon_code = $2, discount = $3, total_amount = $4
		WHERE id = $1 AND status = 'pending'`

	cancelExpiredCheckoutsSQL = `UPDATE checkouts SET status = 'cancelled'
		WHERE status = 'pending' AND expires_at < $1`
)

var _ checkout.Repository = (*CheckoutRepository)(nil)

// CheckoutRepository implements checkout.Repository backed by PostgreSQL.
type CheckoutRepository struct {
	pool *pgxpool.Pool
}

// NewCheckoutRepository returns a CheckoutRepository that uses the given pool.
func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

// Create persists a new checkout with its priced snapshot. The partial
// unique index on (customer_id) WHERE status='pending' enforces the
// one-pending-per-customer invariant at the store level.
func (r *CheckoutRepository) Create(ctx context.Context, c *checkout.Checkout) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling checkout items: %w", err)
	}
	var billingJSON []byte
	if c.Billing != nil {
		if billingJSON, err = json.Marshal(c.Billing); err != nil {
			return fmt.Errorf("marshaling billing snapshot: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, createCheckoutSQL,
		c.ID, c.CustomerID, itemsJSON, c.Subtotal, c.Discount, c.TotalAmount,
		c.CouponCode, string(c.Status), billingJSON, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating checkout %q: %w", c.ID, err)
	}
	return nil
}

// Get loads a checkout by id. Returns checkout.ErrNotFound when absent.
func (r *CheckoutRepository) Get(ctx context.Context, id string) (*checkout.Checkout, error) {
	rows, err := r.pool.Query(ctx, getCheckoutSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting checkout %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCheckout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrNotFound
		}
		return nil, fmt.Errorf("getting checkout %q: %w", id, err)
	}
	return c, nil
}

// FindPendingByCustomer returns the customer's pending checkout, or
// checkout.ErrNotFound.
func (r *CheckoutRepository) FindPendingByCustomer(ctx context.Context, customerID string) (*checkout.Checkout, error) {
	rows, err := r.pool.Query(ctx, findPendingCheckoutSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("finding pending checkout for %q: %w", customerID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCheckout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrNotFound
		}
		return nil, fmt.Errorf("finding pending checkout for %q: %w", customerID, err)
	}
	return c, nil
}

// UpdateStatus performs a compare-and-set transition and reports whether the
// row moved.
func (r *CheckoutRepository) UpdateStatus(ctx context.Context, id string, from, to checkout.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, updateCheckoutStatusSQL, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("updating checkout %q status: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetCoupon updates the coupon attachment and totals of a pending checkout.
func (r *CheckoutRepository) SetCoupon(ctx context.Context, id, code string, discount, total decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, setCheckoutCouponSQL, id, code, discount, total)
	if err != nil {
		return fmt.Errorf("setting coupon on checkout %q: %w", id, err)
	}
	return nil
}

// CancelExpired sweeps pending checkouts past their deadline. The status
// guard in the WHERE clause means a checkout that progressed to paid is
// never touched, no matter how stale its deadline.
func (r *CheckoutRepository) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, cancelExpiredCheckoutsSQL, now)
	if err != nil {
		return 0, fmt.Errorf("cancelling expired checkouts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCheckout(row pgx.CollectableRow) (*checkout.Checkout, error) {
	var (
		c          checkout.Checkout
		status     string
		itemsRaw   []byte
		billingRaw []byte
	)
	err := row.Scan(
		&c.ID, &c.CustomerID, &itemsRaw, &c.Subtotal, &c.Discount, &c.TotalAmount,
		&c.CouponCode, &status, &billingRaw, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = checkout.Status(status)
	if err := json.Unmarshal(itemsRaw, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling checkout items: %w", err)
	}
	if len(billingRaw) > 0 {
		c.Billing = &checkout.Address{}
		if err := json.Unmarshal(billingRaw, c.Billing); err != nil {
			return nil, fmt.Errorf("unmarshaling billing snapshot: %w", err)
		}
	}
	return &c, nil
}
