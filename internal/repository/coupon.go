package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digikart/digikart/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, discount, min_amount, max_discount,
		date_start, date_end, active, auto_apply, max_uses, max_uses_per_customer`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	findAutoApplySQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE active = TRUE AND auto_apply = TRUE
		  AND (date_start IS NULL OR date_start <= $1)
		  AND (date_end IS NULL OR date_end >= $1)
		ORDER BY discount DESC, code`

	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount, min_amount, max_discount, date_start, date_end, active, auto_apply, max_uses, max_uses_per_customer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount = EXCLUDED.discount,
			min_amount = EXCLUDED.min_amount,
			max_discount = EXCLUDED.max_discount,
			date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end,
			active = EXCLUDED.active,
			auto_apply = EXCLUDED.auto_apply,
			max_uses = EXCLUDED.max_uses,
			max_uses_per_customer = EXCLUDED.max_uses_per_customer`

	countUsesSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_code = $1`

	countCustomerUsesSQL = `SELECT count(*) FROM coupon_usages
		WHERE coupon_code = $1 AND customer_id = $2`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Ledger     = (*CouponRepository)(nil)
)

// CouponRepository implements both the coupon rule lookup and the usage
// ledger counts backed by PostgreSQL. Usage rows themselves are written by
// OrderRepository.MarkPaid inside the paid transition's transaction.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return c, nil
}

// FindAutoApply returns active auto-apply coupons valid at the given time,
// best discount first.
func (r *CouponRepository) FindAutoApply(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findAutoApplySQL, now)
	if err != nil {
		return nil, fmt.Errorf("finding auto-apply coupons: %w", err)
	}

	ptrs, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("finding auto-apply coupons: %w", err)
	}
	coupons := make([]coupon.Coupon, len(ptrs))
	for i, p := range ptrs {
		coupons[i] = *p
	}
	return coupons, nil
}

// Upsert creates or replaces a coupon rule. Used by the seed and ingest
// tools.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.Type), c.Discount, c.MinAmount, c.MaxDiscount,
		c.DateStart, c.DateEnd, c.Active, c.AutoApply, c.MaxUses, c.MaxUsesPerCustomer,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// CountUses returns the global redemption count for a coupon.
func (r *CouponRepository) CountUses(ctx context.Context, code string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsesSQL, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of coupon %q: %w", code, err)
	}
	return n, nil
}

// CountCustomerUses returns the per-customer redemption count for a coupon.
func (r *CouponRepository) CountCustomerUses(ctx context.Context, code, customerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCustomerUsesSQL, code, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting customer uses of coupon %q: %w", code, err)
	}
	return n, nil
}

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.Code, &discountType, &c.Discount, &c.MinAmount, &c.MaxDiscount,
		&c.DateStart, &c.DateEnd, &c.Active, &c.AutoApply, &c.MaxUses, &c.MaxUsesPerCustomer,
	)
	if err != nil {
		return nil, err
	}
	c.Type = coupon.Type(discountType)
	return &c, nil
}
