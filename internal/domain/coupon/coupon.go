package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeFixed subtracts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
	// TypePercentage subtracts a percentage of the subtotal, optionally
	// clamped to MaxDiscount.
	TypePercentage Type = "percentage"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found or not active.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponNotStarted is returned when a coupon's validity window has
	// not opened yet.
	ErrCouponNotStarted = errors.New("coupon not yet active")
	// ErrCouponExpired is returned when a coupon's validity window has closed.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when the coupon's global cap is exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCustomerLimitReached is returned when the per-customer cap is exhausted.
	ErrCustomerLimitReached = errors.New("coupon usage limit reached for customer")
)

// IneligibleError reports a manual apply on a checkout below the coupon's
// minimum amount. Remaining is how much more the customer must add.
type IneligibleError struct {
	Code      string
	MinAmount decimal.Decimal
	Remaining decimal.Decimal
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum amount of %s (add %s more)",
		e.Code, e.MinAmount.StringFixed(2), e.Remaining.StringFixed(2))
}

// Coupon defines a discount rule and its eligibility constraints.
type Coupon struct {
	Code        string
	Type        Type
	Discount    decimal.Decimal
	MinAmount   decimal.Decimal
	MaxDiscount decimal.Decimal
	DateStart   *time.Time
	DateEnd     *time.Time
	Active      bool
	AutoApply   bool
	// MaxUses caps total redemptions; MaxUsesPerCustomer caps redemptions per
	// customer. Zero means unlimited.
	MaxUses            int
	MaxUsesPerCustomer int
}

// Usage is one append-only redemption ledger row, written exactly once when
// an order with this coupon transitions to paid.
type Usage struct {
	CouponCode     string
	CustomerID     string
	OrderID        string
	DiscountAmount decimal.Decimal
	OrderTotal     decimal.Decimal
	UsedAt         time.Time
}

// Repository provides coupon rule lookups.
type Repository interface {
	// FindByCode resolves a coupon by code (case-insensitive) regardless of
	// active flag; callers check Active themselves to report precise errors.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindAutoApply returns active auto-apply coupons whose validity window
	// covers now, best discount first.
	FindAutoApply(ctx context.Context, now time.Time) ([]Coupon, error)
}

// Ledger counts redemptions from the usage ledger. It is the source of truth
// for usage-cap checks.
type Ledger interface {
	CountUses(ctx context.Context, code string) (int, error)
	CountCustomerUses(ctx context.Context, code, customerID string) (int, error)
}
