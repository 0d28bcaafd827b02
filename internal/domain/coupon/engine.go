package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Evaluation is the outcome of an auto-apply pass. Ineligibility is data
// here, not an error: the customer never asked for a code, so the engine
// only informs.
type Evaluation struct {
	Applied  bool
	Code     string
	Discount decimal.Decimal
	// Remaining is how much more the customer must add to qualify for the
	// best auto coupon. Zero when Applied or when no auto coupon exists.
	Remaining decimal.Decimal
	Message   string
}

// Engine evaluates coupon eligibility and computes discounts. Usage caps are
// checked against the redemption ledger.
type Engine struct {
	coupons Repository
	ledger  Ledger
	now     func() time.Time
}

// NewEngine creates an Engine backed by the given rule repository and ledger.
func NewEngine(coupons Repository, ledger Ledger) *Engine {
	return &Engine{coupons: coupons, ledger: ledger, now: time.Now}
}

// WithNow overrides the engine clock, for tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Validate resolves and validates a manually entered code against the given
// customer and checkout subtotal. Every failed check is a specific error:
// the customer actively asked for this code, so nothing falls through
// silently. On success it returns the coupon and the computed discount.
func (e *Engine) Validate(ctx context.Context, code, customerID string, subtotal decimal.Decimal) (*Coupon, decimal.Decimal, error) {
	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, decimal.Zero, ErrInvalidCoupon
		}
		return nil, decimal.Zero, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, decimal.Zero, ErrInvalidCoupon
	}

	if err := e.checkWindow(c); err != nil {
		return nil, decimal.Zero, err
	}

	if subtotal.LessThan(c.MinAmount) {
		return nil, decimal.Zero, &IneligibleError{
			Code:      c.Code,
			MinAmount: c.MinAmount,
			Remaining: c.MinAmount.Sub(subtotal),
		}
	}

	if err := e.checkCaps(ctx, c, customerID); err != nil {
		return nil, decimal.Zero, err
	}

	return c, Compute(c, subtotal), nil
}

// EvaluateAuto finds the auto-apply coupon for the given subtotal. When the
// best candidate's minimum is not met, the result names how much more to add.
// When all candidates are capped out, the result is a plain "not applied"
// with no message. Only infrastructure failures surface as errors.
func (e *Engine) EvaluateAuto(ctx context.Context, customerID string, subtotal decimal.Decimal) (*Evaluation, error) {
	candidates, err := e.coupons.FindAutoApply(ctx, e.now())
	if err != nil {
		return nil, errors.Wrap(err, "list auto coupons")
	}

	var short *Evaluation
	for i := range candidates {
		c := &candidates[i]

		if subtotal.LessThan(c.MinAmount) {
			if short == nil {
				remaining := c.MinAmount.Sub(subtotal)
				short = &Evaluation{
					Code:      c.Code,
					Remaining: remaining,
					Message:   fmt.Sprintf("add %s more to qualify for %s", remaining.StringFixed(2), c.Code),
				}
			}
			continue
		}

		// Cap exhaustion on auto-apply is silent: skip to the next candidate.
		if err := e.checkCaps(ctx, c, customerID); err != nil {
			if errors.Is(err, ErrUsageLimitReached) || errors.Is(err, ErrCustomerLimitReached) {
				continue
			}
			return nil, err
		}

		return &Evaluation{
			Applied:  true,
			Code:     c.Code,
			Discount: Compute(c, subtotal),
		}, nil
	}

	if short != nil {
		return short, nil
	}
	return &Evaluation{}, nil
}

func (e *Engine) checkWindow(c *Coupon) error {
	now := e.now()
	if c.DateStart != nil && now.Before(*c.DateStart) {
		return ErrCouponNotStarted
	}
	if c.DateEnd != nil && now.After(*c.DateEnd) {
		return ErrCouponExpired
	}
	return nil
}

func (e *Engine) checkCaps(ctx context.Context, c *Coupon, customerID string) error {
	if c.MaxUses > 0 {
		n, err := e.ledger.CountUses(ctx, c.Code)
		if err != nil {
			return errors.Wrap(err, "count coupon uses")
		}
		if n >= c.MaxUses {
			return ErrUsageLimitReached
		}
	}
	if c.MaxUsesPerCustomer > 0 && customerID != "" {
		n, err := e.ledger.CountCustomerUses(ctx, c.Code, customerID)
		if err != nil {
			return errors.Wrap(err, "count customer coupon uses")
		}
		if n >= c.MaxUsesPerCustomer {
			return ErrCustomerLimitReached
		}
	}
	return nil
}
