package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount amount for the given coupon and subtotal.
// Fixed coupons never discount below zero; percentage coupons are clamped to
// MaxDiscount when it is positive. The result is rounded to 2 decimal places.
func Compute(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = subtotal.Mul(c.Discount).Div(hundred)
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
	case TypeFixed:
		amount = decimal.Min(c.Discount, subtotal)
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// FinalAmount returns max(0, subtotal - discount), rounded to 2 decimal places.
func FinalAmount(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}
