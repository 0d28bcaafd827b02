package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal string
		want     string
	}{
		{
			name:     "fixed amount",
			coupon:   Coupon{Type: TypeFixed, Discount: d("150")},
			subtotal: "1000.00",
			want:     "150",
		},
		{
			name:     "fixed capped at subtotal",
			coupon:   Coupon{Type: TypeFixed, Discount: d("500")},
			subtotal: "320.00",
			want:     "320",
		},
		{
			name:     "percentage",
			coupon:   Coupon{Type: TypePercentage, Discount: d("25")},
			subtotal: "1000.00",
			want:     "250",
		},
		{
			name:     "percentage clamped to max discount",
			coupon:   Coupon{Type: TypePercentage, Discount: d("20"), MaxDiscount: d("150")},
			subtotal: "1000.00",
			want:     "150",
		},
		{
			name:     "percentage under max discount untouched",
			coupon:   Coupon{Type: TypePercentage, Discount: d("20"), MaxDiscount: d("500")},
			subtotal: "1000.00",
			want:     "200",
		},
		{
			name:     "percentage rounds to cents",
			coupon:   Coupon{Type: TypePercentage, Discount: d("15")},
			subtotal: "333.33",
			want:     "50",
		},
		{
			name:     "zero max discount means unlimited",
			coupon:   Coupon{Type: TypePercentage, Discount: d("50")},
			subtotal: "2000.00",
			want:     "1000",
		},
		{
			name:     "unknown type yields zero",
			coupon:   Coupon{Type: Type("bogus"), Discount: d("10")},
			subtotal: "100.00",
			want:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(&tt.coupon, d(tt.subtotal))
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestFinalAmount(t *testing.T) {
	assert.True(t, FinalAmount(d("1000"), d("150")).Equal(d("850")))
	assert.True(t, FinalAmount(d("100"), d("150")).Equal(d("0")))
	assert.True(t, FinalAmount(d("99.99"), d("0")).Equal(d("99.99")))
}

// Flat 150 off a 1000.00 checkout leaves 850.00 to charge.
func TestFixedCouponEndToEnd(t *testing.T) {
	c := Coupon{Code: "FLAT150", Type: TypeFixed, Discount: d("150")}

	discount := Compute(&c, d("1000.00"))
	assert.True(t, discount.Equal(d("150")))
	assert.True(t, FinalAmount(d("1000.00"), discount).Equal(d("850.00")))
}

// 20% of 1000.00 is 200, but the coupon caps at 150, so the charge is 850.00.
func TestPercentageCapEndToEnd(t *testing.T) {
	c := Coupon{Code: "SAVE20", Type: TypePercentage, Discount: d("20"), MaxDiscount: d("150")}

	discount := Compute(&c, d("1000.00"))
	assert.True(t, discount.Equal(d("150")))
	assert.True(t, FinalAmount(d("1000.00"), discount).Equal(d("850.00")))
}
