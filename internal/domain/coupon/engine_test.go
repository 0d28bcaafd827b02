package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockCouponRepo struct {
	byCode map[string]*Coupon
	auto   []Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) FindAutoApply(_ context.Context, _ time.Time) ([]Coupon, error) {
	return m.auto, nil
}

type mockLedger struct {
	uses         map[string]int
	customerUses map[string]int
}

func (m *mockLedger) CountUses(_ context.Context, code string) (int, error) {
	return m.uses[code], nil
}

func (m *mockLedger) CountCustomerUses(_ context.Context, code, customerID string) (int, error) {
	return m.customerUses[code+"/"+customerID], nil
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newEngine(repo *mockCouponRepo, ledger *mockLedger) *Engine {
	if ledger == nil {
		ledger = &mockLedger{}
	}
	return NewEngine(repo, ledger).WithNow(func() time.Time { return testNow })
}

// --- Tests ---

func TestValidate_UnknownCode(t *testing.T) {
	eng := newEngine(&mockCouponRepo{byCode: map[string]*Coupon{}}, nil)

	_, _, err := eng.Validate(context.Background(), "NOPE", "cust-1", d("100"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestValidate_InactiveCode(t *testing.T) {
	eng := newEngine(&mockCouponRepo{byCode: map[string]*Coupon{
		"OLD": {Code: "OLD", Type: TypeFixed, Discount: d("10"), Active: false},
	}}, nil)

	_, _, err := eng.Validate(context.Background(), "OLD", "cust-1", d("100"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestValidate_OutsideWindow(t *testing.T) {
	notYet := testNow.Add(24 * time.Hour)
	over := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		coupon  Coupon
		wantErr error
	}{
		{"not started", Coupon{Code: "SOON", Type: TypeFixed, Discount: d("10"), Active: true, DateStart: &notYet}, ErrCouponNotStarted},
		{"ended", Coupon{Code: "LATE", Type: TypeFixed, Discount: d("10"), Active: true, DateEnd: &over}, ErrCouponExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newEngine(&mockCouponRepo{byCode: map[string]*Coupon{tt.coupon.Code: &tt.coupon}}, nil)

			_, _, err := eng.Validate(context.Background(), tt.coupon.Code, "cust-1", d("100"))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_BelowMinimum(t *testing.T) {
	eng := newEngine(&mockCouponRepo{byCode: map[string]*Coupon{
		"BIG": {Code: "BIG", Type: TypeFixed, Discount: d("150"), MinAmount: d("500"), Active: true},
	}}, nil)

	_, _, err := eng.Validate(context.Background(), "BIG", "cust-1", d("320"))

	var ineligible *IneligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, "BIG", ineligible.Code)
	assert.True(t, ineligible.Remaining.Equal(d("180")), "remaining: got %s", ineligible.Remaining)
}

func TestValidate_GlobalCapReached(t *testing.T) {
	repo := &mockCouponRepo{byCode: map[string]*Coupon{
		"CAPPED": {Code: "CAPPED", Type: TypeFixed, Discount: d("10"), Active: true, MaxUses: 5},
	}}
	eng := newEngine(repo, &mockLedger{uses: map[string]int{"CAPPED": 5}})

	_, _, err := eng.Validate(context.Background(), "CAPPED", "cust-1", d("100"))
	require.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestValidate_CustomerCapReached(t *testing.T) {
	repo := &mockCouponRepo{byCode: map[string]*Coupon{
		"ONCE": {Code: "ONCE", Type: TypeFixed, Discount: d("10"), Active: true, MaxUsesPerCustomer: 1},
	}}
	eng := newEngine(repo, &mockLedger{customerUses: map[string]int{"ONCE/cust-1": 1}})

	_, _, err := eng.Validate(context.Background(), "ONCE", "cust-1", d("100"))
	require.ErrorIs(t, err, ErrCustomerLimitReached)

	// A different customer is still eligible.
	c, discount, err := eng.Validate(context.Background(), "ONCE", "cust-2", d("100"))
	require.NoError(t, err)
	assert.Equal(t, "ONCE", c.Code)
	assert.True(t, discount.Equal(d("10")))
}

func TestValidate_Success(t *testing.T) {
	eng := newEngine(&mockCouponRepo{byCode: map[string]*Coupon{
		"SAVE20": {Code: "SAVE20", Type: TypePercentage, Discount: d("20"), MaxDiscount: d("150"), Active: true},
	}}, nil)

	c, discount, err := eng.Validate(context.Background(), "SAVE20", "cust-1", d("1000"))
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", c.Code)
	assert.True(t, discount.Equal(d("150")))
}

func TestEvaluateAuto_Applies(t *testing.T) {
	eng := newEngine(&mockCouponRepo{auto: []Coupon{
		{Code: "AUTUMN5", Type: TypePercentage, Discount: d("5"), Active: true, AutoApply: true},
	}}, nil)

	ev, err := eng.EvaluateAuto(context.Background(), "cust-1", d("1000"))
	require.NoError(t, err)
	assert.True(t, ev.Applied)
	assert.Equal(t, "AUTUMN5", ev.Code)
	assert.True(t, ev.Discount.Equal(d("50")))
}

func TestEvaluateAuto_BelowMinimumNamesShortfall(t *testing.T) {
	eng := newEngine(&mockCouponRepo{auto: []Coupon{
		{Code: "BULK", Type: TypeFixed, Discount: d("200"), MinAmount: d("1500"), Active: true, AutoApply: true},
	}}, nil)

	ev, err := eng.EvaluateAuto(context.Background(), "cust-1", d("1000"))
	require.NoError(t, err)
	assert.False(t, ev.Applied)
	assert.Equal(t, "BULK", ev.Code)
	assert.True(t, ev.Remaining.Equal(d("500")))
	assert.Contains(t, ev.Message, "500.00")
}

func TestEvaluateAuto_CappedCouponSkippedSilently(t *testing.T) {
	repo := &mockCouponRepo{auto: []Coupon{
		{Code: "GONE", Type: TypePercentage, Discount: d("50"), Active: true, AutoApply: true, MaxUses: 1},
		{Code: "NEXT", Type: TypePercentage, Discount: d("5"), Active: true, AutoApply: true},
	}}
	eng := newEngine(repo, &mockLedger{uses: map[string]int{"GONE": 1}})

	ev, err := eng.EvaluateAuto(context.Background(), "cust-1", d("1000"))
	require.NoError(t, err)
	assert.True(t, ev.Applied)
	assert.Equal(t, "NEXT", ev.Code)
}

func TestEvaluateAuto_NoCandidates(t *testing.T) {
	eng := newEngine(&mockCouponRepo{}, nil)

	ev, err := eng.EvaluateAuto(context.Background(), "cust-1", d("1000"))
	require.NoError(t, err)
	assert.False(t, ev.Applied)
	assert.Empty(t, ev.Code)
	assert.Empty(t, ev.Message)
}
