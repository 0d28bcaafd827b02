package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digikart/digikart/internal/domain/cart"
	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/coupon"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu     sync.Mutex
	byID   map[string]*Order
	usages []coupon.Usage
	// usageCap models the global max_uses cap the store enforces under the
	// coupon row lock. Zero means unlimited.
	usageCap int
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.byID {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) GetByCheckout(_ context.Context, checkoutID string) (*Order, error) {
	for _, o := range m.byID {
		if o.CheckoutID == checkoutID {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) GetByGatewayOrder(_ context.Context, gatewayOrderID string) (*Order, error) {
	for _, o := range m.byID {
		if o.GatewayOrderID == gatewayOrderID {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, orderID, gatewayPaymentID string, ev StatusEvent, usage *coupon.Usage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != StatusPending && o.Status != StatusAuthorized {
		return false, nil
	}
	o.Status = StatusPaid
	o.GatewayPaymentID = gatewayPaymentID
	o.History = append(o.History, ev)
	if usage != nil {
		// UNIQUE(order_id) in the real store.
		for _, u := range m.usages {
			if u.OrderID == usage.OrderID {
				return true, nil
			}
		}
		// Cap re-check under the lock, as the store does: a capped-out
		// coupon records nothing but the order still settles.
		if m.usageCap > 0 {
			n := 0
			for _, u := range m.usages {
				if u.CouponCode == usage.CouponCode {
					n++
				}
			}
			if n >= m.usageCap {
				return true, nil
			}
		}
		m.usages = append(m.usages, *usage)
	}
	return true, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, from Status, ev StatusEvent) (bool, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = ev.Status
	o.History = append(o.History, ev)
	return true, nil
}

type mockCheckoutRepo struct {
	mu   sync.Mutex
	byID map[string]*checkout.Checkout
}

func (m *mockCheckoutRepo) Create(_ context.Context, c *checkout.Checkout) error {
	m.byID[c.ID] = c
	return nil
}

func (m *mockCheckoutRepo) Get(_ context.Context, id string) (*checkout.Checkout, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, checkout.ErrNotFound
	}
	return c, nil
}

func (m *mockCheckoutRepo) FindPendingByCustomer(_ context.Context, _ string) (*checkout.Checkout, error) {
	return nil, checkout.ErrNotFound
}

func (m *mockCheckoutRepo) UpdateStatus(_ context.Context, id string, from, to checkout.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (m *mockCheckoutRepo) SetCoupon(_ context.Context, _, _ string, _, _ decimal.Decimal) error {
	return nil
}

func (m *mockCheckoutRepo) CancelExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockCartRepo struct {
	mu      sync.Mutex
	cleared []string
}

func (m *mockCartRepo) GetByCustomer(_ context.Context, _ string) (*cart.Cart, error) {
	return nil, cart.ErrNotFound
}

func (m *mockCartRepo) Save(_ context.Context, _ *cart.Cart) error { return nil }

func (m *mockCartRepo) Clear(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, customerID)
	return nil
}

type mockGateway struct {
	orderID   string
	createErr error
	valid     bool
	calls     int
}

func (m *mockGateway) CreateOrder(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
	m.calls++
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.orderID, nil
}

func (m *mockGateway) VerifySignature(_, _, _ string) bool {
	return m.valid
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	orders    *mockOrderRepo
	checkouts *mockCheckoutRepo
	carts     *mockCartRepo
	gateway   *mockGateway
}

func newFixture() *fixture {
	f := &fixture{
		orders:    newOrderRepo(),
		checkouts: &mockCheckoutRepo{byID: make(map[string]*checkout.Checkout)},
		carts:     &mockCartRepo{},
		gateway:   &mockGateway{orderID: "gw_order_1", valid: true},
	}
	f.svc = NewService(f.orders, f.checkouts, f.carts, f.gateway)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) stageCheckout(couponCode string, discount decimal.Decimal) *checkout.Checkout {
	subtotal := d("1000")
	ck := &checkout.Checkout{
		ID:         "ck-1",
		CustomerID: "cust-1",
		Items: []checkout.LineItem{
			{ProductID: "p1", OptionID: "o1", Name: "Poster / A4", UnitPrice: d("500"), Quantity: 2, Subtotal: subtotal},
		},
		Subtotal:    subtotal,
		Discount:    discount,
		TotalAmount: coupon.FinalAmount(subtotal, discount),
		CouponCode:  couponCode,
		Status:      checkout.StatusPending,
		ExpiresAt:   testNow.Add(30 * time.Minute),
	}
	f.checkouts.byID[ck.ID] = ck
	return ck
}

// --- Tests ---

func TestCreatePaymentOrder(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("FLAT150", d("150"))

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "gw_order_1", o.GatewayOrderID)
	assert.Equal(t, "FLAT150", o.CouponCode)
	assert.True(t, o.Total().Equal(d("850")))

	require.Len(t, o.Totals, 3)
	assert.Equal(t, TotalCodeSubtotal, o.Totals[0].Code)
	assert.Equal(t, TotalCodeCouponDiscount, o.Totals[1].Code)
	assert.True(t, o.Totals[1].Value.Equal(d("-150")), "discount row is negative: got %s", o.Totals[1].Value)
	assert.Equal(t, TotalCodeTotal, o.Totals[2].Code)

	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].Status)
}

func TestCreatePaymentOrder_ReusesPendingOrder(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	first, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	second, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.gateway.calls, "gateway must not be called twice for the same checkout")
}

func TestCreatePaymentOrder_ExpiredCheckout(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)
	ck.ExpiresAt = testNow.Add(-time.Minute)

	_, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.ErrorIs(t, err, checkout.ErrExpired)
}

func TestCreatePaymentOrder_GatewayFailureLeavesNothing(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)
	f.gateway.createErr = context.DeadlineExceeded

	_, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.Error(t, err)
	assert.Empty(t, f.orders.byID, "no order row may exist after a gateway failure")

	// The checkout stays retryable.
	f.gateway.createErr = nil
	_, err = f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)
}

func TestVerifyPayment_Success(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("FLAT150", d("150"))

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	paid, err := f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", o.GatewayOrderID, "sig")
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "gw_pay_1", paid.GatewayPaymentID)
	assert.Equal(t, checkout.StatusPaid, ck.Status)
	assert.Equal(t, []string{"cust-1"}, f.carts.cleared)

	require.Len(t, f.orders.usages, 1)
	usage := f.orders.usages[0]
	assert.Equal(t, "FLAT150", usage.CouponCode)
	assert.Equal(t, o.ID, usage.OrderID)
	assert.True(t, usage.DiscountAmount.Equal(d("150")))
	assert.True(t, usage.OrderTotal.Equal(d("850")))
}

func TestVerifyPayment_TamperedSignature(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)
	f.gateway.valid = false

	_, err = f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", o.GatewayOrderID, "bad-sig")
	require.ErrorIs(t, err, ErrSignatureMismatch)

	// Fail closed: the order is untouched.
	got, _ := f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Len(t, got.History, 1)
	assert.Empty(t, got.GatewayPaymentID)
	assert.Equal(t, checkout.StatusPending, ck.Status)
}

func TestVerifyPayment_GatewayOrderMismatch(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", "gw_order_other", "sig")
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("FLAT150", d("150"))

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", o.GatewayOrderID, "sig")
	require.NoError(t, err)

	again, err := f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", o.GatewayOrderID, "sig")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, again.Status)

	// Exactly one paid history entry and one usage row.
	got, _ := f.orders.Get(context.Background(), o.ID)
	paidEvents := 0
	for _, ev := range got.History {
		if ev.Status == StatusPaid {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
	assert.Len(t, f.orders.usages, 1)
}

func TestConcurrentSettlementsRespectCouponCap(t *testing.T) {
	f := newFixture()
	f.orders.usageCap = 1

	// Two customers hold the same coupon; only one redemption is left.
	for _, n := range []string{"1", "2"} {
		f.orders.byID["ord-"+n] = &Order{
			ID:          "ord-" + n,
			OrderNumber: "DK-20250615-abc12" + n,
			CustomerID:  "cust-" + n,
			CheckoutID:  "ck-" + n,
			Totals: []Total{
				{Code: TotalCodeSubtotal, Value: d("1000"), SortOrder: 0},
				{Code: TotalCodeCouponDiscount, Value: d("-50"), SortOrder: 1},
				{Code: TotalCodeTotal, Value: d("950"), SortOrder: 2},
			},
			Status:         StatusPending,
			CouponCode:     "LAST50",
			GatewayOrderID: "gw_order_" + n,
			CreatedAt:      testNow,
		}
		f.checkouts.byID["ck-"+n] = &checkout.Checkout{
			ID: "ck-" + n, CustomerID: "cust-" + n, Status: checkout.StatusPending,
		}
	}

	var wg sync.WaitGroup
	for _, n := range []string{"1", "2"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_, err := f.svc.VerifyPayment(context.Background(), "ord-"+n, "gw_pay_"+n, "gw_order_"+n, "sig")
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	// Both orders settle; the exhausted cap only drops the second usage row.
	for _, n := range []string{"1", "2"} {
		got, err := f.orders.Get(context.Background(), "ord-"+n)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, got.Status)
	}
	assert.Len(t, f.orders.usages, 1)
}

func TestHandleWebhook_CapturedAfterVerify(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("FLAT150", d("150"))

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(context.Background(), o.ID, "gw_pay_1", o.GatewayOrderID, "sig")
	require.NoError(t, err)

	// The webhook for the same payment arrives later; nothing changes.
	require.NoError(t, f.svc.HandleWebhook(context.Background(), "payment.captured", o.GatewayOrderID, "gw_pay_1"))

	got, _ := f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Len(t, f.orders.usages, 1)
}

func TestHandleWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "payment.failed", o.GatewayOrderID, "gw_pay_1"))

	got, _ := f.orders.Get(context.Background(), o.ID)
	assert.Equal(t, StatusPending, got.Status)
}

func TestUpdateStatus_LegalAndIllegal(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(context.Background(), o.ID, "authorized", "auth hold placed", false)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, got.Status)

	// authorized -> cancelled is not in the state machine.
	_, err = f.svc.UpdateStatus(context.Background(), o.ID, "cancelled", "", false)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StatusAuthorized, illegal.From)
	assert.Equal(t, StatusCancelled, illegal.To)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, "processing", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing")
}

func TestUpdateStatus_ManualPaidRecordsUsage(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("FLAT150", d("150"))

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(context.Background(), o.ID, "paid", "", true)
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, got.Status)
	require.Len(t, f.orders.usages, 1)
	assert.Equal(t, "FLAT150", f.orders.usages[0].CouponCode)
	assert.Equal(t, checkout.StatusPaid, ck.Status)
}

func TestGet_FallsBackToOrderNumber(t *testing.T) {
	f := newFixture()
	ck := f.stageCheckout("", decimal.Zero)

	o, err := f.svc.CreatePaymentOrder(context.Background(), ck.ID)
	require.NoError(t, err)

	byID, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byID.ID)

	byNumber, err := f.svc.Get(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)

	_, err = f.svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "authorized", "paid", "failed", "cancelled", "refunded"} {
		st, err := ParseStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, Status(valid), st)
	}

	for _, invalid := range []string{"processing", "shipped", ""} {
		_, err := ParseStatus(invalid)
		require.Error(t, err, "status %q must be rejected", invalid)
	}
}
