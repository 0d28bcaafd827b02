package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/cart"
	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/coupon"
)

// Currency is the settlement currency for gateway orders.
const Currency = "INR"

// Service materializes durable orders from staged checkouts and reconciles
// them against the payment gateway.
type Service struct {
	orders    Repository
	checkouts checkout.Repository
	carts     cart.Repository
	gateway   Gateway
	now       func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	orders Repository,
	checkouts checkout.Repository,
	carts cart.Repository,
	gateway Gateway,
) *Service {
	return &Service{
		orders:    orders,
		checkouts: checkouts,
		carts:     carts,
		gateway:   gateway,
		now:       time.Now,
	}
}

// CreatePaymentOrder registers the checkout's total with the payment gateway
// and materializes the durable order in pending state. The call is
// idempotent against duplicates: an existing pending order for the same
// checkout is returned as-is. A failed or timed-out gateway call persists
// nothing, leaving the checkout retryable.
func (s *Service) CreatePaymentOrder(ctx context.Context, checkoutID string) (*Order, error) {
	if existing, err := s.orders.GetByCheckout(ctx, checkoutID); err == nil {
		if existing.Status == StatusPending || existing.Status == StatusAuthorized {
			return existing, nil
		}
		return nil, &IllegalTransitionError{From: existing.Status, To: StatusPending}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "find order by checkout")
	}

	ck, err := s.checkouts.Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if ck.Status != checkout.StatusPending {
		return nil, checkout.ErrNotPending
	}
	if ck.Expired(s.now()) {
		return nil, checkout.ErrExpired
	}

	gatewayOrderID, err := s.gateway.CreateOrder(ctx, ck.TotalAmount, Currency)
	if err != nil {
		return nil, errors.Wrap(err, "gateway create order")
	}

	now := s.now()
	items := make([]Item, len(ck.Items))
	for i, li := range ck.Items {
		items[i] = Item{
			ProductID: li.ProductID,
			OptionID:  li.OptionID,
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
			Subtotal:  li.Subtotal,
		}
	}

	totals := []Total{
		{Code: TotalCodeSubtotal, Value: ck.Subtotal, SortOrder: 1},
	}
	if ck.Discount.IsPositive() {
		totals = append(totals, Total{Code: TotalCodeCouponDiscount, Value: ck.Discount.Neg(), SortOrder: 2})
	}
	totals = append(totals, Total{Code: TotalCodeTotal, Value: ck.TotalAmount, SortOrder: 3})

	var billing checkout.Address
	if ck.Billing != nil {
		billing = *ck.Billing
	}

	o := &Order{
		ID:             uuid.New().String(),
		OrderNumber:    newOrderNumber(now),
		CustomerID:     ck.CustomerID,
		CheckoutID:     ck.ID,
		Billing:        billing,
		Items:          items,
		Totals:         totals,
		Status:         StatusPending,
		History:        []StatusEvent{{Status: StatusPending, Comment: "order created", CreatedAt: now}},
		CouponCode:     ck.CouponCode,
		GatewayOrderID: gatewayOrderID,
		CreatedAt:      now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// VerifyPayment recomputes the gateway signature over the order/payment pair
// and, on a constant-time match, transitions the order to paid. On mismatch
// it fails closed: the order is left untouched and no history is written.
// The call is idempotent; an order already paid is success.
func (s *Service) VerifyPayment(ctx context.Context, orderID, gatewayPaymentID, gatewayOrderID, signature string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusPaid {
		return o, nil
	}

	if o.GatewayOrderID != gatewayOrderID {
		return nil, ErrSignatureMismatch
	}
	if !s.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature) {
		return nil, ErrSignatureMismatch
	}

	return s.settle(ctx, o, gatewayPaymentID, "payment verified")
}

// HandleWebhook processes an asynchronous gateway event. Only captured
// payments advance state; everything else is acknowledged and dropped.
// Redelivery is harmless: the conditional paid transition and the unique
// usage row make the whole path idempotent.
func (s *Service) HandleWebhook(ctx context.Context, eventType, gatewayOrderID, gatewayPaymentID string) error {
	if eventType != "payment.captured" {
		return nil
	}

	o, err := s.orders.GetByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	if o.Status == StatusPaid {
		return nil
	}

	_, err = s.settle(ctx, o, gatewayPaymentID, "payment captured via webhook")
	return err
}

// settle performs the single-writer-wins paid transition. The losing racer
// of a concurrent confirmation observes the order already paid and treats it
// as success, never double-writing usage or history.
func (s *Service) settle(ctx context.Context, o *Order, gatewayPaymentID, comment string) (*Order, error) {
	var usage *coupon.Usage
	if o.CouponCode != "" {
		usage = &coupon.Usage{
			CouponCode:     o.CouponCode,
			CustomerID:     o.CustomerID,
			OrderID:        o.ID,
			DiscountAmount: discountOf(o),
			OrderTotal:     o.Total(),
			UsedAt:         s.now(),
		}
	}

	ev := StatusEvent{Status: StatusPaid, Comment: comment, Notify: true, CreatedAt: s.now()}
	ok, err := s.orders.MarkPaid(ctx, o.ID, gatewayPaymentID, ev, usage)
	if err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}
	if !ok {
		current, err := s.orders.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == StatusPaid {
			return current, nil
		}
		return nil, &IllegalTransitionError{From: current.Status, To: StatusPaid}
	}

	// Finalize the staging side: the checkout becomes paid and the cart is
	// cleared. Both are conditional and safe under concurrent confirmation.
	if _, err := s.checkouts.UpdateStatus(ctx, o.CheckoutID, checkout.StatusPending, checkout.StatusPaid); err != nil {
		return nil, errors.Wrap(err, "finalize checkout")
	}
	if err := s.carts.Clear(ctx, o.CustomerID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	return s.orders.Get(ctx, o.ID)
}

// UpdateStatus is the administrative transition path. Illegal jumps are
// rejected with IllegalTransitionError; a manual transition to paid goes
// through the same atomic path as payment reconciliation so a coupon
// redemption is still recorded exactly once.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus, comment string, notify bool) (*Order, error) {
	next, err := ParseStatus(newStatus)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &IllegalTransitionError{From: o.Status, To: next}
	}

	if next == StatusPaid {
		if comment == "" {
			comment = "payment confirmed manually"
		}
		return s.settle(ctx, o, "", comment)
	}

	ev := StatusEvent{Status: next, Comment: comment, Notify: notify, CreatedAt: s.now()}
	ok, err := s.orders.UpdateStatus(ctx, o.ID, o.Status, ev)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	if !ok {
		current, err := s.orders.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		return nil, &IllegalTransitionError{From: current.Status, To: next}
	}
	return s.orders.Get(ctx, o.ID)
}

// Get resolves an order by internal id, falling back to the human-readable
// order number used for support lookups.
func (s *Service) Get(ctx context.Context, ref string) (*Order, error) {
	o, err := s.orders.Get(ctx, ref)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.orders.GetByNumber(ctx, ref)
}

func discountOf(o *Order) decimal.Decimal {
	for _, t := range o.Totals {
		if t.Code == TotalCodeCouponDiscount {
			return t.Value.Abs()
		}
	}
	return decimal.Zero
}

// newOrderNumber builds the human-readable order number, e.g.
// DK-20260830-1a2b3c. Distinct from the internal uuid identifier.
func newOrderNumber(now time.Time) string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("DK-%s-%s", now.Format("20060102"), hex.EncodeToString(b[:]))
}
