package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/cart"
	"github.com/digikart/digikart/internal/domain/coupon"
	"github.com/digikart/digikart/internal/domain/product"
)

// Service stages checkouts: it freezes cart prices into a snapshot, attaches
// coupons, and sweeps expired records.
type Service struct {
	checkouts Repository
	carts     cart.Repository
	catalog   product.Repository
	coupons   *coupon.Engine
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a checkout Service. ttl is the server-side checkout
// deadline; clients only receive it as a hint.
func NewService(
	checkouts Repository,
	carts cart.Repository,
	catalog product.Repository,
	coupons *coupon.Engine,
	ttl time.Duration,
) *Service {
	return &Service{
		checkouts: checkouts,
		carts:     carts,
		catalog:   catalog,
		coupons:   coupons,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Start stages a new checkout for the customer's cart. Each line item's
// current catalog price is copied into the snapshot, an auto-apply coupon is
// evaluated, and the previous pending checkout (if any) is cancelled so that
// at most one pending checkout exists per customer. The cart itself is left
// untouched until payment succeeds.
func (s *Service) Start(ctx context.Context, customerID string, billing *Address) (*Checkout, error) {
	crt, err := s.carts.GetByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if len(crt.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items, subtotal, err := s.snapshot(ctx, crt)
	if err != nil {
		return nil, err
	}

	if prev, err := s.checkouts.FindPendingByCustomer(ctx, customerID); err == nil {
		if _, err := s.checkouts.UpdateStatus(ctx, prev.ID, StatusPending, StatusCancelled); err != nil {
			return nil, errors.Wrap(err, "cancel previous checkout")
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "find pending checkout")
	}

	now := s.now()
	ck := &Checkout{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		Items:       items,
		Subtotal:    subtotal,
		Discount:    decimal.Zero,
		TotalAmount: subtotal,
		Status:      StatusPending,
		Billing:     billing,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	eval, err := s.coupons.EvaluateAuto(ctx, customerID, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "auto-apply coupon")
	}
	if eval.Applied {
		ck.CouponCode = eval.Code
		ck.Discount = eval.Discount
		ck.TotalAmount = coupon.FinalAmount(subtotal, eval.Discount)
	}

	if err := s.checkouts.Create(ctx, ck); err != nil {
		return nil, errors.Wrap(err, "create checkout")
	}
	return ck, nil
}

// snapshot re-prices the cart items against the current catalog.
func (s *Service) snapshot(ctx context.Context, crt *cart.Cart) ([]LineItem, decimal.Decimal, error) {
	ids := make([]string, 0, len(crt.Items))
	for _, it := range crt.Items {
		ids = append(ids, it.ProductID)
	}

	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	items := make([]LineItem, 0, len(crt.Items))
	subtotal := decimal.Zero
	for _, it := range crt.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, decimal.Zero, errors.Wrapf(product.ErrNotFound, "product %s", it.ProductID)
		}
		opt := p.Option(it.OptionID)
		if opt == nil {
			return nil, decimal.Zero, errors.Wrapf(product.ErrNotFound, "option %s of product %s", it.OptionID, it.ProductID)
		}

		qty := decimal.NewFromInt(int64(it.Quantity))
		line := LineItem{
			ProductID: p.ID,
			OptionID:  opt.ID,
			Name:      it.Name,
			UnitPrice: opt.Price,
			Quantity:  it.Quantity,
			Subtotal:  opt.Price.Mul(qty).Round(2),
		}
		items = append(items, line)
		subtotal = subtotal.Add(line.Subtotal)
	}
	return items, subtotal.Round(2), nil
}

// Get returns a checkout by id.
func (s *Service) Get(ctx context.Context, id string) (*Checkout, error) {
	return s.checkouts.Get(ctx, id)
}

// Cancel transitions a pending checkout to cancelled. It is idempotent:
// cancelling an already terminal checkout is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ck, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if ck.Status.IsTerminal() {
		return nil
	}
	if _, err := s.checkouts.UpdateStatus(ctx, id, StatusPending, StatusCancelled); err != nil {
		return errors.Wrap(err, "cancel checkout")
	}
	return nil
}

// ApplyCoupon validates a manually entered code against the checkout and
// attaches it. At most one coupon is attached at a time; applying a new code
// replaces the previous one.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (*Checkout, error) {
	ck, err := s.livePending(ctx, id)
	if err != nil {
		return nil, err
	}

	c, discount, err := s.coupons.Validate(ctx, code, ck.CustomerID, ck.Subtotal)
	if err != nil {
		return nil, err
	}

	ck.CouponCode = c.Code
	ck.Discount = discount
	ck.TotalAmount = coupon.FinalAmount(ck.Subtotal, discount)
	if err := s.checkouts.SetCoupon(ctx, ck.ID, ck.CouponCode, ck.Discount, ck.TotalAmount); err != nil {
		return nil, errors.Wrap(err, "set coupon")
	}
	return ck, nil
}

// RemoveCoupon detaches the coupon and reverts to undiscounted totals, then
// re-runs auto-apply so an eligible auto coupon is not silently skipped.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (*Checkout, *coupon.Evaluation, error) {
	ck, err := s.livePending(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ck.CouponCode = ""
	ck.Discount = decimal.Zero
	ck.TotalAmount = ck.Subtotal

	eval, err := s.coupons.EvaluateAuto(ctx, ck.CustomerID, ck.Subtotal)
	if err != nil {
		return nil, nil, errors.Wrap(err, "auto-apply coupon")
	}
	if eval.Applied {
		ck.CouponCode = eval.Code
		ck.Discount = eval.Discount
		ck.TotalAmount = coupon.FinalAmount(ck.Subtotal, eval.Discount)
	}

	if err := s.checkouts.SetCoupon(ctx, ck.ID, ck.CouponCode, ck.Discount, ck.TotalAmount); err != nil {
		return nil, nil, errors.Wrap(err, "set coupon")
	}
	return ck, eval, nil
}

// AutoApply evaluates the auto-apply coupon for the checkout and attaches it
// when eligible. Ineligibility is reported as data, never as an error.
func (s *Service) AutoApply(ctx context.Context, id string) (*Checkout, *coupon.Evaluation, error) {
	ck, err := s.livePending(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	eval, err := s.coupons.EvaluateAuto(ctx, ck.CustomerID, ck.Subtotal)
	if err != nil {
		return nil, nil, errors.Wrap(err, "auto-apply coupon")
	}
	if !eval.Applied {
		return ck, eval, nil
	}

	ck.CouponCode = eval.Code
	ck.Discount = eval.Discount
	ck.TotalAmount = coupon.FinalAmount(ck.Subtotal, eval.Discount)
	if err := s.checkouts.SetCoupon(ctx, ck.ID, ck.CouponCode, ck.Discount, ck.TotalAmount); err != nil {
		return nil, nil, errors.Wrap(err, "set coupon")
	}
	return ck, eval, nil
}

// CleanupExpired cancels pending checkouts past their deadline and returns
// the swept count. It is safe to run concurrently and repeatedly.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.checkouts.CancelExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "cancel expired checkouts")
	}
	return n, nil
}

func (s *Service) livePending(ctx context.Context, id string) (*Checkout, error) {
	ck, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ck.Status != StatusPending {
		return nil, ErrNotPending
	}
	if ck.Expired(s.now()) {
		return nil, ErrExpired
	}
	return ck, nil
}
