package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the checkout staging state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransitionTo reports whether the transition s -> next is legal.
// Checkouts only move pending -> paid and pending -> cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusPaid || next == StatusCancelled)
}

var (
	// ErrNotFound is returned when a checkout does not exist.
	ErrNotFound = errors.New("checkout not found")
	// ErrEmptyCart is returned when starting a checkout from an empty cart.
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")
	// ErrNotPending is returned when an operation needs a live pending checkout.
	ErrNotPending = errors.New("checkout is not pending")
	// ErrExpired is returned when a pending checkout is past its deadline.
	ErrExpired = errors.New("checkout expired")
)

// LineItem is a priced snapshot of a cart item. Prices are copied from the
// catalog at checkout start so later catalog edits cannot alter an in-flight
// checkout.
type LineItem struct {
	ProductID string          `json:"product_id"`
	OptionID  string          `json:"option_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Address is a billing snapshot. It is copied into the order on payment and
// never referenced live.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Checkout is the ephemeral staging record between cart and order: a priced,
// coupon-adjusted, time-boxed snapshot. It is a mutable pre-commit scratchpad;
// the durable ledger is the Order.
type Checkout struct {
	ID          string
	CustomerID  string
	Items       []LineItem
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	TotalAmount decimal.Decimal
	CouponCode  string
	Status      Status
	Billing     *Address
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the checkout deadline has passed at the given time.
func (c *Checkout) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Repository defines persistence operations for checkouts.
type Repository interface {
	Create(ctx context.Context, c *Checkout) error
	Get(ctx context.Context, id string) (*Checkout, error)
	// FindPendingByCustomer returns the customer's pending checkout, or
	// ErrNotFound when there is none.
	FindPendingByCustomer(ctx context.Context, customerID string) (*Checkout, error)
	// UpdateStatus performs a compare-and-set from -> to and reports whether
	// the row was transitioned.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// SetCoupon updates the coupon code, discount and total of a pending
	// checkout in one write. An empty code clears the coupon.
	SetCoupon(ctx context.Context, id, code string, discount, total decimal.Decimal) error
	// CancelExpired cancels every pending checkout past its deadline and
	// returns how many were swept. Implementations must guard on status so a
	// paid checkout is never touched.
	CancelExpired(ctx context.Context, now time.Time) (int64, error)
}
