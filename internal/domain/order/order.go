package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/coupon"
)

// Status is the order state machine state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the full state machine. cancelled, refunded and failed are
// terminal: a failed order is retried by starting a new checkout, never by
// resurrecting the order.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAuthorized, StatusPaid, StatusFailed, StatusCancelled},
	StatusAuthorized: {StatusPaid, StatusFailed},
	StatusPaid:       {StatusRefunded},
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string against the declared state set.
// Anything outside it, including the legacy "processing" value some admin
// tooling still sends, is rejected.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAuthorized, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrSignatureMismatch is returned when a payment signature does not
	// verify. The order is left untouched.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
)

// IllegalTransitionError reports a state-machine violation.
type IllegalTransitionError struct {
	From, To Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

// Total codes used in the totals breakdown.
const (
	TotalCodeSubtotal       = "subtotal"
	TotalCodeCouponDiscount = "couponDiscount"
	TotalCodeTotal          = "total"
)

// Total is one row of the order's totals breakdown.
type Total struct {
	Code      string          `json:"code"`
	Value     decimal.Decimal `json:"value"`
	SortOrder int             `json:"sort_order"`
}

// Item is a purchased line with its per-option subtotal, frozen at payment
// time for audit fidelity.
type Item struct {
	ProductID string          `json:"product_id"`
	OptionID  string          `json:"option_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// StatusEvent is one append-only history entry, written once per transition.
type StatusEvent struct {
	Status    Status
	Comment   string
	Notify    bool
	CreatedAt time.Time
}

// Order is the durable financial ledger entry. Fields established at
// creation (billing snapshot, items, totals) are never mutated afterwards;
// only status moves, and every move appends a history entry.
type Order struct {
	ID          string
	OrderNumber string
	CustomerID  string
	CheckoutID  string
	Billing     checkout.Address
	Items       []Item
	Totals      []Total
	Status      Status
	History     []StatusEvent
	CouponCode  string
	// GatewayOrderID is the external payment gateway's identifier for this
	// order; GatewayPaymentID is set once payment is confirmed.
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
}

// Total returns the value of the totals row with code "total".
func (o *Order) Total() decimal.Decimal {
	for _, t := range o.Totals {
		if t.Code == TotalCodeTotal {
			return t.Value
		}
	}
	return decimal.Zero
}

// Repository defines persistence operations for orders. Implementations must
// make MarkPaid and UpdateStatus conditional single-writer transitions.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	GetByCheckout(ctx context.Context, checkoutID string) (*Order, error)
	GetByGatewayOrder(ctx context.Context, gatewayOrderID string) (*Order, error)
	// MarkPaid atomically transitions pending/authorized -> paid, records the
	// gateway payment id, appends the history event, and (when usage is
	// non-nil) writes at most one coupon usage row, all in one transaction.
	// It reports false without error when the order was not transitionable,
	// which the caller resolves by re-reading the order.
	MarkPaid(ctx context.Context, orderID, gatewayPaymentID string, ev StatusEvent, usage *coupon.Usage) (bool, error)
	// UpdateStatus performs a compare-and-set from -> to and appends the
	// history event in the same transaction.
	UpdateStatus(ctx context.Context, orderID string, from Status, ev StatusEvent) (bool, error)
}

// Gateway is the external payment collaborator.
type Gateway interface {
	// CreateOrder registers the amount with the gateway and returns its
	// order identifier.
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error)
	// VerifySignature checks the gateway's signature over the order/payment
	// identifier pair in constant time.
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}
