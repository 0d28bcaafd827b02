package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digikart/digikart/internal/domain/coupon"
	"github.com/digikart/digikart/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, order_number, customer_id, checkout_id, billing, items, totals, status, coupon_code, gateway_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	orderColumns = `id, order_number, customer_id, checkout_id, billing, items, totals,
		status, coupon_code, gateway_order_id, gateway_payment_id, created_at`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	getOrderByCheckout   = `SELECT ` + orderColumns + ` FROM orders WHERE checkout_id = $1`
	getOrderByGatewaySQL = `SELECT ` + orderColumns + ` FROM orders WHERE gateway_order_id = $1`

	getHistorySQL = `SELECT status, comment, notify, created_at
		FROM order_history WHERE order_id = $1 ORDER BY id`

	appendHistorySQL = `INSERT INTO order_history (order_id, status, comment, notify, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	markPaidSQL = `UPDATE orders SET status = 'paid', gateway_payment_id = $2
		WHERE id = $1 AND status IN ('pending', 'authorized')`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	// Settlements of one coupon must serialize: the cap counts below only
	// see committed rows, so under READ COMMITTED two concurrent paid
	// transactions would both pass count < max_uses and overshoot the cap.
	// The row lock makes the second settlement wait and re-count.
	lockCouponSQL = `SELECT code FROM coupons WHERE UPPER(code) = UPPER($1) FOR UPDATE`

	// The usage insert re-checks both caps inside the paid transaction,
	// under the coupon row lock above; a capped-out coupon simply inserts
	// nothing, closing the lost-update race between checkout-time validation
	// and payment confirmation. The ON CONFLICT clause makes webhook
	// redelivery a no-op.
	insertUsageSQL = `INSERT INTO coupon_usages (coupon_code, customer_id, order_id, discount_amount, order_total, used_at)
		SELECT c.code, $2, $3, $4, $5, $6 FROM coupons c
		WHERE UPPER(c.code) = UPPER($1)
		  AND (c.max_uses = 0 OR
		       (SELECT count(*) FROM coupon_usages u WHERE u.coupon_code = c.code) < c.max_uses)
		  AND (c.max_uses_per_customer = 0 OR
		       (SELECT count(*) FROM coupon_usages u WHERE u.coupon_code = c.code AND u.customer_id = $2) < c.max_uses_per_customer)
		ON CONFLICT (order_id) DO NOTHING`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Billing,
// items and totals are serialized to JSONB; history lives in its own
// append-only table.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order together with its initial history entries in
// one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	billingJSON, err := json.Marshal(o.Billing)
	if err != nil {
		return fmt.Errorf("marshaling billing snapshot: %w", err)
	}
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	totalsJSON, err := json.Marshal(o.Totals)
	if err != nil {
		return fmt.Errorf("marshaling order totals: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.OrderNumber, o.CustomerID, o.CheckoutID, billingJSON, itemsJSON, totalsJSON,
			string(o.Status), o.CouponCode, o.GatewayOrderID, o.CreatedAt,
		)
		if err != nil {
			return err
		}
		for _, ev := range o.History {
			if _, err := tx.Exec(ctx, appendHistorySQL, o.ID, string(ev.Status), ev.Comment, ev.Notify, ev.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get loads an order with its history. Returns order.ErrNotFound when absent.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getBy(ctx, getOrderSQL, id)
}

// GetByNumber loads an order by its human-readable order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getBy(ctx, getOrderByNumberSQL, number)
}

// GetByCheckout loads the order materialized from the given checkout.
func (r *OrderRepository) GetByCheckout(ctx context.Context, checkoutID string) (*order.Order, error) {
	return r.getBy(ctx, getOrderByCheckout, checkoutID)
}

// GetByGatewayOrder loads the order carrying the given gateway order id.
func (r *OrderRepository) GetByGatewayOrder(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	return r.getBy(ctx, getOrderByGatewaySQL, gatewayOrderID)
}

func (r *OrderRepository) getBy(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	hrows, err := r.pool.Query(ctx, getHistorySQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting order history: %w", err)
	}
	o.History, err = pgx.CollectRows(hrows, scanHistory)
	if err != nil {
		return nil, fmt.Errorf("getting order history: %w", err)
	}
	return o, nil
}

// MarkPaid is the single-writer-wins paid transition: a conditional status
// update, one history row, and at most one coupon usage row, atomically.
// Reports false when the order was not in a payable state, in which case
// nothing at all is written.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID, gatewayPaymentID string, ev order.StatusEvent, usage *coupon.Usage) (bool, error) {
	var won bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markPaidSQL, orderID, gatewayPaymentID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		won = true

		if _, err := tx.Exec(ctx, appendHistorySQL, orderID, string(ev.Status), ev.Comment, ev.Notify, ev.CreatedAt); err != nil {
			return err
		}

		if usage != nil {
			if _, err := tx.Exec(ctx, lockCouponSQL, usage.CouponCode); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, insertUsageSQL,
				usage.CouponCode, usage.CustomerID, usage.OrderID,
				usage.DiscountAmount, usage.OrderTotal, usage.UsedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("marking order %q paid: %w", orderID, err)
	}
	return won, nil
}

// UpdateStatus performs a compare-and-set transition with its history entry
// in one transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from order.Status, ev order.StatusEvent) (bool, error) {
	var won bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL, orderID, string(from), string(ev.Status))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		won = true

		_, err = tx.Exec(ctx, appendHistorySQL, orderID, string(ev.Status), ev.Comment, ev.Notify, ev.CreatedAt)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("updating order %q status: %w", orderID, err)
	}
	return won, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o          order.Order
		status     string
		billingRaw []byte
		itemsRaw   []byte
		totalsRaw  []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CheckoutID, &billingRaw, &itemsRaw, &totalsRaw,
		&status, &o.CouponCode, &o.GatewayOrderID, &o.GatewayPaymentID, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	if err := json.Unmarshal(billingRaw, &o.Billing); err != nil {
		return nil, fmt.Errorf("unmarshaling billing snapshot: %w", err)
	}
	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(totalsRaw, &o.Totals); err != nil {
		return nil, fmt.Errorf("unmarshaling order totals: %w", err)
	}
	return &o, nil
}

func scanHistory(row pgx.CollectableRow) (order.StatusEvent, error) {
	var (
		ev     order.StatusEvent
		status string
	)
	err := row.Scan(&status, &ev.Comment, &ev.Notify, &ev.CreatedAt)
	ev.Status = order.Status(status)
	return ev, err
}
