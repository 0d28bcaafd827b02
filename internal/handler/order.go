package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/order"
	"github.com/digikart/digikart/internal/payment"
)

type totalDTO struct {
	Code      string `json:"code"`
	Value     string `json:"value"`
	SortOrder int    `json:"sort_order"`
}

type historyDTO struct {
	Status    string    `json:"status"`
	Comment   string    `json:"comment"`
	Notify    bool      `json:"notify"`
	CreatedAt time.Time `json:"created_at"`
}

type orderDTO struct {
	ID             string            `json:"id"`
	OrderNumber    string            `json:"order_number"`
	Items          []checkoutItemDTO `json:"items"`
	Totals         []totalDTO        `json:"totals"`
	Status         string            `json:"status"`
	History        []historyDTO      `json:"history"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	GatewayOrderID string            `json:"gateway_order_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]checkoutItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = checkoutItemDTO{
			ProductID: it.ProductID,
			OptionID:  it.OptionID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal.StringFixed(2),
		}
	}
	totals := make([]totalDTO, len(o.Totals))
	for i, t := range o.Totals {
		totals[i] = totalDTO{Code: t.Code, Value: t.Value.StringFixed(2), SortOrder: t.SortOrder}
	}
	history := make([]historyDTO, len(o.History))
	for i, ev := range o.History {
		history[i] = historyDTO{
			Status: string(ev.Status), Comment: ev.Comment,
			Notify: ev.Notify, CreatedAt: ev.CreatedAt,
		}
	}
	return orderDTO{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Items:          items,
		Totals:         totals,
		Status:         string(o.Status),
		History:        history,
		CouponCode:     o.CouponCode,
		GatewayOrderID: o.GatewayOrderID,
		CreatedAt:      o.CreatedAt,
	}
}

type createOrderRequest struct {
	CheckoutID string `json:"checkout_id"`
}

// CreatePaymentOrder materializes a durable pending order for a staged
// checkout, registering the amount with the payment gateway. Duplicate calls
// return the existing pending order.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "checkout_id is required")
		return
	}

	o, err := h.orders.CreatePaymentOrder(r.Context(), req.CheckoutID)
	if err != nil {
		var illegal *order.IllegalTransitionError
		switch {
		case errors.Is(err, checkout.ErrNotFound):
			respondError(w, http.StatusNotFound, "checkout not found")
		case errors.Is(err, checkout.ErrNotPending), errors.Is(err, checkout.ErrExpired):
			respondError(w, http.StatusConflict, err.Error())
		case errors.As(err, &illegal):
			respondError(w, http.StatusConflict, illegal.Error())
		default:
			zctx.From(r.Context()).Error("create payment order", zap.Error(err))
			respondError(w, http.StatusBadGateway, "payment gateway unavailable")
		}
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(o))
}

// GetOrder looks up an order by internal id or order number.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderRef"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(r.Context()).Error("get order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(o))
}

type verifyPaymentRequest struct {
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"payment_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	Signature        string `json:"signature"`
}

// VerifyPayment reconciles a client-side payment confirmation. A tampered
// signature fails closed and leaves the order untouched.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.GatewayPaymentID == "" || req.GatewayOrderID == "" || req.Signature == "" {
		respondError(w, http.StatusBadRequest, "order_id, payment_id, gateway_order_id and signature are required")
		return
	}

	o, err := h.orders.VerifyPayment(r.Context(), req.OrderID, req.GatewayPaymentID, req.GatewayOrderID, req.Signature)
	if err != nil {
		var illegal *order.IllegalTransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrSignatureMismatch):
			respondError(w, http.StatusBadRequest, "payment verification failed")
		case errors.As(err, &illegal):
			// A valid confirmation can still arrive for an order that was
			// cancelled or failed in the meantime.
			respondError(w, http.StatusConflict, illegal.Error())
		default:
			zctx.From(r.Context()).Error("verify payment", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(o))
}

// PaymentWebhook receives asynchronous gateway events. The body HMAC is
// checked before anything is parsed; processing is idempotent, so gateway
// redelivery always gets a 200 once the event is handled.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !h.gateway.VerifyWebhook(body, r.Header.Get("X-Webhook-Signature")) {
		respondError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if err := h.orders.HandleWebhook(r.Context(), ev.Type, ev.GatewayOrderID, ev.GatewayPaymentID); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(r.Context()).Error("handle webhook", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Notify  bool   `json:"notify"`
}

// UpdateOrderStatus is the administrative transition path. Illegal jumps,
// including the retired "processing" value, get a 422.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status, req.Comment, req.Notify)
	if err != nil {
		var illegal *order.IllegalTransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.As(err, &illegal):
			respondError(w, http.StatusUnprocessableEntity, illegal.Error())
		default:
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(o))
}
