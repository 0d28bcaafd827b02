package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/coupon"
)

type checkoutItemDTO struct {
	ProductID string `json:"product_id"`
	OptionID  string `json:"option_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type checkoutDTO struct {
	ID          string            `json:"id"`
	Items       []checkoutItemDTO `json:"items"`
	Subtotal    string            `json:"subtotal"`
	Discount    string            `json:"discount"`
	TotalAmount string            `json:"total_amount"`
	CouponCode  string            `json:"coupon_code,omitempty"`
	Status      string            `json:"status"`
	// ExpiresAt is a UI hint; the deadline itself is enforced server-side.
	ExpiresAt time.Time `json:"expires_at"`
}

func toCheckoutDTO(ck *checkout.Checkout) checkoutDTO {
	items := make([]checkoutItemDTO, len(ck.Items))
	for i, it := range ck.Items {
		items[i] = checkoutItemDTO{
			ProductID: it.ProductID,
			OptionID:  it.OptionID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal.StringFixed(2),
		}
	}
	return checkoutDTO{
		ID:          ck.ID,
		Items:       items,
		Subtotal:    ck.Subtotal.StringFixed(2),
		Discount:    ck.Discount.StringFixed(2),
		TotalAmount: ck.TotalAmount.StringFixed(2),
		CouponCode:  ck.CouponCode,
		Status:      string(ck.Status),
		ExpiresAt:   ck.ExpiresAt,
	}
}

type startCheckoutRequest struct {
	Billing *checkout.Address `json:"billing"`
}

// StartCheckout stages a priced checkout from the customer's cart.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	if cid == "" {
		respondError(w, http.StatusBadRequest, "X-Customer-ID header required")
		return
	}

	var req startCheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ck, err := h.checkouts.Start(r.Context(), cid, req.Billing)
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, toCheckoutDTO(ck))
}

// CancelCheckout cancels a pending checkout. Idempotent.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	err := h.checkouts.Cancel(r.Context(), chi.URLParam(r, "checkoutID"))
	if err != nil {
		if errors.Is(err, checkout.ErrNotFound) {
			respondError(w, http.StatusNotFound, "checkout not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon validates and attaches a manually entered coupon code. Each
// failed check surfaces as a specific message; the customer asked for this
// code, so nothing fails silently.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "code is required")
		return
	}

	ck, err := h.checkouts.ApplyCoupon(r.Context(), chi.URLParam(r, "checkoutID"), req.Code)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutDTO(ck))
}

type couponEvaluationDTO struct {
	Applied   bool   `json:"applied"`
	Code      string `json:"code,omitempty"`
	Discount  string `json:"discount,omitempty"`
	Remaining string `json:"remaining,omitempty"`
	Message   string `json:"message,omitempty"`
}

func toEvaluationDTO(ev *coupon.Evaluation) couponEvaluationDTO {
	dto := couponEvaluationDTO{
		Applied: ev.Applied,
		Code:    ev.Code,
		Message: ev.Message,
	}
	if ev.Applied {
		dto.Discount = ev.Discount.StringFixed(2)
	}
	if ev.Remaining.IsPositive() {
		dto.Remaining = ev.Remaining.StringFixed(2)
	}
	return dto
}

type removeCouponResponse struct {
	Checkout   checkoutDTO         `json:"checkout"`
	AutoCoupon couponEvaluationDTO `json:"auto_coupon"`
}

// RemoveCoupon detaches the coupon and reports the auto-apply re-evaluation.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ck, eval, err := h.checkouts.RemoveCoupon(r.Context(), chi.URLParam(r, "checkoutID"))
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, removeCouponResponse{
		Checkout:   toCheckoutDTO(ck),
		AutoCoupon: toEvaluationDTO(eval),
	})
}

// AutoApplyCoupon evaluates the auto-apply coupon for a checkout.
// Ineligibility is a normal response, never an error status.
func (h *Handler) AutoApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ck, eval, err := h.checkouts.AutoApply(r.Context(), chi.URLParam(r, "checkoutID"))
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, removeCouponResponse{
		Checkout:   toCheckoutDTO(ck),
		AutoCoupon: toEvaluationDTO(eval),
	})
}

// respondCheckoutError maps checkout and coupon domain errors to HTTP
// responses.
func (h *Handler) respondCheckoutError(w http.ResponseWriter, err error) {
	var ineligible *coupon.IneligibleError
	switch {
	case errors.Is(err, checkout.ErrNotFound):
		respondError(w, http.StatusNotFound, "checkout not found")
	case errors.Is(err, checkout.ErrNotPending), errors.Is(err, checkout.ErrExpired):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ineligible):
		respondError(w, http.StatusUnprocessableEntity, ineligible.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponNotStarted),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrCustomerLimitReached):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
