// Package handler exposes the checkout-to-fulfillment core over HTTP.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digikart/digikart/internal/domain/cart"
	"github.com/digikart/digikart/internal/domain/checkout"
	"github.com/digikart/digikart/internal/domain/order"
	"github.com/digikart/digikart/internal/download"
	"github.com/digikart/digikart/internal/payment"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler wires the domain services to HTTP routes.
type Handler struct {
	carts      *cart.Service
	checkouts  *checkout.Service
	orders     *order.Service
	downloads  *download.Service
	gateway    *payment.Client
	adminToken string
}

// New constructs a Handler with the required domain dependencies.
func New(
	carts *cart.Service,
	checkouts *checkout.Service,
	orders *order.Service,
	downloads *download.Service,
	gateway *payment.Client,
	adminToken string,
) *Handler {
	return &Handler{
		carts:      carts,
		checkouts:  checkouts,
		orders:     orders,
		downloads:  downloads,
		gateway:    gateway,
		adminToken: adminToken,
	}
}

// Routes mounts every API route on a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddCartItem)
		r.Delete("/items/{productID}", h.RemoveCartItem)
		r.Delete("/", h.ClearCart)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.StartCheckout)
		r.Delete("/{checkoutID}", h.CancelCheckout)
		r.Post("/{checkoutID}/coupon", h.ApplyCoupon)
		r.Delete("/{checkoutID}/coupon", h.RemoveCoupon)
		r.Post("/{checkoutID}/auto-coupon", h.AutoApplyCoupon)
	})

	r.Post("/orders", h.CreatePaymentOrder)
	r.Get("/orders/{orderRef}", h.GetOrder)
	r.Post("/payments/verify", h.VerifyPayment)
	r.Post("/webhooks/payment", h.PaymentWebhook)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Put("/orders/{orderID}/status", h.UpdateOrderStatus)
	})

	r.Post("/downloads/token", h.IssueDownloadToken)
	r.Get("/downloads/file", h.DownloadFile)

	return r
}

// customerID extracts the caller's customer identity. Guests get an empty id
// and are rejected by the routes that need one.
func customerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Customer-ID"))
}

// requireAdmin gates administrative routes behind the shared admin token.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Code: status, Message: message})
}
