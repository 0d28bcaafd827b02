package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/digikart/digikart/internal/domain/cart"
	"github.com/digikart/digikart/internal/domain/product"
)

type cartItemDTO struct {
	ProductID string `json:"product_id"`
	OptionID  string `json:"option_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type cartDTO struct {
	Items    []cartItemDTO `json:"items"`
	Subtotal string        `json:"subtotal"`
	Count    int           `json:"count"`
}

func toCartDTO(c *cart.Cart) cartDTO {
	items := make([]cartItemDTO, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemDTO{
			ProductID: it.ProductID,
			OptionID:  it.OptionID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
		}
	}
	return cartDTO{
		Items:    items,
		Subtotal: c.Subtotal().StringFixed(2),
		Count:    c.Count(),
	}
}

// GetCart returns the customer's cart with derived totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	if cid == "" {
		respondError(w, http.StatusBadRequest, "X-Customer-ID header required")
		return
	}

	c, err := h.carts.Get(r.Context(), cid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	OptionID  string `json:"option_id"`
}

// AddCartItem adds a design option to the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	if cid == "" {
		respondError(w, http.StatusBadRequest, "X-Customer-ID header required")
		return
	}

	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	c, err := h.carts.AddItem(r.Context(), cid, req.ProductID, req.OptionID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "product not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// RemoveCartItem removes a product (optionally a single option) from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	if cid == "" {
		respondError(w, http.StatusBadRequest, "X-Customer-ID header required")
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), cid,
		chi.URLParam(r, "productID"), r.URL.Query().Get("option"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// ClearCart empties the customer's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	if cid == "" {
		respondError(w, http.StatusBadRequest, "X-Customer-ID header required")
		return
	}

	if err := h.carts.Clear(r.Context(), cid); err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
