package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/digishop/pkg/httpmiddleware"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Override  bool   `json:"override,omitempty"`
}

type cartItemResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"image_url,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type cartResponse struct {
	Items      []cartItemResponse `json:"items"`
	TotalPrice float64            `json:"total_price"`
}

func (h *Handler) renderCart(w http.ResponseWriter, r *http.Request, sessionID string) {
	items, err := h.carts.Items(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := cartResponse{Items: make([]cartItemResponse, 0, len(items))}
	total := 0.0
	for _, it := range items {
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			ImageURL:  h.imageURL(it.Product.ImageURL),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			LineTotal: it.LineTotal.InexactFloat64(),
		})
		total += it.LineTotal.InexactFloat64()
	}
	resp.TotalPrice = total
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.renderCart(w, r, httpmiddleware.SessionFromContext(r.Context()))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return
	}
	if req.ProductID == "" || req.Quantity < 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "product_id required and quantity must not be negative"})
		return
	}
	qty := req.Quantity
	if qty == 0 && !req.Override {
		qty = 1
	}

	sessionID := httpmiddleware.SessionFromContext(r.Context())
	if _, err := h.carts.Add(r.Context(), sessionID, req.ProductID, qty, req.Override); err != nil {
		respondError(w, r, err)
		return
	}
	h.renderCart(w, r, sessionID)
}

// stepCartItem adjusts a line by one unit. Decrementing the last unit
// removes the line.
func (h *Handler) stepCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID = chi.URLParam(r, "productID")
		action    = chi.URLParam(r, "action")
		sessionID = httpmiddleware.SessionFromContext(r.Context())
		ctx       = r.Context()
	)

	c, err := h.carts.Get(ctx, sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	current := 0
	if line := c.Find(productID); line != nil {
		current = line.Quantity
	}

	switch action {
	case "increment":
		_, err = h.carts.Add(ctx, sessionID, productID, 1, false)
	case "decrement":
		if current > 1 {
			_, err = h.carts.Add(ctx, sessionID, productID, current-1, true)
		} else {
			_, err = h.carts.Remove(ctx, sessionID, productID)
		}
	default:
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "action must be increment or decrement"})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.renderCart(w, r, sessionID)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID := httpmiddleware.SessionFromContext(r.Context())
	if _, err := h.carts.Remove(r.Context(), sessionID, chi.URLParam(r, "productID")); err != nil {
		respondError(w, r, err)
		return
	}
	h.renderCart(w, r, sessionID)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionID := httpmiddleware.SessionFromContext(r.Context())
	if err := h.carts.Clear(r.Context(), sessionID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
