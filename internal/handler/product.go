package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/digishop/internal/domain/product"
)

type productResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Category string  `json:"category,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
}

func (h *Handler) toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Stock:    p.Stock,
		Category: p.Category,
		ImageURL: h.imageURL(p.ImageURL),
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = h.toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProductResponse(*p))
}
