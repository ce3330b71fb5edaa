// Package handler exposes the storefront checkout core over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/digishop/internal/domain/cart"
	"github.com/xenking/digishop/internal/domain/checkout"
	"github.com/xenking/digishop/internal/domain/order"
	"github.com/xenking/digishop/internal/domain/product"
	"github.com/xenking/digishop/internal/domain/stock"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler routes HTTP requests to the domain services.
type Handler struct {
	carts        *cart.Service
	checkout     *checkout.Service
	orders       order.Repository
	products     product.Repository
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	orders order.Repository,
	products product.Repository,
) *Handler {
	return &Handler{
		carts:        carts,
		checkout:     checkoutSvc,
		orders:       orders,
		products:     products,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Post("/cart/items/{productID}/{action}", h.stepCartItem)
		r.Delete("/cart/items/{productID}", h.removeCartItem)
		r.Delete("/cart", h.clearCart)

		r.Post("/checkout", h.createOrder)
		r.Post("/orders/{orderID}/payment", h.initiatePayment)
		r.Get("/payment/callback", h.paymentCallback)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)

		r.Route("/admin/orders", func(r chi.Router) {
			r.Patch("/{orderID}/status", h.updateOrderStatus)
			r.Delete("/{orderID}", h.deleteOrder)
			r.Post("/cancel", h.batchCancel)
		})
	})
	return r
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the domain error taxonomy onto HTTP statuses and a
// stable machine-readable code.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		initErr         *checkout.InitiationError
		verifyErr       *checkout.VerificationError
		insufficientErr *stock.InsufficientStockError
	)

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "empty_cart", Message: err.Error()})
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound),
		errors.Is(err, checkout.ErrNoPendingPayment):
		respondJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, order.ErrInvalidStatus):
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_status", Message: err.Error()})
	case errors.Is(err, checkout.ErrAlreadyPaid):
		respondJSON(w, http.StatusConflict, errorResponse{Code: "already_paid", Message: err.Error()})
	case errors.Is(err, checkout.ErrPaymentCancelled):
		respondJSON(w, http.StatusPaymentRequired, errorResponse{Code: "payment_cancelled", Message: err.Error()})
	case errors.As(err, &verifyErr):
		respondJSON(w, http.StatusPaymentRequired, errorResponse{Code: "payment_verification_failed", Message: verifyErr.Error()})
	case errors.As(err, &initErr):
		respondJSON(w, http.StatusBadGateway, errorResponse{Code: "gateway_initiation_failed", Message: initErr.Error()})
	case errors.As(err, &insufficientErr):
		respondJSON(w, http.StatusConflict, errorResponse{Code: "insufficient_stock", Message: insufficientErr.Error()})
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
