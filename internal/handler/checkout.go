package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/digishop/internal/domain/checkout"
	"github.com/xenking/digishop/internal/domain/order"
	"github.com/xenking/digishop/pkg/httpmiddleware"
)

type createOrderRequest struct {
	BuyerID       string `json:"buyer_id,omitempty"`
	RecipientName string `json:"recipient_name"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
}

type orderLineResponse struct {
	ProductID string  `json:"product_id"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	BuyerID        string              `json:"buyer_id"`
	RecipientName  string              `json:"recipient_name"`
	Address        string              `json:"address"`
	Phone          string              `json:"phone"`
	TotalPrice     float64             `json:"total_price"`
	IsPaid         bool                `json:"is_paid"`
	Status         string              `json:"status"`
	TransactionRef string              `json:"transaction_ref,omitempty"`
	Lines          []orderLineResponse `json:"lines,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		RecipientName:  o.RecipientName,
		Address:        o.Address,
		Phone:          o.Phone,
		TotalPrice:     o.TotalPrice.InexactFloat64(),
		IsPaid:         o.IsPaid,
		Status:         string(o.Status),
		TransactionRef: o.TransactionRef,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			Quantity:  l.Quantity,
		})
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return
	}
	if req.RecipientName == "" || req.Address == "" || req.Phone == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "recipient_name, address and phone are required"})
		return
	}

	sessionID := httpmiddleware.SessionFromContext(r.Context())
	o, err := h.checkout.CreateOrder(r.Context(), sessionID, checkout.CreateOrderRequest{
		BuyerID:       req.BuyerID,
		RecipientName: req.RecipientName,
		Address:       req.Address,
		Phone:         req.Phone,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

type initiatePaymentResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	sessionID := httpmiddleware.SessionFromContext(r.Context())
	redirectURL, err := h.checkout.InitiatePayment(r.Context(), sessionID, chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, initiatePaymentResponse{RedirectURL: redirectURL})
}

type paymentResultResponse struct {
	Status         string `json:"status"`
	OrderID        string `json:"order_id"`
	TransactionRef string `json:"transaction_ref"`
}

// paymentCallback handles the gateway redirect. The provider appends
// Authority and Status query parameters; Status other than OK means the
// buyer cancelled.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var (
		authority = r.URL.Query().Get("Authority")
		status    = r.URL.Query().Get("Status")
		sessionID = httpmiddleware.SessionFromContext(r.Context())
	)

	o, err := h.checkout.VerifyPayment(r.Context(), sessionID, authority, status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, paymentResultResponse{
		Status:         "paid",
		OrderID:        o.ID,
		TransactionRef: o.TransactionRef,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer_id")
	if buyerID == "" {
		buyerID = httpmiddleware.SessionFromContext(r.Context())
	}

	orders, err := h.orders.ListByBuyer(r.Context(), buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
