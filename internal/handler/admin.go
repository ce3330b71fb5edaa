package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/digishop/internal/domain/order"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if err := h.orders.UpdateStatus(r.Context(), orderID, status); err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchCancelRequest struct {
	IDs []string `json:"ids"`
}

type batchCancelResponse struct {
	Cancelled []string          `json:"cancelled"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// batchCancel cancels orders one by one. Each order gets its own
// reconciled transaction so stock restoration fires per order; a bulk
// UPDATE would skip reconciliation entirely.
func (h *Handler) batchCancel(w http.ResponseWriter, r *http.Request) {
	var req batchCancelRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return
	}
	if len(req.IDs) == 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "ids required"})
		return
	}

	resp := batchCancelResponse{}
	for _, id := range req.IDs {
		if err := h.orders.UpdateStatus(r.Context(), id, order.StatusCancelled); err != nil {
			zctx.From(r.Context()).Warn("cancel order",
				zap.String("order_id", id), zap.Error(err))
			if resp.Failed == nil {
				resp.Failed = make(map[string]string)
			}
			resp.Failed[id] = err.Error()
			continue
		}
		resp.Cancelled = append(resp.Cancelled, id)
	}
	respondJSON(w, http.StatusOK, resp)
}
