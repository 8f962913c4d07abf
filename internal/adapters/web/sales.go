package web

import (
	"net/http"

	"phone-resale/internal/app"
)

func (h *Handler) apiCreateSale(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateSale(r.Context(), actorID(r), req)
	h.created(w, r, "CreateSale", res, err)
}

func (h *Handler) apiFinalizeSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.FinalizeSaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SaleID = id
	res, err := h.svc.FinalizeSale(r.Context(), actorID(r), req)
	h.respond(w, r, "FinalizeSale", res, err)
}

func (h *Handler) apiCancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.CancelSale(r.Context(), actorID(r), id)
	h.respond(w, r, "CancelSale", res, err)
}

func (h *Handler) apiGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetSale(r.Context(), id)
	h.respond(w, r, "GetSale", res, err)
}

func (h *Handler) apiListPendingSales(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListPendingSales(r.Context())
	h.respond(w, r, "ListPendingSales", res, err)
}

func (h *Handler) apiRefundDevice(w http.ResponseWriter, r *http.Request) {
	var req app.RefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.RefundDevice(r.Context(), actorID(r), req)
	h.respond(w, r, "RefundDevice", res, err)
}

func (h *Handler) apiExchange(w http.ResponseWriter, r *http.Request) {
	var req app.ExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ExchangeDevice(r.Context(), actorID(r), req)
	h.respond(w, r, "ExchangeDevice", res, err)
}
