package web

import (
	"net/http"

	"phone-resale/internal/app"
)

// apiListSupplierOrders handles GET /api/supplier-orders?status=.
func (h *Handler) apiListSupplierOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListSupplierOrders(r.Context(), r.URL.Query().Get("status"))
	h.respond(w, r, "ListSupplierOrders", res, err)
}

func (h *Handler) apiGetSupplierOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetSupplierOrder(r.Context(), id)
	h.respond(w, r, "GetSupplierOrder", res, err)
}

func (h *Handler) apiCreateSupplierOrder(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSupplierOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateSupplierOrder(r.Context(), req)
	h.created(w, r, "CreateSupplierOrder", res, err)
}

func (h *Handler) apiMarkInTransit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.MarkOrderInTransit(r.Context(), id)
	h.respond(w, r, "MarkOrderInTransit", res, err)
}

func (h *Handler) apiReceiveSupplierOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ReceiveSupplierOrder(r.Context(), actorID(r), id)
	h.respond(w, r, "ReceiveSupplierOrder", res, err)
}

func (h *Handler) apiPaySupplierOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.SupplierPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrderID = id
	res, err := h.svc.PaySupplierOrder(r.Context(), actorID(r), req)
	h.respond(w, r, "PaySupplierOrder", res, err)
}
