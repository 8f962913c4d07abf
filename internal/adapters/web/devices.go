package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"phone-resale/internal/app"
)

// apiListDevices handles GET /api/devices?technical=&commercial=.
func (h *Handler) apiListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.ListDevices(r.Context(), q.Get("technical"), q.Get("commercial"))
	h.respond(w, r, "ListDevices", res, err)
}

func (h *Handler) apiGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetDevice(r.Context(), id)
	h.respond(w, r, "GetDevice", res, err)
}

func (h *Handler) apiFindDevice(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.FindDeviceBySerial(r.Context(), chi.URLParam(r, "serial"))
	h.respond(w, r, "FindDeviceBySerial", res, err)
}

func (h *Handler) apiDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.DeviceHistory(r.Context(), id)
	h.respond(w, r, "DeviceHistory", res, err)
}

func (h *Handler) apiSubmitInspection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.InspectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DeviceID = id
	res, err := h.svc.SubmitInspection(r.Context(), actorID(r), req)
	h.respond(w, r, "SubmitInspection", res, err)
}

func (h *Handler) apiSubmitBatteryTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.BatteryTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DeviceID = id
	res, err := h.svc.SubmitBatteryTest(r.Context(), actorID(r), req)
	h.respond(w, r, "SubmitBatteryTest", res, err)
}

func (h *Handler) apiConfirmPackaging(w http.ResponseWriter, r *http.Request) {
	var req app.DeviceBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ConfirmPackaging(r.Context(), actorID(r), req)
	h.respond(w, r, "ConfirmPackaging", res, err)
}

func (h *Handler) apiAcceptIntoWarehouse(w http.ResponseWriter, r *http.Request) {
	var req app.DeviceBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AcceptIntoWarehouse(r.Context(), actorID(r), req)
	h.respond(w, r, "AcceptIntoWarehouse", res, err)
}

func (h *Handler) apiMoveDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.MoveDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DeviceID = id
	res, err := h.svc.MoveDevice(r.Context(), actorID(r), req)
	h.respond(w, r, "MoveDevice", res, err)
}

func (h *Handler) apiSendToSupplier(w http.ResponseWriter, r *http.Request) {
	var req app.DeviceBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.SendToSupplier(r.Context(), actorID(r), req)
	h.respond(w, r, "SendToSupplier", res, err)
}

func (h *Handler) apiReturnFromSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ReturnFromSupplier(r.Context(), actorID(r), id)
	h.respond(w, r, "ReturnFromSupplier", res, err)
}

func (h *Handler) apiAddToLoanerPool(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.AddToLoanerPool(r.Context(), actorID(r), id)
	h.respond(w, r, "AddToLoanerPool", res, err)
}

func (h *Handler) apiSupplierReplacement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.SupplierReplacementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OriginalDeviceID = id
	res, err := h.svc.SupplierReplacement(r.Context(), actorID(r), req)
	h.created(w, r, "SupplierReplacement", res, err)
}

func (h *Handler) apiSetPurchasePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.PurchasePriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DeviceID = id
	res, err := h.svc.SetPurchasePrice(r.Context(), req)
	h.respond(w, r, "SetPurchasePrice", res, err)
}

// ── Stock ─────────────────────────────────────────────────────────────────────

func (h *Handler) apiStockLevels(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetStockLevels(r.Context())
	h.respond(w, r, "GetStockLevels", res, err)
}

func (h *Handler) apiMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ListMovements(r.Context(), id)
	h.respond(w, r, "ListMovements", res, err)
}
