package web

import (
	"net/http"

	"phone-resale/internal/app"
)

func (h *Handler) apiBalances(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetBalances(r.Context())
	h.respond(w, r, "GetBalances", res, err)
}

func (h *Handler) apiListEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ListEntries(r.Context(), id)
	h.respond(w, r, "ListEntries", res, err)
}

func (h *Handler) apiPostManualEntry(w http.ResponseWriter, r *http.Request) {
	var req app.ManualEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.PostManualEntry(r.Context(), actorID(r), req)
	h.created(w, r, "PostManualEntry", res, err)
}

func (h *Handler) apiReverseEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.ReverseEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.EntryID = id
	res, err := h.svc.ReverseEntry(r.Context(), actorID(r), req)
	h.created(w, r, "ReverseEntry", res, err)
}

func (h *Handler) apiTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.TakeSnapshot(r.Context())
	h.created(w, r, "TakeSnapshot", res, err)
}

func (h *Handler) apiListSnapshots(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListSnapshots(r.Context())
	h.respond(w, r, "ListSnapshots", res, err)
}

// ── Shifts ────────────────────────────────────────────────────────────────────

func (h *Handler) apiStartShift(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartShift(r.Context(), actorID(r))
	h.created(w, r, "StartShift", res, err)
}

func (h *Handler) apiEndShift(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.EndShift(r.Context(), actorID(r))
	h.respond(w, r, "EndShift", res, err)
}

func (h *Handler) apiActiveShift(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ActiveShift(r.Context(), actorID(r))
	h.respond(w, r, "ActiveShift", res, err)
}
