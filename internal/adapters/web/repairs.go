package web

import (
	"net/http"

	"phone-resale/internal/app"
)

func (h *Handler) apiListRepairs(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListRepairs(r.Context(), r.URL.Query().Get("status"))
	h.respond(w, r, "ListRepairs", res, err)
}

func (h *Handler) apiGetRepair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetRepair(r.Context(), id)
	h.respond(w, r, "GetRepair", res, err)
}

func (h *Handler) apiStartRepair(w http.ResponseWriter, r *http.Request) {
	var req app.StartRepairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.StartRepair(r.Context(), actorID(r), req)
	h.created(w, r, "StartRepair", res, err)
}

func (h *Handler) apiFinishRepair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.FinishRepairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RepairID = id
	res, err := h.svc.FinishRepair(r.Context(), actorID(r), req)
	h.respond(w, r, "FinishRepair", res, err)
}

func (h *Handler) apiPayRepair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.RepairPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RepairID = id
	res, err := h.svc.PayRepair(r.Context(), actorID(r), req)
	h.respond(w, r, "PayRepair", res, err)
}

// ── Loaners ───────────────────────────────────────────────────────────────────

func (h *Handler) apiIssueLoaner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.IssueLoanerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RepairID = id
	res, err := h.svc.IssueLoaner(r.Context(), actorID(r), req)
	h.created(w, r, "IssueLoaner", res, err)
}

func (h *Handler) apiReturnLoaner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ReturnLoaner(r.Context(), actorID(r), id)
	h.respond(w, r, "ReturnLoaner", res, err)
}

func (h *Handler) apiListLoaners(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ListLoaners(r.Context(), id)
	h.respond(w, r, "ListLoaners", res, err)
}
