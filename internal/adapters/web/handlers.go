package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"phone-resale/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	logger    logrus.FieldLogger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, logger logrus.FieldLogger) http.Handler {
	h := &Handler{svc: svc, jwtSecret: jwtSecret, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20))

		r.Get("/api/me", h.me)

		// ── Shifts ────────────────────────────────────────────────────────────
		r.Get("/api/shifts/active", h.apiActiveShift)
		r.Post("/api/shifts/start", h.apiStartShift)
		r.Post("/api/shifts/end", h.apiEndShift)

		// ── Devices (read) ────────────────────────────────────────────────────
		r.Get("/api/devices", h.apiListDevices)
		r.Get("/api/devices/by-serial/{serial}", h.apiFindDevice)
		r.Get("/api/devices/{id}", h.apiGetDevice)
		r.Get("/api/devices/{id}/history", h.apiDeviceHistory)
		r.Get("/api/stock", h.apiStockLevels)
		r.Get("/api/stock/{id}/movements", h.apiMovements)

		// ── Quality control and warehouse ─────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(PermInventory))
			r.Post("/api/devices/{id}/inspection", h.apiSubmitInspection)
			r.Post("/api/devices/{id}/battery-test", h.apiSubmitBatteryTest)
			r.Post("/api/devices/{id}/move", h.apiMoveDevice)
			r.Post("/api/devices/{id}/loaner-pool", h.apiAddToLoanerPool)
			r.Post("/api/devices/{id}/return-from-supplier", h.apiReturnFromSupplier)
			r.Post("/api/devices/{id}/supplier-replacement", h.apiSupplierReplacement)
			r.Post("/api/devices/packaging", h.apiConfirmPackaging)
			r.Post("/api/devices/accept", h.apiAcceptIntoWarehouse)
			r.Post("/api/devices/send-to-supplier", h.apiSendToSupplier)
		})

		// ── Sales ─────────────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(PermSales))
			r.Get("/api/sales/pending", h.apiListPendingSales)
			r.Get("/api/sales/{id}", h.apiGetSale)
			r.Post("/api/sales", h.apiCreateSale)
			r.Post("/api/sales/{id}/finalize", h.apiFinalizeSale)
			r.Post("/api/sales/{id}/cancel", h.apiCancelSale)
			r.Post("/api/refunds", h.apiRefundDevice)
			r.Post("/api/exchanges", h.apiExchange)
		})

		// ── Supplier orders ───────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(PermPurchasing))
			r.Get("/api/supplier-orders", h.apiListSupplierOrders)
			r.Get("/api/supplier-orders/{id}", h.apiGetSupplierOrder)
			r.Post("/api/supplier-orders", h.apiCreateSupplierOrder)
			r.Post("/api/supplier-orders/{id}/in-transit", h.apiMarkInTransit)
			r.Post("/api/supplier-orders/{id}/receive", h.apiReceiveSupplierOrder)
			r.Put("/api/devices/{id}/purchase-price", h.apiSetPurchasePrice)
		})

		// ── Repairs and loaners ───────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(PermRepairs))
			r.Get("/api/repairs", h.apiListRepairs)
			r.Get("/api/repairs/{id}", h.apiGetRepair)
			r.Get("/api/repairs/{id}/loaners", h.apiListLoaners)
			r.Post("/api/repairs", h.apiStartRepair)
			r.Post("/api/repairs/{id}/finish", h.apiFinishRepair)
			r.Post("/api/repairs/{id}/loaners", h.apiIssueLoaner)
			r.Post("/api/loaners/{id}/return", h.apiReturnLoaner)
		})

		// ── Money ─────────────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(PermFinance))
			r.Get("/api/ledger/balances", h.apiBalances)
			r.Get("/api/ledger/accounts/{id}/entries", h.apiListEntries)
			r.Get("/api/ledger/snapshots", h.apiListSnapshots)
			r.Post("/api/ledger/snapshots", h.apiTakeSnapshot)
			r.Post("/api/ledger/entries", h.apiPostManualEntry)
			r.Post("/api/ledger/entries/{id}/reverse", h.apiReverseEntry)
			r.Post("/api/supplier-orders/{id}/payments", h.apiPaySupplierOrder)
			r.Post("/api/repairs/{id}/payment", h.apiPayRepair)
		})
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeJSON decodes the body into v. It writes 413 when the body exceeds the
// limit and 400 for any other decode failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// pathID reads a positive integer URL parameter, writing 400 if it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name+" in path", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int {
	return actorFromContext(r.Context()).ID
}

// respond writes v or the error from the service call that produced it.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, v any, err error) {
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, v)
}

func (h *Handler) created(w http.ResponseWriter, r *http.Request, op string, v any, err error) {
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, v)
}
