package app

import (
	"time"

	"github.com/shopspring/decimal"

	"phone-resale/internal/core"
)

// Result types are the JSON shapes adapters return. Statuses are plain strings.

type DeviceView struct {
	ID               int             `json:"id"`
	SerialNumber     *string         `json:"serial_number"`
	ModelID          int             `json:"model_id"`
	DisplayName      string          `json:"display_name"`
	ModelNumber      *string         `json:"model_number,omitempty"`
	TechnicalStatus  string          `json:"technical_status"`
	CommercialStatus string          `json:"commercial_status"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	SupplierOrderID  *int            `json:"supplier_order_id,omitempty"`
	AddedAt          time.Time       `json:"added_at"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
}

func deviceView(d core.Device) DeviceView {
	return DeviceView{
		ID:               d.ID,
		SerialNumber:     d.SerialNumber,
		ModelID:          d.ModelID,
		DisplayName:      d.DisplayName(),
		ModelNumber:      d.ModelNumber,
		TechnicalStatus:  string(d.TechnicalStatus),
		CommercialStatus: string(d.CommercialStatus),
		PurchasePrice:    d.PurchasePrice,
		SupplierOrderID:  d.SupplierOrderID,
		AddedAt:          d.AddedAt,
		AcceptedAt:       d.AcceptedAt,
	}
}

// EventView carries the typed payload plus its rendered sentence.
type EventView struct {
	ID        int               `json:"id"`
	DeviceID  int               `json:"device_id"`
	ActorID   int               `json:"actor_id"`
	Kind      string            `json:"kind"`
	Text      string            `json:"text"`
	Payload   core.AuditPayload `json:"payload"`
	Detail    string            `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func eventView(e core.AuditEvent) EventView {
	v := EventView{
		ID:        e.ID,
		DeviceID:  e.DeviceID,
		ActorID:   e.ActorID,
		Kind:      string(e.Kind),
		Payload:   e.Payload,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt,
	}
	if e.Payload != nil {
		v.Text = e.Payload.Render()
	}
	return v
}

type TransitionView struct {
	Device DeviceView `json:"device"`
	Event  EventView  `json:"event"`
}

func transitionView(r core.TransitionResult) TransitionView {
	return TransitionView{Device: deviceView(r.Device), Event: eventView(r.Event)}
}

func transitionViews(rs []core.TransitionResult) []TransitionView {
	out := make([]TransitionView, len(rs))
	for i, r := range rs {
		out[i] = transitionView(r)
	}
	return out
}

type DeviceHistoryResult struct {
	Device DeviceView  `json:"device"`
	Events []EventView `json:"events"`
}

// ── Inventory ─────────────────────────────────────────────────────────────────

type ProductView struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

func productView(p core.ProductRef) ProductView {
	if p == nil {
		return ProductView{}
	}
	return ProductView{Kind: string(p.Kind()), ID: p.ID()}
}

type StockLevelView struct {
	StockUnitID  int         `json:"stock_unit_id"`
	Product      ProductView `json:"product"`
	ProductName  string      `json:"product_name"`
	SerialNumber *string     `json:"serial_number,omitempty"`
	Location     string      `json:"location"`
	Quantity     int         `json:"quantity"`
}

type StockResult struct {
	Levels []StockLevelView `json:"levels"`
}

type MovementView struct {
	ID            int       `json:"id"`
	StockUnitID   int       `json:"stock_unit_id"`
	Type          string    `json:"type"`
	QuantityDelta int       `json:"quantity_delta"`
	FromLocation  *string   `json:"from_location,omitempty"`
	ToLocation    *string   `json:"to_location,omitempty"`
	ActorID       int       `json:"actor_id"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func locationPtr(l *core.Location) *string {
	if l == nil {
		return nil
	}
	s := string(*l)
	return &s
}

// ── Sales ─────────────────────────────────────────────────────────────────────

type SaleLineView struct {
	ID          int              `json:"id"`
	StockUnitID int              `json:"stock_unit_id"`
	Product     ProductView      `json:"product"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	UnitCost    decimal.Decimal  `json:"unit_cost"`
	Profit      *decimal.Decimal `json:"profit"`
}

type SalePaymentView struct {
	AccountID int             `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

type SaleView struct {
	ID                int               `json:"id"`
	CustomerID        *int              `json:"customer_id,omitempty"`
	CustomerName      string            `json:"customer_name,omitempty"`
	ActorID           int               `json:"actor_id"`
	SoldAt            time.Time         `json:"sold_at"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	Discount          decimal.Decimal   `json:"discount"`
	PaymentAdjustment decimal.Decimal   `json:"payment_adjustment"`
	Total             decimal.Decimal   `json:"total"`
	Status            string            `json:"status"`
	CashReceived      *decimal.Decimal  `json:"cash_received,omitempty"`
	ChangeGiven       *decimal.Decimal  `json:"change_given,omitempty"`
	DeliveryMethod    string            `json:"delivery_method,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	Lines             []SaleLineView    `json:"lines"`
	Payments          []SalePaymentView `json:"payments"`
}

func saleView(s core.Sale) SaleView {
	v := SaleView{
		ID:                s.ID,
		CustomerID:        s.CustomerID,
		CustomerName:      s.CustomerName,
		ActorID:           s.ActorID,
		SoldAt:            s.SoldAt,
		Subtotal:          s.Subtotal,
		Discount:          s.Discount,
		PaymentAdjustment: s.PaymentAdjustment,
		Total:             s.Total,
		Status:            string(s.Status),
		CashReceived:      s.CashReceived,
		ChangeGiven:       s.ChangeGiven,
		DeliveryMethod:    s.DeliveryMethod,
		Notes:             s.Notes,
		PaidAt:            s.PaidAt,
		Lines:             make([]SaleLineView, len(s.Lines)),
		Payments:          make([]SalePaymentView, len(s.Payments)),
	}
	for i, l := range s.Lines {
		v.Lines[i] = SaleLineView{
			ID:          l.ID,
			StockUnitID: l.StockUnitID,
			Product:     productView(l.Product),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			UnitCost:    l.UnitCost,
			Profit:      l.Profit,
		}
	}
	for i, p := range s.Payments {
		v.Payments[i] = SalePaymentView{AccountID: p.AccountID, Amount: p.Amount, Method: string(p.Method)}
	}
	return v
}

// ── Supplier orders ───────────────────────────────────────────────────────────

type SupplierOrderLineView struct {
	ID          int             `json:"id"`
	ModelID     *int            `json:"model_id,omitempty"`
	AccessoryID *int            `json:"accessory_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type SupplierOrderView struct {
	ID            int                     `json:"id"`
	SupplierID    int                     `json:"supplier_id"`
	SupplierName  string                  `json:"supplier_name"`
	OrderedAt     time.Time               `json:"ordered_at"`
	Status        string                  `json:"status"`
	PaymentStatus string                  `json:"payment_status"`
	ReceivedAt    *time.Time              `json:"received_at,omitempty"`
	Total         decimal.Decimal         `json:"total"`
	Paid          decimal.Decimal         `json:"paid"`
	Due           decimal.Decimal         `json:"due"`
	Lines         []SupplierOrderLineView `json:"lines"`
}

func supplierOrderView(o core.SupplierOrder) SupplierOrderView {
	v := SupplierOrderView{
		ID:            o.ID,
		SupplierID:    o.SupplierID,
		SupplierName:  o.SupplierName,
		OrderedAt:     o.OrderedAt,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		ReceivedAt:    o.ReceivedAt,
		Total:         o.Total,
		Paid:          o.Paid,
		Due:           o.Due(),
		Lines:         make([]SupplierOrderLineView, len(o.Lines)),
	}
	for i, l := range o.Lines {
		v.Lines[i] = SupplierOrderLineView{ID: l.ID, ModelID: l.ModelID, AccessoryID: l.AccessoryID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return v
}

type ReceiveResult struct {
	Order          SupplierOrderView `json:"order"`
	DeviceIDs      []int             `json:"device_ids"`
	AccessoryUnits []int             `json:"accessory_stock_unit_ids"`
}

// ── Repairs ───────────────────────────────────────────────────────────────────

type RepairView struct {
	ID              int              `json:"id"`
	DeviceID        int              `json:"device_id"`
	ActorID         int              `json:"actor_id"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	CustomerName    string           `json:"customer_name"`
	CustomerPhone   string           `json:"customer_phone,omitempty"`
	Problem         string           `json:"problem"`
	DeviceCondition string           `json:"device_condition,omitempty"`
	IncludedItems   string           `json:"included_items,omitempty"`
	EstimatedCost   *decimal.Decimal `json:"estimated_cost,omitempty"`
	FinalCost       *decimal.Decimal `json:"final_cost,omitempty"`
	ServiceCost     *decimal.Decimal `json:"service_cost,omitempty"`
	WorkPerformed   string           `json:"work_performed,omitempty"`
	AcceptedAt      time.Time        `json:"accepted_at"`
	ReturnedAt      *time.Time       `json:"returned_at,omitempty"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
}

func repairView(r core.Repair) RepairView {
	return RepairView{
		ID:              r.ID,
		DeviceID:        r.DeviceID,
		ActorID:         r.ActorID,
		Type:            string(r.Type),
		Status:          string(r.Status),
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		Problem:         r.Problem,
		DeviceCondition: r.DeviceCondition,
		IncludedItems:   r.IncludedItems,
		EstimatedCost:   r.EstimatedCost,
		FinalCost:       r.FinalCost,
		ServiceCost:     r.ServiceCost,
		WorkPerformed:   r.WorkPerformed,
		AcceptedAt:      r.AcceptedAt,
		ReturnedAt:      r.ReturnedAt,
		PaidAt:          r.PaidAt,
	}
}

type ExchangeResult struct {
	SaleID      int            `json:"sale_id"`
	Original    TransitionView `json:"original"`
	Replacement TransitionView `json:"replacement"`
}

type ReplacementResult struct {
	Original    TransitionView `json:"original"`
	Replacement DeviceView     `json:"replacement"`
}

type LoanerView struct {
	ID         int        `json:"id"`
	RepairID   int        `json:"repair_id"`
	DeviceID   int        `json:"device_id"`
	ActorID    int        `json:"actor_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

func loanerView(a core.LoanerAssignment) LoanerView {
	return LoanerView{ID: a.ID, RepairID: a.RepairID, DeviceID: a.DeviceID, ActorID: a.ActorID, IssuedAt: a.IssuedAt, ReturnedAt: a.ReturnedAt}
}

// ── Ledger and shifts ─────────────────────────────────────────────────────────

type LedgerEntryView struct {
	ID             int             `json:"id"`
	OperationID    string          `json:"operation_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Category       string          `json:"category"`
	AccountID      int             `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	CounterpartyID *int            `json:"counterparty_id,omitempty"`
	Description    string          `json:"description"`
	ActorID        int             `json:"actor_id"`
}

func ledgerEntryView(e core.LedgerEntry) LedgerEntryView {
	return LedgerEntryView{
		ID:             e.ID,
		OperationID:    e.OperationID.String(),
		OccurredAt:     e.OccurredAt,
		Category:       e.CategoryCode,
		AccountID:      e.AccountID,
		Amount:         e.Amount,
		CounterpartyID: e.CounterpartyID,
		Description:    e.Description,
		ActorID:        e.ActorID,
	}
}

type BalanceView struct {
	AccountID int             `json:"account_id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
}

type BalancesResult struct {
	Accounts []BalanceView   `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func balanceViews(bs []core.AccountBalance) []BalanceView {
	out := make([]BalanceView, len(bs))
	for i, b := range bs {
		out[i] = BalanceView{AccountID: b.AccountID, Name: b.Name, Balance: b.Balance}
	}
	return out
}

type SnapshotView struct {
	ID             int             `json:"id"`
	TakenAt        time.Time       `json:"taken_at"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	Accounts       []BalanceView   `json:"accounts"`
}

func snapshotView(s core.FinancialSnapshot) SnapshotView {
	return SnapshotView{
		ID:             s.ID,
		TakenAt:        s.TakenAt,
		CashBalance:    s.CashBalance,
		InventoryValue: s.InventoryValue,
		Accounts:       balanceViews(s.Accounts),
	}
}

type ShiftView struct {
	ID        int        `json:"id"`
	ActorID   int        `json:"actor_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func shiftView(s core.Shift) ShiftView {
	return ShiftView{ID: s.ID, ActorID: s.ActorID, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
}
