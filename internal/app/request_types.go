package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Devices ───────────────────────────────────────────────────────────────────

type ChecklistResultInput struct {
	ItemID int    `json:"item_id" validate:"required,gt=0"`
	Passed bool   `json:"passed"`
	Note   string `json:"note" validate:"max=500"`
}

// InspectionRequest submits the quality-control checklist of one device.
type InspectionRequest struct {
	DeviceID     int                    `json:"-" validate:"required,gt=0"`
	SerialNumber string                 `json:"serial_number" validate:"required,max=64"`
	ModelNumber  string                 `json:"model_number" validate:"max=64"`
	Results      []ChecklistResultInput `json:"results" validate:"required,min=1,dive"`
}

type BatteryTestRequest struct {
	DeviceID     int       `json:"-" validate:"required,gt=0"`
	StartedAt    time.Time `json:"started_at" validate:"required"`
	EndedAt      time.Time `json:"ended_at" validate:"required"`
	StartPercent int       `json:"start_percent" validate:"gte=0,lte=100"`
	EndPercent   int       `json:"end_percent" validate:"gte=0,lte=100"`
}

// DeviceBatchRequest names several devices for a batch transition.
type DeviceBatchRequest struct {
	DeviceIDs []int  `json:"device_ids" validate:"required,min=1,dive,gt=0"`
	Location  string `json:"location" validate:"omitempty,oneof=WAREHOUSE SHOWCASE LOANER_POOL"`
	Note      string `json:"note" validate:"max=500"`
}

type MoveDeviceRequest struct {
	DeviceID int    `json:"-" validate:"required,gt=0"`
	Location string `json:"location" validate:"required,oneof=WAREHOUSE SHOWCASE"`
}

type PurchasePriceRequest struct {
	DeviceID int             `json:"-" validate:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// ── Sales ─────────────────────────────────────────────────────────────────────

type SaleLineRequest struct {
	StockUnitID int             `json:"stock_unit_id" validate:"required,gt=0"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type PaymentRequest struct {
	AccountID int             `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=CASH CARD CREDIT_INSTALLMENT TRANSFER CRYPTO"`
}

type CreateSaleRequest struct {
	CustomerID        *int              `json:"customer_id" validate:"omitempty,gt=0"`
	Lines             []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount          decimal.Decimal   `json:"discount"`
	PaymentAdjustment decimal.Decimal   `json:"payment_adjustment"`
	Payments          []PaymentRequest  `json:"payments" validate:"dive"`
	Deferred          bool              `json:"deferred"`
	CashReceived      *decimal.Decimal  `json:"cash_received"`
	ChangeGiven       *decimal.Decimal  `json:"change_given"`
	DeliveryMethod    string            `json:"delivery_method" validate:"max=100"`
	Notes             string            `json:"notes" validate:"max=1000"`
}

type FinalizeSaleRequest struct {
	SaleID   int              `json:"-" validate:"required,gt=0"`
	Payments []PaymentRequest `json:"payments" validate:"dive"`
}

type RefundRequest struct {
	DeviceID  int    `json:"device_id" validate:"required,gt=0"`
	AccountID int    `json:"account_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// ── Supplier orders ───────────────────────────────────────────────────────────

type SupplierOrderLineRequest struct {
	ModelID     *int            `json:"model_id" validate:"omitempty,gt=0"`
	AccessoryID *int            `json:"accessory_id" validate:"omitempty,gt=0"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateSupplierOrderRequest struct {
	SupplierID int                        `json:"supplier_id" validate:"required,gt=0"`
	Lines      []SupplierOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type SupplierPaymentRequest struct {
	OrderID   int             `json:"-" validate:"required,gt=0"`
	AccountID int             `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes" validate:"max=500"`
}

// ── Repairs, exchanges, loaners ───────────────────────────────────────────────

type StartRepairRequest struct {
	DeviceID        int              `json:"device_id" validate:"required,gt=0"`
	Type            string           `json:"type" validate:"required,oneof=WARRANTY PAID"`
	CustomerName    string           `json:"customer_name" validate:"required,max=200"`
	CustomerPhone   string           `json:"customer_phone" validate:"max=50"`
	Problem         string           `json:"problem" validate:"required,max=1000"`
	DeviceCondition string           `json:"device_condition" validate:"max=1000"`
	IncludedItems   string           `json:"included_items" validate:"max=500"`
	EstimatedCost   *decimal.Decimal `json:"estimated_cost"`
}

type FinishRepairRequest struct {
	RepairID         int              `json:"-" validate:"required,gt=0"`
	WorkPerformed    string           `json:"work_performed" validate:"required,max=2000"`
	FinalCost        *decimal.Decimal `json:"final_cost"`
	ServiceCost      *decimal.Decimal `json:"service_cost"`
	ExpenseAccountID *int             `json:"expense_account_id" validate:"omitempty,gt=0"`
}

type RepairPaymentRequest struct {
	RepairID  int             `json:"-" validate:"required,gt=0"`
	AccountID int             `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type ExchangeRequest struct {
	OriginalDeviceID    int `json:"original_device_id" validate:"required,gt=0"`
	ReplacementDeviceID int `json:"replacement_device_id" validate:"required,gt=0,nefield=OriginalDeviceID"`
}

type SupplierReplacementRequest struct {
	OriginalDeviceID int    `json:"-" validate:"required,gt=0"`
	NewSerialNumber  string `json:"new_serial_number" validate:"max=64"`
	NewModelID       int    `json:"new_model_id" validate:"gte=0"`
}

type IssueLoanerRequest struct {
	RepairID       int `json:"-" validate:"required,gt=0"`
	LoanerDeviceID int `json:"loaner_device_id" validate:"required,gt=0"`
}

// ── Ledger ────────────────────────────────────────────────────────────────────

// ManualEntryRequest books income or expense that no other operation produces.
type ManualEntryRequest struct {
	Direction      string          `json:"direction" validate:"required,oneof=INCOME EXPENSE"`
	AccountID      int             `json:"account_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	CounterpartyID *int            `json:"counterparty_id" validate:"omitempty,gt=0"`
	Description    string          `json:"description" validate:"required,max=500"`
}

type ReverseEntryRequest struct {
	EntryID int    `json:"-" validate:"required,gt=0"`
	Reason  string `json:"reason" validate:"required,max=500"`
}
