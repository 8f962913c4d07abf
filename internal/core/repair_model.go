package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type RepairType string

const (
	RepairWarranty RepairType = "WARRANTY"
	RepairPaid     RepairType = "PAID"
)

type RepairStatus string

const (
	RepairOpen            RepairStatus = "OPEN"
	RepairAwaitingPayment RepairStatus = "AWAITING_PAYMENT"
	RepairClosed          RepairStatus = "CLOSED"
)

type Repair struct {
	ID              int
	DeviceID        int
	ActorID         int
	Type            RepairType
	Status          RepairStatus
	CustomerName    string
	CustomerPhone   string
	Problem         string
	DeviceCondition string
	IncludedItems   string
	EstimatedCost   *decimal.Decimal
	FinalCost       *decimal.Decimal
	ServiceCost     *decimal.Decimal
	WorkPerformed   string
	AcceptedAt      time.Time
	ReturnedAt      *time.Time
	PaidAt          *time.Time
}

type StartRepairInput struct {
	DeviceID        int
	Type            RepairType
	CustomerName    string
	CustomerPhone   string
	Problem         string
	DeviceCondition string
	IncludedItems   string
	EstimatedCost   *decimal.Decimal
}

// FinishRepairInput closes the workshop part of a repair. ServiceCost is what
// an outside service charged the shop and is booked against ExpenseAccountID.
type FinishRepairInput struct {
	RepairID         int
	WorkPerformed    string
	FinalCost        *decimal.Decimal
	ServiceCost      *decimal.Decimal
	ExpenseAccountID *int
}

type RepairPaymentInput struct {
	RepairID  int
	AccountID int
	Amount    decimal.Decimal
}

type ReplacementInput struct {
	OriginalDeviceID int
	NewSerialNumber  string
	NewModelID       int
}

type ExchangeResult struct {
	Original    TransitionResult
	Replacement TransitionResult
	SaleID      int
}

type LoanerAssignment struct {
	ID         int
	RepairID   int
	DeviceID   int
	ActorID    int
	IssuedAt   time.Time
	ReturnedAt *time.Time
}

type ReplacementResult struct {
	Original    TransitionResult
	Replacement Device
}
