package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SalePaid           SaleStatus = "PAID"
	SalePendingPayment SaleStatus = "PENDING_PAYMENT"
	SaleCancelled      SaleStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentCash              PaymentMethod = "CASH"
	PaymentCard              PaymentMethod = "CARD"
	PaymentCreditInstallment PaymentMethod = "CREDIT_INSTALLMENT"
	PaymentTransfer          PaymentMethod = "TRANSFER"
	PaymentCrypto            PaymentMethod = "CRYPTO"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCreditInstallment, PaymentTransfer, PaymentCrypto:
		return true
	}
	return false
}

type SaleLineInput struct {
	StockUnitID int
	Quantity    int
	UnitPrice   decimal.Decimal
}

type PaymentAllocation struct {
	AccountID int
	Amount    decimal.Decimal
	Method    PaymentMethod
}

// SaleInput is a point-of-sale request. A deferred sale reserves stock now and
// is paid later through FinalizeSale; it carries no payments itself.
type SaleInput struct {
	CustomerID        *int
	Lines             []SaleLineInput
	Discount          decimal.Decimal
	PaymentAdjustment decimal.Decimal
	Payments          []PaymentAllocation
	Deferred          bool
	CashReceived      *decimal.Decimal
	ChangeGiven       *decimal.Decimal
	DeliveryMethod    string
	Notes             string
}

type Sale struct {
	ID                int
	CustomerID        *int
	CustomerName      string
	ActorID           int
	SoldAt            time.Time
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	PaymentAdjustment decimal.Decimal
	Total             decimal.Decimal
	Status            SaleStatus
	CashReceived      *decimal.Decimal
	ChangeGiven       *decimal.Decimal
	DeliveryMethod    string
	Notes             string
	PaidAt            *time.Time
	Lines             []SaleLine
	Payments          []SalePayment
}

type SaleLine struct {
	ID          int
	StockUnitID int
	Product     ProductRef
	Quantity    int
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	Profit      *decimal.Decimal // nil until the sale is paid
}

type SalePayment struct {
	ID        int
	AccountID int
	Amount    decimal.Decimal
	Method    PaymentMethod
}

type RefundInput struct {
	DeviceID  int
	AccountID int
	Reason    string
}

// SalePolicy carries the configurable constants of the sale engine.
type SalePolicy struct {
	// HandlingOverhead is subtracted from the profit of every device sold.
	HandlingOverhead decimal.Decimal
	// PaymentTolerance is the largest accepted gap between payments and total.
	PaymentTolerance decimal.Decimal
}
