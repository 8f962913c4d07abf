package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SupplierOrderStatus string

const (
	OrderOrdered   SupplierOrderStatus = "ORDERED"
	OrderInTransit SupplierOrderStatus = "IN_TRANSIT"
	OrderReceived  SupplierOrderStatus = "RECEIVED"
)

type OrderPaymentStatus string

const (
	OrderUnpaid        OrderPaymentStatus = "UNPAID"
	OrderPartiallyPaid OrderPaymentStatus = "PARTIALLY_PAID"
	OrderPaid          OrderPaymentStatus = "PAID"
)

// SupplierOrder is a purchase from a supplier of phones (by model) and accessories.
type SupplierOrder struct {
	ID            int
	SupplierID    int
	SupplierName  string
	OrderedAt     time.Time
	Status        SupplierOrderStatus
	PaymentStatus OrderPaymentStatus
	ReceivedAt    *time.Time
	Total         decimal.Decimal
	Paid          decimal.Decimal
	Lines         []SupplierOrderLine
}

// Due is what is still owed to the supplier.
func (o SupplierOrder) Due() decimal.Decimal { return o.Total.Sub(o.Paid) }

// SupplierOrderLine orders either a device model or an accessory, never both.
type SupplierOrderLine struct {
	ID          int
	ModelID     *int
	AccessoryID *int
	Quantity    int
	UnitPrice   decimal.Decimal
}

type SupplierOrderLineInput struct {
	ModelID     *int
	AccessoryID *int
	Quantity    int
	UnitPrice   decimal.Decimal
}

type SupplierPaymentInput struct {
	OrderID   int
	AccountID int
	Amount    decimal.Decimal
	Notes     string
}

// ReceiveResult lists what a receipt created.
type ReceiveResult struct {
	Order          SupplierOrder
	DeviceIDs      []int
	AccessoryUnits []StockUnit
}

// PurchaseOrderService handles the supplier side: ordering, receiving and paying.
type PurchaseOrderService interface {
	CreateOrder(ctx context.Context, supplierID int, lines []SupplierOrderLineInput) (*SupplierOrder, error)
	MarkInTransit(ctx context.Context, orderID int) (*SupplierOrder, error)
	// ReceiveOrder turns an ORDERED or IN_TRANSIT order into devices and accessory stock.
	ReceiveOrder(ctx context.Context, actorID, orderID int) (*ReceiveResult, error)
	PayOrder(ctx context.Context, actorID int, in SupplierPaymentInput) (*SupplierOrder, error)
	GetOrder(ctx context.Context, orderID int) (*SupplierOrder, error)
	ListOrders(ctx context.Context, status SupplierOrderStatus) ([]SupplierOrder, error)
}

// paymentStatusFor derives the payment status from the amounts.
func paymentStatusFor(total, paid decimal.Decimal) OrderPaymentStatus {
	switch {
	case paid.IsZero() || paid.IsNegative():
		return OrderUnpaid
	case paid.LessThan(total):
		return OrderPartiallyPaid
	default:
		return OrderPaid
	}
}
