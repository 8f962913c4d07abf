package core

import (
	"time"
)

// MovementType labels a stock movement row.
type MovementType string

const (
	MovementPlacement MovementType = "PLACEMENT"
	MovementReceipt   MovementType = "RECEIPT"
	MovementSale      MovementType = "SALE"
	MovementSaleVoid  MovementType = "SALE_CANCELLED"
	MovementReturn    MovementType = "CUSTOMER_RETURN"
	MovementExchange  MovementType = "EXCHANGE"
	MovementTransfer  MovementType = "TRANSFER"
	MovementLoanerOut MovementType = "LOANER_OUT"
	MovementLoanerIn  MovementType = "LOANER_IN"
	MovementSupplier  MovementType = "SENT_TO_SUPPLIER"
)

// StockUnit is the current on-hand record for a device or an accessory at a location.
// Location is the authoritative placement; StockMovement rows are its history.
type StockUnit struct {
	ID        int
	Product   ProductRef
	Quantity  int
	Location  Location
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StockMovement struct {
	ID            int
	StockUnitID   int
	Type          MovementType
	QuantityDelta int
	FromLocation  *Location
	ToLocation    *Location
	ActorID       int
	Reference     string
	CreatedAt     time.Time
}

// StockLevel is a read view of a unit joined with its product's display name.
type StockLevel struct {
	StockUnitID  int
	Product      ProductRef
	ProductName  string
	SerialNumber *string
	Location     Location
	Quantity     int
}

// applyDelta is the non-negativity rule for every quantity change.
func applyDelta(unitID, current, delta int) (int, error) {
	next := current + delta
	if next < 0 {
		return current, insufficientf("stock unit %d has %d on hand, cannot remove %d", unitID, current, -delta)
	}
	return next, nil
}
