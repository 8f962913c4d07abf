package core

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TechStatus is the quality-control axis of a device.
type TechStatus string

const (
	TechAwaitingInspection TechStatus = "AWAITING_INSPECTION"
	TechBatteryTest        TechStatus = "BATTERY_TEST"
	TechPackaging          TechStatus = "PACKAGING"
	TechPackaged           TechStatus = "PACKAGED"
	TechDefective          TechStatus = "DEFECTIVE"
)

// CommercialStatus is the sales/custody axis of a device.
type CommercialStatus string

const (
	CommNotReady             CommercialStatus = "NOT_READY"
	CommInStock              CommercialStatus = "IN_STOCK"
	CommSold                 CommercialStatus = "SOLD"
	CommReturned             CommercialStatus = "RETURNED"
	CommInRepair             CommercialStatus = "IN_REPAIR"
	CommSentToSupplier       CommercialStatus = "SENT_TO_SUPPLIER"
	CommWrittenOffBySupplier CommercialStatus = "WRITTEN_OFF_BY_SUPPLIER"
	CommLoanerPool           CommercialStatus = "LOANER_POOL"
	CommIssuedAsLoaner       CommercialStatus = "ISSUED_AS_LOANER"
)

// Location is where a stock unit currently sits.
type Location string

const (
	LocationWarehouse  Location = "WAREHOUSE"
	LocationShowcase   Location = "SHOWCASE"
	LocationLoanerPool Location = "LOANER_POOL"
)

func (l Location) Valid() bool {
	switch l {
	case LocationWarehouse, LocationShowcase, LocationLoanerPool:
		return true
	}
	return false
}

// Device is one physical phone, identified individually for its whole life.
type Device struct {
	ID               int
	SerialNumber     *string
	ModelID          int
	ModelName        string
	StorageGB        int
	Color            string
	ModelNumber      *string
	TechnicalStatus  TechStatus
	CommercialStatus CommercialStatus
	PurchasePrice    decimal.Decimal
	SupplierOrderID  *int
	AddedAt          time.Time
	AcceptedAt       *time.Time
}

// DisplayName renders "Model 128GB Black" for audit texts and notifications.
func (d Device) DisplayName() string {
	name := d.ModelName
	if d.StorageGB > 0 {
		name += " " + strconv.Itoa(d.StorageGB) + "GB"
	}
	if d.Color != "" {
		name += " " + d.Color
	}
	return name
}

// Serial returns the serial number or "-" when none has been assigned yet.
func (d Device) Serial() string {
	if d.SerialNumber == nil || *d.SerialNumber == "" {
		return "-"
	}
	return *d.SerialNumber
}

// ValidateStatusPair rejects combinations that may never be persisted.
// A device can only be for sale, sold or lent out after it has been packaged.
func ValidateStatusPair(tech TechStatus, comm CommercialStatus) error {
	switch comm {
	case CommInStock, CommSold, CommIssuedAsLoaner:
		if tech != TechPackaged {
			return invalidStatef("commercial status %s requires technical status %s, got %s", comm, TechPackaged, tech)
		}
	}
	return nil
}
