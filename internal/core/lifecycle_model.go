package core

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Transition describes one status change of a device. Empty status fields
// leave that axis unchanged. Guard checks the locked device before any write.
type Transition struct {
	Guard      func(Device) error
	Technical  TechStatus
	Commercial CommercialStatus
	Event      AuditPayload
}

// TransitionResult is what every lifecycle operation returns on success.
type TransitionResult struct {
	Device Device
	Event  AuditEvent
}

type ChecklistResult struct {
	ItemID int
	Passed bool
	Note   string
}

type InspectionInput struct {
	DeviceID     int
	SerialNumber string
	ModelNumber  string
	Results      []ChecklistResult
}

type BatteryTestInput struct {
	DeviceID     int
	StartedAt    time.Time
	EndedAt      time.Time
	StartPercent int
	EndPercent   int
}

// NewDevice is a device about to enter the system (supplier receipt or replacement).
type NewDevice struct {
	ModelID         int
	SerialNumber    *string
	PurchasePrice   decimal.Decimal
	SupplierOrderID *int
}

// requireStatus builds a guard accepting the listed statuses on each axis.
// A nil list accepts any status on that axis.
func requireStatus(techs []TechStatus, comms []CommercialStatus) func(Device) error {
	return func(d Device) error {
		if techs != nil && !slices.Contains(techs, d.TechnicalStatus) {
			return invalidStatef("device %d has technical status %s, expected one of %v", d.ID, d.TechnicalStatus, techs)
		}
		if comms != nil && !slices.Contains(comms, d.CommercialStatus) {
			return invalidStatef("device %d has commercial status %s, expected one of %v", d.ID, d.CommercialStatus, comms)
		}
		return nil
	}
}
