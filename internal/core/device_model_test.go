package core_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"phone-resale/internal/core"
)

// ── Tests ────────────────────────────────────────────────────────────────────

func TestValidateStatusPair(t *testing.T) {
	tests := []struct {
		tech    core.TechStatus
		comm    core.CommercialStatus
		wantErr bool
	}{
		{core.TechPackaged, core.CommInStock, false},
		{core.TechPackaged, core.CommSold, false},
		{core.TechPackaged, core.CommIssuedAsLoaner, false},
		{core.TechAwaitingInspection, core.CommNotReady, false},
		{core.TechDefective, core.CommReturned, false},
		{core.TechAwaitingInspection, core.CommLoanerPool, false},
		{core.TechPackaging, core.CommInStock, true},
		{core.TechDefective, core.CommSold, true},
		{core.TechBatteryTest, core.CommIssuedAsLoaner, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.tech, tt.comm), func(t *testing.T) {
			err := core.ValidateStatusPair(tt.tech, tt.comm)
			if tt.wantErr && !errors.Is(err, core.ErrInvalidState) {
				t.Errorf("Expected invalid state, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected pair to be valid, got %v", err)
			}
		})
	}
}

func TestDevice_DisplayName(t *testing.T) {
	dev := core.Device{ModelName: "iPhone 13", StorageGB: 128, Color: "Blue"}
	if got := dev.DisplayName(); got != "iPhone 13 128GB Blue" {
		t.Errorf("Expected %q, got %q", "iPhone 13 128GB Blue", got)
	}
	if got := dev.Serial(); got != "-" {
		t.Errorf("Expected placeholder serial, got %q", got)
	}
}

func TestError_KindMatching(t *testing.T) {
	err := fmt.Errorf("reserve stock: %w", &core.Error{Kind: core.KindInsufficientInventory, Message: "unit 4 has 0 left"})

	if !errors.Is(err, core.ErrInsufficientInventory) {
		t.Error("Expected wrapped error to match ErrInsufficientInventory")
	}
	if errors.Is(err, core.ErrNotFound) {
		t.Error("Expected wrapped error not to match ErrNotFound")
	}
	if kind := core.KindOf(err); kind != core.KindInsufficientInventory {
		t.Errorf("Expected kind %s, got %s", core.KindInsufficientInventory, kind)
	}
	if kind := core.KindOf(errors.New("plain")); kind != "" {
		t.Errorf("Expected empty kind for plain error, got %s", kind)
	}
}

func TestProductRef(t *testing.T) {
	ref, err := core.NewProductRef(core.ProductAccessory, 9)
	if err != nil {
		t.Fatalf("NewProductRef failed: %v", err)
	}
	label := core.MatchProduct(ref,
		func(r core.DeviceRef) string { return fmt.Sprintf("device %d", r.DeviceID) },
		func(r core.AccessoryRef) string { return fmt.Sprintf("accessory %d", r.AccessoryID) },
	)
	if label != "accessory 9" {
		t.Errorf("Expected accessory dispatch, got %q", label)
	}

	if _, err := core.NewProductRef("GADGET", 1); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected validation error for unknown kind, got %v", err)
	}
}

func TestDecodeAuditPayload(t *testing.T) {
	original := core.Exchanged{SaleID: 12, Direction: core.ExchangeTakenBack, CounterpartDeviceID: 40, CounterpartSerial: "F2LX"}
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	decoded, err := core.DecodeAuditPayload(core.AuditExchanged, raw)
	if err != nil {
		t.Fatalf("DecodeAuditPayload failed: %v", err)
	}
	if decoded != original {
		t.Errorf("Expected %+v, got %+v", original, decoded)
	}
	if decoded.Render() != "Taken back in exchange for S/N F2LX (sale #12)" {
		t.Errorf("Unexpected render: %q", decoded.Render())
	}

	if _, err := core.DecodeAuditPayload("TELEPORTED", []byte(`{}`)); err == nil {
		t.Error("Expected error for unknown audit kind")
	}
}

func TestDecodeAuditPayload_RepairPayment(t *testing.T) {
	decoded, err := core.DecodeAuditPayload(core.AuditRepairPaid, []byte(`{"repair_id":7,"amount":"1500"}`))
	if err != nil {
		t.Fatalf("DecodeAuditPayload failed: %v", err)
	}
	paid, ok := decoded.(core.RepairPaymentReceived)
	if !ok {
		t.Fatalf("Expected RepairPaymentReceived, got %T", decoded)
	}
	if paid.RepairID != 7 || !paid.Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Unexpected payload %+v", paid)
	}
	if paid.Kind() != core.AuditRepairPaid {
		t.Errorf("Expected kind %s, got %s", core.AuditRepairPaid, paid.Kind())
	}
	if paid.Render() != "Repair #7 paid 1500.00, returned to customer" {
		t.Errorf("Unexpected render: %q", paid.Render())
	}
}
