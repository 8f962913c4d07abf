package core_test

import (
	"testing"
	"time"

	"phone-resale/internal/core"
)

// ── Tests ────────────────────────────────────────────────────────────────────

func TestLifecycle_InspectionFailureMarksDefective(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 13", 128, "Black"), 1, "30000")

	res, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "DX3FAIL01", Results: env.checklist(t, "Cameras"),
	})
	if err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	expectStatus(t, &res.Device, core.TechDefective, core.CommNotReady)

	defect, ok := res.Event.Payload.(core.DefectFound)
	if !ok {
		t.Fatalf("Expected DefectFound event, got %T", res.Event.Payload)
	}
	if len(defect.FailedItems) != 1 || defect.FailedItems[0] != "Cameras" {
		t.Errorf("Expected failed items [Cameras], got %v", defect.FailedItems)
	}

	// A defective device cannot be packaged.
	_, err = env.lifecycle.ConfirmPackaging(env.ctx, testActor, ids)
	expectKind(t, err, core.KindInvalidState)
}

func TestLifecycle_BatteryTestThreshold(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 13", 128, "Blue"), 2, "30000")

	for i, id := range ids {
		res, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
			DeviceID: id, SerialNumber: []string{"BT-PASS", "BT-FAIL"}[i], Results: env.checklist(t, ""),
		})
		if err != nil {
			t.Fatalf("SubmitInspection failed: %v", err)
		}
		expectStatus(t, &res.Device, core.TechBatteryTest, core.CommNotReady)
	}

	passed, err := env.lifecycle.SubmitBatteryTest(env.ctx, testActor, core.BatteryTestInput{
		DeviceID: ids[0], StartedAt: testStart, EndedAt: testStart.Add(time.Hour), StartPercent: 100, EndPercent: 92,
	})
	if err != nil {
		t.Fatalf("SubmitBatteryTest failed: %v", err)
	}
	expectStatus(t, &passed.Device, core.TechPackaging, core.CommNotReady)

	failed, err := env.lifecycle.SubmitBatteryTest(env.ctx, testActor, core.BatteryTestInput{
		DeviceID: ids[1], StartedAt: testStart, EndedAt: testStart.Add(time.Hour), StartPercent: 100, EndPercent: 88,
	})
	if err != nil {
		t.Fatalf("SubmitBatteryTest failed: %v", err)
	}
	expectStatus(t, &failed.Device, core.TechDefective, core.CommNotReady)

	recorded, ok := failed.Event.Payload.(core.BatteryTestRecorded)
	if !ok {
		t.Fatalf("Expected BatteryTestRecorded event, got %T", failed.Event.Payload)
	}
	if recorded.MatchedKey != "iPhone 13" || recorded.Passed {
		t.Errorf("Expected failed verdict under key iPhone 13, got %+v", recorded)
	}
}

func TestLifecycle_SkipListGoesToPackaging(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 15", 256, "White"), 1, "52000")

	res, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "SKIP-15", Results: env.checklist(t, ""),
	})
	if err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	expectStatus(t, &res.Device, core.TechPackaging, core.CommNotReady)
}

func TestLifecycle_DuplicateSerialRejected(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 15", 128, "Black"), 2, "50000")

	if _, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "SAME-SN", Results: env.checklist(t, ""),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	_, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[1], SerialNumber: "SAME-SN", Results: env.checklist(t, ""),
	})
	if err == nil {
		t.Fatal("Expected duplicate serial to be rejected")
	}
	expectStatus(t, env.device(t, ids[1]), core.TechAwaitingInspection, core.CommNotReady)
}

func TestLifecycle_AcceptPlacesStockAndFixesPrice(t *testing.T) {
	env := setupEnv(t)
	deviceID, unitID := env.stockedDevice(t, "ACCEPT-1", "Red", "48000")

	dev := env.device(t, deviceID)
	expectStatus(t, dev, core.TechPackaged, core.CommInStock)
	if dev.AcceptedAt == nil {
		t.Error("Expected accepted_at to be set")
	}
	if q := env.unitQuantity(t, unitID); q != 1 {
		t.Errorf("Expected device unit quantity 1, got %d", q)
	}

	err := env.lifecycle.SetPurchasePrice(env.ctx, deviceID, d("47000"))
	expectKind(t, err, core.KindInvalidState)

	// Accepting twice is rejected and does not create a second unit.
	_, err = env.lifecycle.AcceptIntoWarehouse(env.ctx, testActor, []int{deviceID}, core.LocationWarehouse)
	expectKind(t, err, core.KindInvalidState)

	history, err := env.lifecycle.History(env.ctx, deviceID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	want := []core.AuditKind{core.AuditReceivedFromSupplier, core.AuditInspectionPassed, core.AuditPackaged, core.AuditAcceptedToWarehouse}
	if len(history) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(history))
	}
	for i, k := range want {
		if history[i].Kind != k {
			t.Errorf("Event %d: expected %s, got %s", i, k, history[i].Kind)
		}
	}
}

func TestLifecycle_BatchIsAllOrNothing(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 15", 128, "Blue"), 2, "50000")
	if _, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "BATCH-1", Results: env.checklist(t, ""),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}

	// ids[1] is still awaiting inspection, so the whole batch fails.
	_, err := env.lifecycle.ConfirmPackaging(env.ctx, testActor, ids)
	expectKind(t, err, core.KindInvalidState)
	expectStatus(t, env.device(t, ids[0]), core.TechPackaging, core.CommNotReady)
}

func TestLifecycle_MoveAndLoanerPool(t *testing.T) {
	env := setupEnv(t)
	deviceID, unitID := env.stockedDevice(t, "MOVE-1", "Black", "50000")

	if _, err := env.lifecycle.MoveDevice(env.ctx, testActor, deviceID, core.LocationWarehouse); err != nil {
		t.Fatalf("MoveDevice failed: %v", err)
	}
	u, err := env.inventory.GetUnit(env.ctx, unitID)
	if err != nil {
		t.Fatalf("GetUnit failed: %v", err)
	}
	if u.Location != core.LocationWarehouse {
		t.Errorf("Expected unit at WAREHOUSE, got %s", u.Location)
	}

	res, err := env.lifecycle.AddToLoanerPool(env.ctx, testActor, deviceID)
	if err != nil {
		t.Fatalf("AddToLoanerPool failed: %v", err)
	}
	expectStatus(t, &res.Device, core.TechPackaged, core.CommLoanerPool)

	// A loaner is not for sale.
	_, err = env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unitID, Quantity: 1, UnitPrice: d("55000")}},
		Payments: []core.PaymentAllocation{{AccountID: env.cashAccount(t), Amount: d("55000"), Method: core.PaymentCash}},
	})
	expectKind(t, err, core.KindInvalidState)
}

func TestLifecycle_SupplierRoundTrip(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 13", 64, "White"), 1, "25000")
	if _, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "SUP-1", Results: env.checklist(t, "Buttons"),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}

	sent, err := env.lifecycle.SendToSupplier(env.ctx, testActor, ids, "button stuck")
	if err != nil {
		t.Fatalf("SendToSupplier failed: %v", err)
	}
	expectStatus(t, &sent[0].Device, core.TechDefective, core.CommSentToSupplier)

	back, err := env.lifecycle.ReturnFromSupplier(env.ctx, testActor, ids[0])
	if err != nil {
		t.Fatalf("ReturnFromSupplier failed: %v", err)
	}
	expectStatus(t, &back.Device, core.TechAwaitingInspection, core.CommNotReady)
}
