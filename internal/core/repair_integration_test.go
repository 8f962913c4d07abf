package core_test

import (
	"slices"
	"testing"

	"phone-resale/internal/core"
)

// ── Tests ────────────────────────────────────────────────────────────────────

func TestRepairService_PaidRepairFlow(t *testing.T) {
	env := setupEnv(t)
	deviceID, unit := env.stockedDevice(t, "REPAIR-1", "Black", "40000")
	env.sellDevice(t, unit, "45000")
	cash := env.cashAccount(t)

	estimate := d("3000")
	repair, err := env.repairs.StartRepair(env.ctx, testActor, core.StartRepairInput{
		DeviceID:      deviceID,
		Type:          core.RepairPaid,
		CustomerName:  "Ivan Petrov",
		CustomerPhone: "+7 900 000 00 00",
		Problem:       "cracked back glass",
		EstimatedCost: &estimate,
	})
	if err != nil {
		t.Fatalf("StartRepair failed: %v", err)
	}
	if repair.Status != core.RepairOpen {
		t.Errorf("Expected OPEN, got %s", repair.Status)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommInRepair)

	// A service cost without an account to book it against is rejected.
	finalCost, serviceCost := d("3500"), d("1200")
	_, err = env.repairs.FinishRepair(env.ctx, testActor, core.FinishRepairInput{
		RepairID: repair.ID, WorkPerformed: "back glass replaced", FinalCost: &finalCost, ServiceCost: &serviceCost,
	})
	expectKind(t, err, core.KindValidation)

	finished, err := env.repairs.FinishRepair(env.ctx, testActor, core.FinishRepairInput{
		RepairID: repair.ID, WorkPerformed: "back glass replaced", FinalCost: &finalCost,
		ServiceCost: &serviceCost, ExpenseAccountID: &cash,
	})
	if err != nil {
		t.Fatalf("FinishRepair failed: %v", err)
	}
	if finished.Status != core.RepairAwaitingPayment {
		t.Errorf("Expected AWAITING_PAYMENT, got %s", finished.Status)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommInRepair)
	if !slices.Contains(env.notes.kinds(), core.NotifyRepairAwaitingPay) {
		t.Errorf("Expected a repair payment notification, got %v", env.notes.kinds())
	}

	_, err = env.repairs.PayRepair(env.ctx, testActor, core.RepairPaymentInput{RepairID: repair.ID, AccountID: cash, Amount: d("3000")})
	expectKind(t, err, core.KindValidation)

	paid, err := env.repairs.PayRepair(env.ctx, testActor, core.RepairPaymentInput{RepairID: repair.ID, AccountID: cash, Amount: d("3500")})
	if err != nil {
		t.Fatalf("PayRepair failed: %v", err)
	}
	if paid.Status != core.RepairClosed || paid.PaidAt == nil || paid.ReturnedAt == nil {
		t.Errorf("Expected CLOSED with paid and returned times, got %+v", paid)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommSold)

	// 45000 sale, minus 1200 service cost, plus 3500 repair income.
	if b := env.balance(t, cash); !b.Equal(d("47300")) {
		t.Errorf("Expected cash balance 47300, got %s", b)
	}

	_, err = env.repairs.PayRepair(env.ctx, testActor, core.RepairPaymentInput{RepairID: repair.ID, AccountID: cash, Amount: d("3500")})
	expectKind(t, err, core.KindInvalidState)
}

func TestRepairService_WarrantyRepairCloses(t *testing.T) {
	env := setupEnv(t)
	deviceID, unit := env.stockedDevice(t, "WARRANTY-1", "White", "40000")
	env.sellDevice(t, unit, "45000")

	repair, err := env.repairs.StartRepair(env.ctx, testActor, core.StartRepairInput{
		DeviceID: deviceID, Type: core.RepairWarranty, CustomerName: "Anna", Problem: "no sound",
	})
	if err != nil {
		t.Fatalf("StartRepair failed: %v", err)
	}
	closed, err := env.repairs.FinishRepair(env.ctx, testActor, core.FinishRepairInput{
		RepairID: repair.ID, WorkPerformed: "speaker cleaned",
	})
	if err != nil {
		t.Fatalf("FinishRepair failed: %v", err)
	}
	if closed.Status != core.RepairClosed {
		t.Errorf("Expected CLOSED, got %s", closed.Status)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommSold)
}

func TestRepairService_StartRequiresSoldDevice(t *testing.T) {
	env := setupEnv(t)
	deviceID, _ := env.stockedDevice(t, "NOTSOLD-1", "Blue", "40000")

	_, err := env.repairs.StartRepair(env.ctx, testActor, core.StartRepairInput{
		DeviceID: deviceID, Type: core.RepairWarranty, CustomerName: "Anna", Problem: "no sound",
	})
	expectKind(t, err, core.KindInvalidState)
}

func TestRepairService_Exchange(t *testing.T) {
	env := setupEnv(t)
	originalID, originalUnit := env.stockedDevice(t, "EXCH-OLD", "Black", "40000")
	replacementID, replacementUnit := env.stockedDevice(t, "EXCH-NEW", "Blue", "41000")
	sale := env.sellDevice(t, originalUnit, "45000")

	res, err := env.repairs.Exchange(env.ctx, testActor, originalID, replacementID)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if res.SaleID != sale.ID {
		t.Errorf("Expected exchange against sale %d, got %d", sale.ID, res.SaleID)
	}
	expectStatus(t, &res.Original.Device, core.TechDefective, core.CommReturned)
	expectStatus(t, &res.Replacement.Device, core.TechPackaged, core.CommSold)
	if q := env.unitQuantity(t, originalUnit); q != 1 {
		t.Errorf("Expected original unit back at 1, got %d", q)
	}
	if q := env.unitQuantity(t, replacementUnit); q != 0 {
		t.Errorf("Expected replacement unit at 0, got %d", q)
	}

	updated, err := env.sales.GetSale(env.ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	line := updated.Lines[0]
	if line.Product.ID() != replacementID || line.StockUnitID != replacementUnit {
		t.Errorf("Expected sale line to point at device %d, got %d", replacementID, line.Product.ID())
	}
	if line.Profit == nil || !line.Profit.Equal(d("3200")) {
		t.Errorf("Expected recomputed profit 3200, got %v", line.Profit)
	}
}

func TestRepairService_ExchangeRequiresSameModel(t *testing.T) {
	env := setupEnv(t)
	originalID, originalUnit := env.stockedDevice(t, "EXM-OLD", "Black", "40000")
	env.sellDevice(t, originalUnit, "45000")

	other := env.receiveDevices(t, env.modelID(t, "iPhone 15", 256, "Black"), 1, "50000")[0]
	if _, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: other, SerialNumber: "EXM-256", Results: env.checklist(t, ""),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	if _, err := env.lifecycle.ConfirmPackaging(env.ctx, testActor, []int{other}); err != nil {
		t.Fatalf("ConfirmPackaging failed: %v", err)
	}
	if _, err := env.lifecycle.AcceptIntoWarehouse(env.ctx, testActor, []int{other}, core.LocationWarehouse); err != nil {
		t.Fatalf("AcceptIntoWarehouse failed: %v", err)
	}

	_, err := env.repairs.Exchange(env.ctx, testActor, originalID, other)
	expectKind(t, err, core.KindValidation)
	expectStatus(t, env.device(t, originalID), core.TechPackaged, core.CommSold)
}

func TestRepairService_SupplierReplacement(t *testing.T) {
	env := setupEnv(t)
	ids := env.receiveDevices(t, env.modelID(t, "iPhone 13", 128, "Red"), 1, "28000")
	if _, err := env.lifecycle.SubmitInspection(env.ctx, testActor, core.InspectionInput{
		DeviceID: ids[0], SerialNumber: "REPL-OLD", Results: env.checklist(t, "Face ID / Touch ID"),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	if _, err := env.lifecycle.SendToSupplier(env.ctx, testActor, ids, ""); err != nil {
		t.Fatalf("SendToSupplier failed: %v", err)
	}

	res, err := env.repairs.SupplierReplacement(env.ctx, testActor, core.ReplacementInput{
		OriginalDeviceID: ids[0], NewSerialNumber: "REPL-NEW",
	})
	if err != nil {
		t.Fatalf("SupplierReplacement failed: %v", err)
	}
	expectStatus(t, &res.Original.Device, core.TechDefective, core.CommWrittenOffBySupplier)
	expectStatus(t, &res.Replacement, core.TechAwaitingInspection, core.CommNotReady)
	if !res.Replacement.PurchasePrice.Equal(d("28000")) {
		t.Errorf("Expected replacement to carry price 28000, got %s", res.Replacement.PurchasePrice)
	}
	if res.Replacement.Serial() != "REPL-NEW" {
		t.Errorf("Expected serial REPL-NEW, got %s", res.Replacement.Serial())
	}
}

func TestRepairService_LoanerCycle(t *testing.T) {
	env := setupEnv(t)
	customerDevice, customerUnit := env.stockedDevice(t, "LOAN-CUST", "Black", "40000")
	env.sellDevice(t, customerUnit, "45000")
	loanerID, loanerUnit := env.stockedDevice(t, "LOAN-POOL", "White", "30000")
	if _, err := env.lifecycle.AddToLoanerPool(env.ctx, testActor, loanerID); err != nil {
		t.Fatalf("AddToLoanerPool failed: %v", err)
	}

	repair, err := env.repairs.StartRepair(env.ctx, testActor, core.StartRepairInput{
		DeviceID: customerDevice, Type: core.RepairWarranty, CustomerName: "Oleg", Problem: "battery swelling",
	})
	if err != nil {
		t.Fatalf("StartRepair failed: %v", err)
	}

	assignment, err := env.repairs.IssueLoaner(env.ctx, testActor, repair.ID, loanerID)
	if err != nil {
		t.Fatalf("IssueLoaner failed: %v", err)
	}
	expectStatus(t, env.device(t, loanerID), core.TechPackaged, core.CommIssuedAsLoaner)
	if q := env.unitQuantity(t, loanerUnit); q != 0 {
		t.Errorf("Expected loaner unit at 0 while lent out, got %d", q)
	}

	// One outstanding loaner per repair.
	_, err = env.repairs.IssueLoaner(env.ctx, testActor, repair.ID, loanerID)
	expectKind(t, err, core.KindInvalidState)

	returned, err := env.repairs.ReturnLoaner(env.ctx, testActor, assignment.ID)
	if err != nil {
		t.Fatalf("ReturnLoaner failed: %v", err)
	}
	if returned.ReturnedAt == nil {
		t.Error("Expected returned_at to be set")
	}
	expectStatus(t, env.device(t, loanerID), core.TechAwaitingInspection, core.CommLoanerPool)
	if q := env.unitQuantity(t, loanerUnit); q != 1 {
		t.Errorf("Expected loaner unit back at 1, got %d", q)
	}

	_, err = env.repairs.ReturnLoaner(env.ctx, testActor, assignment.ID)
	expectKind(t, err, core.KindInvalidState)

	loaners, err := env.repairs.ListLoaners(env.ctx, repair.ID)
	if err != nil {
		t.Fatalf("ListLoaners failed: %v", err)
	}
	if len(loaners) != 1 {
		t.Errorf("Expected 1 assignment, got %d", len(loaners))
	}
}
