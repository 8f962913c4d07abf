package core_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"phone-resale/internal/core"
)

// ── Tests ────────────────────────────────────────────────────────────────────

func TestSaleService_SplitPaymentWithChange(t *testing.T) {
	env := setupEnv(t)
	deviceID, deviceUnit := env.stockedDevice(t, "SALE-1", "Black", "40000")
	caseUnit := env.accessoryUnit(t, "Silicone case", 5, "150")
	cash, card := env.cashAccount(t), env.cardAccount(t)

	received, change := d("10000"), d("950")
	sale, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines: []core.SaleLineInput{
			{StockUnitID: deviceUnit, Quantity: 1, UnitPrice: d("48000")},
			{StockUnitID: caseUnit, Quantity: 2, UnitPrice: d("600")},
		},
		Discount: d("200"),
		Payments: []core.PaymentAllocation{
			{AccountID: cash, Amount: d("9000"), Method: core.PaymentCash},
			{AccountID: card, Amount: d("40000"), Method: core.PaymentCard},
		},
		CashReceived: &received,
		ChangeGiven:  &change,
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}

	if sale.Status != core.SalePaid {
		t.Errorf("Expected PAID, got %s", sale.Status)
	}
	if !sale.Total.Equal(d("49000")) {
		t.Errorf("Expected total 49000, got %s", sale.Total)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommSold)
	if q := env.unitQuantity(t, caseUnit); q != 3 {
		t.Errorf("Expected 3 cases left, got %d", q)
	}

	// 9000 allocated plus 50 kept from the 10000 handed over.
	if b := env.balance(t, cash); !b.Equal(d("9050")) {
		t.Errorf("Expected cash balance 9050, got %s", b)
	}
	if b := env.balance(t, card); !b.Equal(d("40000")) {
		t.Errorf("Expected card balance 40000, got %s", b)
	}

	profits := map[core.ProductKind]decimal.Decimal{}
	for _, l := range sale.Lines {
		if l.Profit == nil {
			t.Fatalf("Expected profit on paid line %d", l.ID)
		}
		profits[l.Product.Kind()] = *l.Profit
	}
	if !profits[core.ProductDevice].Equal(d("7200")) {
		t.Errorf("Expected device profit 7200, got %s", profits[core.ProductDevice])
	}
	if !profits[core.ProductAccessory].Equal(d("900")) {
		t.Errorf("Expected accessory profit 900, got %s", profits[core.ProductAccessory])
	}
}

func TestSaleService_InsufficientStockRollsBack(t *testing.T) {
	env := setupEnv(t)
	deviceID, deviceUnit := env.stockedDevice(t, "SHORT-1", "White", "40000")
	cableUnit := env.accessoryUnit(t, "USB-C cable", 1, "120")
	cash := env.cashAccount(t)
	before := env.rowCounts(t)

	_, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines: []core.SaleLineInput{
			{StockUnitID: deviceUnit, Quantity: 1, UnitPrice: d("45000")},
			{StockUnitID: cableUnit, Quantity: 2, UnitPrice: d("500")},
		},
		Payments: []core.PaymentAllocation{{AccountID: cash, Amount: d("46000"), Method: core.PaymentCash}},
	})
	expectKind(t, err, core.KindInsufficientInventory)

	if q := env.unitQuantity(t, deviceUnit); q != 1 {
		t.Errorf("Expected device unit untouched, got quantity %d", q)
	}
	if q := env.unitQuantity(t, cableUnit); q != 1 {
		t.Errorf("Expected cable unit untouched, got quantity %d", q)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommInStock)
	if b := env.balance(t, cash); !b.IsZero() {
		t.Errorf("Expected cash balance 0, got %s", b)
	}
	env.expectRowCounts(t, before)
	if before["sales"] != 0 || before["ledger_entries"] != 0 {
		t.Errorf("Expected no sales or ledger entries before the attempt, got %v", before)
	}
}

func TestSaleService_FullyDiscountedSaleNeedsNoPayment(t *testing.T) {
	env := setupEnv(t)
	caseUnit := env.accessoryUnit(t, "Silicone case", 2, "150")

	sale, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: caseUnit, Quantity: 1, UnitPrice: d("500")}},
		Discount: d("500"),
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}
	if sale.Status != core.SalePaid || !sale.Total.IsZero() {
		t.Errorf("Expected PAID with total 0, got %s %s", sale.Status, sale.Total)
	}
	if q := env.unitQuantity(t, caseUnit); q != 1 {
		t.Errorf("Expected 1 case left, got %d", q)
	}
	if n := env.rowCount(t, "ledger_entries"); n != 0 {
		t.Errorf("Expected no ledger entries, got %d", n)
	}
}

func TestSaleService_SubCentPaymentRejected(t *testing.T) {
	env := setupEnv(t)
	caseUnit := env.accessoryUnit(t, "Screen glass", 1, "50")

	_, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: caseUnit, Quantity: 1, UnitPrice: d("0.004")}},
		Payments: []core.PaymentAllocation{{AccountID: env.cashAccount(t), Amount: d("0.004"), Method: core.PaymentCash}},
	})
	expectKind(t, err, core.KindValidation)
	if q := env.unitQuantity(t, caseUnit); q != 1 {
		t.Errorf("Expected case unit untouched, got quantity %d", q)
	}
}

func TestSaleService_PaymentMismatchRejected(t *testing.T) {
	env := setupEnv(t)
	_, unit := env.stockedDevice(t, "MISMATCH-1", "Blue", "40000")

	_, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unit, Quantity: 1, UnitPrice: d("45000")}},
		Payments: []core.PaymentAllocation{{AccountID: env.cashAccount(t), Amount: d("44000"), Method: core.PaymentCash}},
	})
	expectKind(t, err, core.KindValidation)
}

func TestSaleService_DeferredFinalizesOnce(t *testing.T) {
	env := setupEnv(t)
	deviceID, unit := env.stockedDevice(t, "DEFER-1", "Red", "40000")
	cash := env.cashAccount(t)

	sale, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unit, Quantity: 1, UnitPrice: d("46000")}},
		Deferred: true,
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}
	if sale.Status != core.SalePendingPayment {
		t.Fatalf("Expected PENDING_PAYMENT, got %s", sale.Status)
	}
	// Reserved but not yet sold.
	if q := env.unitQuantity(t, unit); q != 0 {
		t.Errorf("Expected reserved unit at 0, got %d", q)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommInStock)

	payments := []core.PaymentAllocation{{AccountID: cash, Amount: d("46000"), Method: core.PaymentCash}}
	paid, err := env.sales.FinalizeSale(env.ctx, testActor, sale.ID, payments)
	if err != nil {
		t.Fatalf("FinalizeSale failed: %v", err)
	}
	if paid.Status != core.SalePaid || paid.PaidAt == nil {
		t.Errorf("Expected PAID with paid_at, got %s", paid.Status)
	}
	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommSold)

	_, err = env.sales.FinalizeSale(env.ctx, testActor, sale.ID, payments)
	expectKind(t, err, core.KindInvalidState)
	if b := env.balance(t, cash); !b.Equal(d("46000")) {
		t.Errorf("Expected a single booking of 46000, got %s", b)
	}
}

func TestSaleService_CancelPendingReleasesStock(t *testing.T) {
	env := setupEnv(t)
	_, unit := env.stockedDevice(t, "CANCEL-1", "Black", "40000")

	sale, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unit, Quantity: 1, UnitPrice: d("46000")}},
		Deferred: true,
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}
	cancelled, err := env.sales.CancelPendingSale(env.ctx, testActor, sale.ID)
	if err != nil {
		t.Fatalf("CancelPendingSale failed: %v", err)
	}
	if cancelled.Status != core.SaleCancelled {
		t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
	}
	if q := env.unitQuantity(t, unit); q != 1 {
		t.Errorf("Expected unit back at 1, got %d", q)
	}
	_, err = env.sales.FinalizeSale(env.ctx, testActor, sale.ID,
		[]core.PaymentAllocation{{AccountID: env.cashAccount(t), Amount: d("46000"), Method: core.PaymentCash}})
	expectKind(t, err, core.KindInvalidState)
}

func TestSaleService_RefundReturnsDevice(t *testing.T) {
	env := setupEnv(t)
	deviceID, unit := env.stockedDevice(t, "REFUND-1", "White", "40000")
	cash := env.cashAccount(t)
	env.sellDevice(t, unit, "45000")

	res, err := env.sales.RefundDevice(env.ctx, testActor, core.RefundInput{DeviceID: deviceID, AccountID: cash, Reason: "screen flicker"})
	if err != nil {
		t.Fatalf("RefundDevice failed: %v", err)
	}
	expectStatus(t, &res.Device, core.TechDefective, core.CommReturned)
	if q := env.unitQuantity(t, unit); q != 1 {
		t.Errorf("Expected returned unit at 1, got %d", q)
	}
	if b := env.balance(t, cash); !b.IsZero() {
		t.Errorf("Expected cash balance 0 after refund, got %s", b)
	}

	_, err = env.sales.RefundDevice(env.ctx, testActor, core.RefundInput{DeviceID: deviceID, AccountID: cash})
	expectKind(t, err, core.KindInvalidState)
}

func TestSaleService_MissingCategoryIsConfigurationError(t *testing.T) {
	env := setupEnv(t)
	deviceID, unit := env.stockedDevice(t, "CONF-1", "Blue", "40000")

	if _, err := env.pool.Exec(env.ctx, "DELETE FROM operation_categories WHERE code = $1", core.CategorySaleIncome); err != nil {
		t.Fatalf("Failed to delete category: %v", err)
	}

	_, err := env.sales.CreateSale(env.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unit, Quantity: 1, UnitPrice: d("45000")}},
		Payments: []core.PaymentAllocation{{AccountID: env.cashAccount(t), Amount: d("45000"), Method: core.PaymentCash}},
	})
	expectKind(t, err, core.KindConfiguration)

	expectStatus(t, env.device(t, deviceID), core.TechPackaged, core.CommInStock)
	if q := env.unitQuantity(t, unit); q != 1 {
		t.Errorf("Expected unit untouched, got quantity %d", q)
	}
}
