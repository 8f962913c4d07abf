package core_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"phone-resale/internal/core"
	"phone-resale/internal/db"
)

const testActor = 1

// setupTestDB connects to TEST_DATABASE_URL, applies the schema and resets
// every table to the seeded reference data.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Integration tests wipe data; never point them at the live database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.ApplySchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE employee_shifts, loaner_assignments, repairs, sale_payments, sale_lines, sales,
			financial_snapshots, ledger_entries, audit_events, stock_movements, stock_units,
			battery_tests, inspection_results, inspections, devices,
			supplier_payments, supplier_order_lines, supplier_orders,
			cash_accounts, customers, suppliers, counterparties, checklist_items, accessories,
			device_models, colors, storage_options, model_names
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		pool.Close()
		t.Fatalf("Failed to reset test database: %v", err)
	}
	// Re-running the schema restores any operation category a test removed.
	if err := db.ApplySchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if err := db.Seed(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to seed test database: %v", err)
	}
	return pool
}

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n core.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) kinds() []core.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type testEnv struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	notes     *recordingNotifier
	audit     core.AuditTrail
	ledger    *core.Ledger
	inventory core.InventoryService
	lifecycle core.LifecycleService
	sales     core.SaleService
	purchases core.PurchaseOrderService
	repairs   core.RepairService
	shifts    core.ShiftService
}

func testPolicies(t *testing.T) (core.InspectionPolicy, core.SalePolicy) {
	t.Helper()
	table, err := core.NewThresholdTable([]core.ThresholdRule{
		{Match: "iPhone 12", MaxDrainPerHour: decimal.NewFromInt(8)},
		{Match: "iPhone 13", MaxDrainPerHour: decimal.NewFromInt(10)},
	}, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("NewThresholdTable failed: %v", err)
	}
	inspection := core.InspectionPolicy{Thresholds: table, SkipBatteryTest: []string{"iPhone 15"}}
	sale := core.SalePolicy{HandlingOverhead: decimal.NewFromInt(800), PaymentTolerance: decimal.RequireFromString("0.01")}
	return inspection, sale
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := setupTestDB(t)
	t.Cleanup(pool.Close)

	inspection, salePolicy := testPolicies(t)
	notes := &recordingNotifier{}
	audit := core.NewAuditTrail(pool)
	ledger := core.NewLedger(pool, core.NewCategoryResolver())
	inventory := core.NewInventoryService(pool)
	lifecycle := core.NewLifecycleService(pool, inventory, audit, inspection)

	return &testEnv{
		ctx:       context.Background(),
		pool:      pool,
		notes:     notes,
		audit:     audit,
		ledger:    ledger,
		inventory: inventory,
		lifecycle: lifecycle,
		sales:     core.NewSaleService(pool, inventory, lifecycle, ledger, salePolicy),
		purchases: core.NewPurchaseOrderService(pool, lifecycle, inventory, audit, ledger, notes),
		repairs:   core.NewRepairService(pool, lifecycle, inventory, audit, ledger, notes, salePolicy),
		shifts:    core.NewShiftService(pool),
	}
}

func (e *testEnv) modelID(t *testing.T, name string, storage int, color string) int {
	t.Helper()
	var id int
	err := e.pool.QueryRow(e.ctx, `
		SELECT dm.id FROM device_models dm
		JOIN model_names mn ON mn.id = dm.model_name_id
		JOIN storage_options so ON so.id = dm.storage_id
		JOIN colors c ON c.id = dm.color_id
		WHERE mn.name = $1 AND so.storage_gb = $2 AND c.name = $3
	`, name, storage, color).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to find model %s %dGB %s: %v", name, storage, color, err)
	}
	return id
}

func (e *testEnv) refID(t *testing.T, table, name string) int {
	t.Helper()
	var id int
	if err := e.pool.QueryRow(e.ctx, "SELECT id FROM "+table+" WHERE name = $1", name).Scan(&id); err != nil {
		t.Fatalf("Failed to find %s %q: %v", table, name, err)
	}
	return id
}

func (e *testEnv) cashAccount(t *testing.T) int { return e.refID(t, "cash_accounts", "Cash drawer") }
func (e *testEnv) cardAccount(t *testing.T) int { return e.refID(t, "cash_accounts", "Card terminal") }
func (e *testEnv) supplierID(t *testing.T) int  { return e.refID(t, "suppliers", "Default supplier") }

func (e *testEnv) checklist(t *testing.T, failItem string) []core.ChecklistResult {
	t.Helper()
	rows, err := e.pool.Query(e.ctx, "SELECT id, name FROM checklist_items WHERE is_active ORDER BY id")
	if err != nil {
		t.Fatalf("Failed to load checklist: %v", err)
	}
	defer rows.Close()
	var out []core.ChecklistResult
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("Failed to scan checklist item: %v", err)
		}
		out = append(out, core.ChecklistResult{ItemID: id, Passed: name != failItem})
	}
	return out
}

// receiveDevices orders and receives qty phones of modelID at price.
func (e *testEnv) receiveDevices(t *testing.T, modelID, qty int, price string) []int {
	t.Helper()
	order, err := e.purchases.CreateOrder(e.ctx, e.supplierID(t), []core.SupplierOrderLineInput{
		{ModelID: &modelID, Quantity: qty, UnitPrice: d(price)},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	res, err := e.purchases.ReceiveOrder(e.ctx, testActor, order.ID)
	if err != nil {
		t.Fatalf("ReceiveOrder failed: %v", err)
	}
	return res.DeviceIDs
}

// stockedDevice takes a skip-list phone from receipt to IN_STOCK and returns
// the device id with its stock unit id.
func (e *testEnv) stockedDevice(t *testing.T, serial, color, price string) (int, int) {
	t.Helper()
	ids := e.receiveDevices(t, e.modelID(t, "iPhone 15", 128, color), 1, price)
	id := ids[0]
	if _, err := e.lifecycle.SubmitInspection(e.ctx, testActor, core.InspectionInput{
		DeviceID: id, SerialNumber: serial, Results: e.checklist(t, ""),
	}); err != nil {
		t.Fatalf("SubmitInspection failed: %v", err)
	}
	if _, err := e.lifecycle.ConfirmPackaging(e.ctx, testActor, []int{id}); err != nil {
		t.Fatalf("ConfirmPackaging failed: %v", err)
	}
	res, err := e.lifecycle.AcceptIntoWarehouse(e.ctx, testActor, []int{id}, core.LocationShowcase)
	if err != nil {
		t.Fatalf("AcceptIntoWarehouse failed: %v", err)
	}
	accepted, ok := res[0].Event.Payload.(core.AcceptedToWarehouse)
	if !ok {
		t.Fatalf("Expected AcceptedToWarehouse event, got %T", res[0].Event.Payload)
	}
	return id, accepted.StockUnitID
}

// accessoryUnit receives qty of the named accessory and returns its stock unit id.
func (e *testEnv) accessoryUnit(t *testing.T, name string, qty int, price string) int {
	t.Helper()
	accessoryID := e.refID(t, "accessories", name)
	order, err := e.purchases.CreateOrder(e.ctx, e.supplierID(t), []core.SupplierOrderLineInput{
		{AccessoryID: &accessoryID, Quantity: qty, UnitPrice: d(price)},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	res, err := e.purchases.ReceiveOrder(e.ctx, testActor, order.ID)
	if err != nil {
		t.Fatalf("ReceiveOrder failed: %v", err)
	}
	return res.AccessoryUnits[0].ID
}

// sellDevice sells a stocked device for price, paid in cash.
func (e *testEnv) sellDevice(t *testing.T, unitID int, price string) *core.Sale {
	t.Helper()
	sale, err := e.sales.CreateSale(e.ctx, testActor, core.SaleInput{
		Lines:    []core.SaleLineInput{{StockUnitID: unitID, Quantity: 1, UnitPrice: d(price)}},
		Payments: []core.PaymentAllocation{{AccountID: e.cashAccount(t), Amount: d(price), Method: core.PaymentCash}},
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}
	return sale
}

func (e *testEnv) unitQuantity(t *testing.T, unitID int) int {
	t.Helper()
	u, err := e.inventory.GetUnit(e.ctx, unitID)
	if err != nil {
		t.Fatalf("GetUnit failed: %v", err)
	}
	return u.Quantity
}

func (e *testEnv) device(t *testing.T, id int) *core.Device {
	t.Helper()
	dev, err := e.lifecycle.GetDevice(e.ctx, id)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	return dev
}

func (e *testEnv) balance(t *testing.T, accountID int) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.GetAccountBalance(e.ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccountBalance failed: %v", err)
	}
	return b
}

// rowCount returns count(*) of table. Table names come from test code only.
func (e *testEnv) rowCount(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := e.pool.QueryRow(e.ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// rowCounts snapshots the tables a rejected operation must leave untouched.
func (e *testEnv) rowCounts(t *testing.T) map[string]int {
	t.Helper()
	counts := map[string]int{}
	for _, table := range []string{"devices", "sales", "sale_lines", "sale_payments", "ledger_entries", "audit_events", "stock_movements"} {
		counts[table] = e.rowCount(t, table)
	}
	return counts
}

func (e *testEnv) expectRowCounts(t *testing.T, want map[string]int) {
	t.Helper()
	for table, n := range e.rowCounts(t) {
		if n != want[table] {
			t.Errorf("Expected %d rows in %s, got %d", want[table], table, n)
		}
	}
}

func expectKind(t *testing.T, err error, want core.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", want)
	}
	if kind := core.KindOf(err); kind != want {
		t.Fatalf("Expected %s error, got %v", want, err)
	}
}

func expectStatus(t *testing.T, dev *core.Device, tech core.TechStatus, comm core.CommercialStatus) {
	t.Helper()
	if dev.TechnicalStatus != tech || dev.CommercialStatus != comm {
		t.Errorf("Expected device %d to be %s/%s, got %s/%s", dev.ID, tech, comm, dev.TechnicalStatus, dev.CommercialStatus)
	}
}

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
