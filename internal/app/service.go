package app

import (
	"context"
)

// ApplicationService is the single interface adapters call. It validates
// requests, converts them to core inputs and shapes core results for output.
// It holds no business rules of its own.
type ApplicationService interface {
	// ── Devices ───────────────────────────────────────────────────────────────
	GetDevice(ctx context.Context, deviceID int) (*DeviceView, error)
	FindDeviceBySerial(ctx context.Context, serial string) (*DeviceView, error)
	// ListDevices filters on either status axis; an empty filter matches everything.
	ListDevices(ctx context.Context, technical, commercial string) ([]DeviceView, error)
	DeviceHistory(ctx context.Context, deviceID int) (*DeviceHistoryResult, error)

	SubmitInspection(ctx context.Context, actorID int, req InspectionRequest) (*TransitionView, error)
	SubmitBatteryTest(ctx context.Context, actorID int, req BatteryTestRequest) (*TransitionView, error)
	ConfirmPackaging(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error)
	// AcceptIntoWarehouse places packaged devices; an empty location means the configured default.
	AcceptIntoWarehouse(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error)
	MoveDevice(ctx context.Context, actorID int, req MoveDeviceRequest) (*TransitionView, error)
	SendToSupplier(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error)
	ReturnFromSupplier(ctx context.Context, actorID, deviceID int) (*TransitionView, error)
	AddToLoanerPool(ctx context.Context, actorID, deviceID int) (*TransitionView, error)
	SetPurchasePrice(ctx context.Context, req PurchasePriceRequest) (*DeviceView, error)

	// ── Inventory ─────────────────────────────────────────────────────────────
	GetStockLevels(ctx context.Context) (*StockResult, error)
	ListMovements(ctx context.Context, stockUnitID int) ([]MovementView, error)

	// ── Sales ─────────────────────────────────────────────────────────────────
	CreateSale(ctx context.Context, actorID int, req CreateSaleRequest) (*SaleView, error)
	FinalizeSale(ctx context.Context, actorID int, req FinalizeSaleRequest) (*SaleView, error)
	CancelSale(ctx context.Context, actorID, saleID int) (*SaleView, error)
	RefundDevice(ctx context.Context, actorID int, req RefundRequest) (*TransitionView, error)
	GetSale(ctx context.Context, saleID int) (*SaleView, error)
	ListPendingSales(ctx context.Context) ([]SaleView, error)

	// ── Supplier orders ───────────────────────────────────────────────────────
	CreateSupplierOrder(ctx context.Context, req CreateSupplierOrderRequest) (*SupplierOrderView, error)
	MarkOrderInTransit(ctx context.Context, orderID int) (*SupplierOrderView, error)
	ReceiveSupplierOrder(ctx context.Context, actorID, orderID int) (*ReceiveResult, error)
	PaySupplierOrder(ctx context.Context, actorID int, req SupplierPaymentRequest) (*SupplierOrderView, error)
	GetSupplierOrder(ctx context.Context, orderID int) (*SupplierOrderView, error)
	ListSupplierOrders(ctx context.Context, status string) ([]SupplierOrderView, error)

	// ── Repairs, exchanges, loaners ───────────────────────────────────────────
	StartRepair(ctx context.Context, actorID int, req StartRepairRequest) (*RepairView, error)
	FinishRepair(ctx context.Context, actorID int, req FinishRepairRequest) (*RepairView, error)
	PayRepair(ctx context.Context, actorID int, req RepairPaymentRequest) (*RepairView, error)
	GetRepair(ctx context.Context, repairID int) (*RepairView, error)
	ListRepairs(ctx context.Context, status string) ([]RepairView, error)
	ExchangeDevice(ctx context.Context, actorID int, req ExchangeRequest) (*ExchangeResult, error)
	SupplierReplacement(ctx context.Context, actorID int, req SupplierReplacementRequest) (*ReplacementResult, error)
	IssueLoaner(ctx context.Context, actorID int, req IssueLoanerRequest) (*LoanerView, error)
	ReturnLoaner(ctx context.Context, actorID, assignmentID int) (*LoanerView, error)
	ListLoaners(ctx context.Context, repairID int) ([]LoanerView, error)

	// ── Ledger ────────────────────────────────────────────────────────────────
	PostManualEntry(ctx context.Context, actorID int, req ManualEntryRequest) (*LedgerEntryView, error)
	ReverseEntry(ctx context.Context, actorID int, req ReverseEntryRequest) (*LedgerEntryView, error)
	GetBalances(ctx context.Context) (*BalancesResult, error)
	ListEntries(ctx context.Context, accountID int) ([]LedgerEntryView, error)
	TakeSnapshot(ctx context.Context) (*SnapshotView, error)
	ListSnapshots(ctx context.Context) ([]SnapshotView, error)

	// ── Shifts ────────────────────────────────────────────────────────────────
	StartShift(ctx context.Context, actorID int) (*ShiftView, error)
	EndShift(ctx context.Context, actorID int) (*ShiftView, error)
	ActiveShift(ctx context.Context, actorID int) (*ShiftView, error)
}
