package app

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"phone-resale/internal/core"
)

// Services groups the core services the application facade delegates to.
type Services struct {
	Lifecycle core.LifecycleService
	Inventory core.InventoryService
	Sales     core.SaleService
	Purchases core.PurchaseOrderService
	Repairs   core.RepairService
	Ledger    core.LedgerService
	Shifts    core.ShiftService
}

type appService struct {
	svc             Services
	defaultLocation core.Location
	validate        *validator.Validate
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(svc Services, defaultLocation core.Location) ApplicationService {
	if !defaultLocation.Valid() {
		defaultLocation = core.LocationWarehouse
	}
	return &appService{svc: svc, defaultLocation: defaultLocation, validate: newValidator()}
}

// ── Devices ───────────────────────────────────────────────────────────────────

func (s *appService) GetDevice(ctx context.Context, deviceID int) (*DeviceView, error) {
	d, err := s.svc.Lifecycle.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	v := deviceView(*d)
	return &v, nil
}

func (s *appService) FindDeviceBySerial(ctx context.Context, serial string) (*DeviceView, error) {
	d, err := s.svc.Lifecycle.FindBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	v := deviceView(*d)
	return &v, nil
}

func (s *appService) ListDevices(ctx context.Context, technical, commercial string) ([]DeviceView, error) {
	devices, err := s.svc.Lifecycle.ListDevices(ctx, core.TechStatus(technical), core.CommercialStatus(commercial))
	if err != nil {
		return nil, err
	}
	out := make([]DeviceView, len(devices))
	for i, d := range devices {
		out[i] = deviceView(d)
	}
	return out, nil
}

func (s *appService) DeviceHistory(ctx context.Context, deviceID int) (*DeviceHistoryResult, error) {
	d, err := s.svc.Lifecycle.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	events, err := s.svc.Lifecycle.History(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	res := &DeviceHistoryResult{Device: deviceView(*d), Events: make([]EventView, len(events))}
	for i, e := range events {
		res.Events[i] = eventView(e)
	}
	return res, nil
}

func (s *appService) SubmitInspection(ctx context.Context, actorID int, req InspectionRequest) (*TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	results := make([]core.ChecklistResult, len(req.Results))
	for i, r := range req.Results {
		results[i] = core.ChecklistResult{ItemID: r.ItemID, Passed: r.Passed, Note: r.Note}
	}
	res, err := s.svc.Lifecycle.SubmitInspection(ctx, actorID, core.InspectionInput{
		DeviceID:     req.DeviceID,
		SerialNumber: req.SerialNumber,
		ModelNumber:  req.ModelNumber,
		Results:      results,
	})
	return transitionOrErr(res, err)
}

func (s *appService) SubmitBatteryTest(ctx context.Context, actorID int, req BatteryTestRequest) (*TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	res, err := s.svc.Lifecycle.SubmitBatteryTest(ctx, actorID, core.BatteryTestInput{
		DeviceID:     req.DeviceID,
		StartedAt:    req.StartedAt,
		EndedAt:      req.EndedAt,
		StartPercent: req.StartPercent,
		EndPercent:   req.EndPercent,
	})
	return transitionOrErr(res, err)
}

func (s *appService) ConfirmPackaging(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	res, err := s.svc.Lifecycle.ConfirmPackaging(ctx, actorID, req.DeviceIDs)
	if err != nil {
		return nil, err
	}
	return transitionViews(res), nil
}

func (s *appService) AcceptIntoWarehouse(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	loc := s.defaultLocation
	if req.Location != "" {
		loc = core.Location(req.Location)
	}
	res, err := s.svc.Lifecycle.AcceptIntoWarehouse(ctx, actorID, req.DeviceIDs, loc)
	if err != nil {
		return nil, err
	}
	return transitionViews(res), nil
}

func (s *appService) MoveDevice(ctx context.Context, actorID int, req MoveDeviceRequest) (*TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return transitionOrErr(s.svc.Lifecycle.MoveDevice(ctx, actorID, req.DeviceID, core.Location(req.Location)))
}

func (s *appService) SendToSupplier(ctx context.Context, actorID int, req DeviceBatchRequest) ([]TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	res, err := s.svc.Lifecycle.SendToSupplier(ctx, actorID, req.DeviceIDs, req.Note)
	if err != nil {
		return nil, err
	}
	return transitionViews(res), nil
}

func (s *appService) ReturnFromSupplier(ctx context.Context, actorID, deviceID int) (*TransitionView, error) {
	return transitionOrErr(s.svc.Lifecycle.ReturnFromSupplier(ctx, actorID, deviceID))
}

func (s *appService) AddToLoanerPool(ctx context.Context, actorID, deviceID int) (*TransitionView, error) {
	return transitionOrErr(s.svc.Lifecycle.AddToLoanerPool(ctx, actorID, deviceID))
}

func (s *appService) SetPurchasePrice(ctx context.Context, req PurchasePriceRequest) (*DeviceView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.svc.Lifecycle.SetPurchasePrice(ctx, req.DeviceID, req.Price); err != nil {
		return nil, err
	}
	return s.GetDevice(ctx, req.DeviceID)
}

func transitionOrErr(res *core.TransitionResult, err error) (*TransitionView, error) {
	if err != nil {
		return nil, err
	}
	v := transitionView(*res)
	return &v, nil
}

// ── Inventory ─────────────────────────────────────────────────────────────────

func (s *appService) GetStockLevels(ctx context.Context) (*StockResult, error) {
	levels, err := s.svc.Inventory.GetStockLevels(ctx)
	if err != nil {
		return nil, err
	}
	res := &StockResult{Levels: make([]StockLevelView, len(levels))}
	for i, l := range levels {
		res.Levels[i] = StockLevelView{
			StockUnitID:  l.StockUnitID,
			Product:      productView(l.Product),
			ProductName:  l.ProductName,
			SerialNumber: l.SerialNumber,
			Location:     string(l.Location),
			Quantity:     l.Quantity,
		}
	}
	return res, nil
}

func (s *appService) ListMovements(ctx context.Context, stockUnitID int) ([]MovementView, error) {
	movements, err := s.svc.Inventory.ListMovements(ctx, stockUnitID)
	if err != nil {
		return nil, err
	}
	out := make([]MovementView, len(movements))
	for i, m := range movements {
		out[i] = MovementView{
			ID:            m.ID,
			StockUnitID:   m.StockUnitID,
			Type:          string(m.Type),
			QuantityDelta: m.QuantityDelta,
			FromLocation:  locationPtr(m.FromLocation),
			ToLocation:    locationPtr(m.ToLocation),
			ActorID:       m.ActorID,
			Reference:     m.Reference,
			CreatedAt:     m.CreatedAt,
		}
	}
	return out, nil
}

// ── Sales ─────────────────────────────────────────────────────────────────────

func paymentAllocations(reqs []PaymentRequest) []core.PaymentAllocation {
	out := make([]core.PaymentAllocation, len(reqs))
	for i, p := range reqs {
		out[i] = core.PaymentAllocation{AccountID: p.AccountID, Amount: p.Amount, Method: core.PaymentMethod(p.Method)}
	}
	return out
}

func (s *appService) CreateSale(ctx context.Context, actorID int, req CreateSaleRequest) (*SaleView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	lines := make([]core.SaleLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.SaleLineInput{StockUnitID: l.StockUnitID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	sale, err := s.svc.Sales.CreateSale(ctx, actorID, core.SaleInput{
		CustomerID:        req.CustomerID,
		Lines:             lines,
		Discount:          req.Discount,
		PaymentAdjustment: req.PaymentAdjustment,
		Payments:          paymentAllocations(req.Payments),
		Deferred:          req.Deferred,
		CashReceived:      req.CashReceived,
		ChangeGiven:       req.ChangeGiven,
		DeliveryMethod:    req.DeliveryMethod,
		Notes:             req.Notes,
	})
	return saleOrErr(sale, err)
}

func (s *appService) FinalizeSale(ctx context.Context, actorID int, req FinalizeSaleRequest) (*SaleView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return saleOrErr(s.svc.Sales.FinalizeSale(ctx, actorID, req.SaleID, paymentAllocations(req.Payments)))
}

func (s *appService) CancelSale(ctx context.Context, actorID, saleID int) (*SaleView, error) {
	return saleOrErr(s.svc.Sales.CancelPendingSale(ctx, actorID, saleID))
}

func (s *appService) RefundDevice(ctx context.Context, actorID int, req RefundRequest) (*TransitionView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return transitionOrErr(s.svc.Sales.RefundDevice(ctx, actorID, core.RefundInput{
		DeviceID:  req.DeviceID,
		AccountID: req.AccountID,
		Reason:    req.Reason,
	}))
}

func (s *appService) GetSale(ctx context.Context, saleID int) (*SaleView, error) {
	return saleOrErr(s.svc.Sales.GetSale(ctx, saleID))
}

func (s *appService) ListPendingSales(ctx context.Context) ([]SaleView, error) {
	sales, err := s.svc.Sales.ListPendingSales(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SaleView, len(sales))
	for i, sale := range sales {
		out[i] = saleView(sale)
	}
	return out, nil
}

func saleOrErr(sale *core.Sale, err error) (*SaleView, error) {
	if err != nil {
		return nil, err
	}
	v := saleView(*sale)
	return &v, nil
}

// ── Supplier orders ───────────────────────────────────────────────────────────

func (s *appService) CreateSupplierOrder(ctx context.Context, req CreateSupplierOrderRequest) (*SupplierOrderView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	lines := make([]core.SupplierOrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.SupplierOrderLineInput{ModelID: l.ModelID, AccessoryID: l.AccessoryID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return orderOrErr(s.svc.Purchases.CreateOrder(ctx, req.SupplierID, lines))
}

func (s *appService) MarkOrderInTransit(ctx context.Context, orderID int) (*SupplierOrderView, error) {
	return orderOrErr(s.svc.Purchases.MarkInTransit(ctx, orderID))
}

func (s *appService) ReceiveSupplierOrder(ctx context.Context, actorID, orderID int) (*ReceiveResult, error) {
	res, err := s.svc.Purchases.ReceiveOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}
	out := &ReceiveResult{
		Order:          supplierOrderView(res.Order),
		DeviceIDs:      res.DeviceIDs,
		AccessoryUnits: make([]int, len(res.AccessoryUnits)),
	}
	for i, u := range res.AccessoryUnits {
		out.AccessoryUnits[i] = u.ID
	}
	return out, nil
}

func (s *appService) PaySupplierOrder(ctx context.Context, actorID int, req SupplierPaymentRequest) (*SupplierOrderView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return orderOrErr(s.svc.Purchases.PayOrder(ctx, actorID, core.SupplierPaymentInput{
		OrderID:   req.OrderID,
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Notes:     req.Notes,
	}))
}

func (s *appService) GetSupplierOrder(ctx context.Context, orderID int) (*SupplierOrderView, error) {
	return orderOrErr(s.svc.Purchases.GetOrder(ctx, orderID))
}

func (s *appService) ListSupplierOrders(ctx context.Context, status string) ([]SupplierOrderView, error) {
	orders, err := s.svc.Purchases.ListOrders(ctx, core.SupplierOrderStatus(status))
	if err != nil {
		return nil, err
	}
	out := make([]SupplierOrderView, len(orders))
	for i, o := range orders {
		out[i] = supplierOrderView(o)
	}
	return out, nil
}

func orderOrErr(o *core.SupplierOrder, err error) (*SupplierOrderView, error) {
	if err != nil {
		return nil, err
	}
	v := supplierOrderView(*o)
	return &v, nil
}

// ── Repairs, exchanges, loaners ───────────────────────────────────────────────

func (s *appService) StartRepair(ctx context.Context, actorID int, req StartRepairRequest) (*RepairView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return repairOrErr(s.svc.Repairs.StartRepair(ctx, actorID, core.StartRepairInput{
		DeviceID:        req.DeviceID,
		Type:            core.RepairType(req.Type),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		Problem:         req.Problem,
		DeviceCondition: req.DeviceCondition,
		IncludedItems:   req.IncludedItems,
		EstimatedCost:   req.EstimatedCost,
	}))
}

func (s *appService) FinishRepair(ctx context.Context, actorID int, req FinishRepairRequest) (*RepairView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return repairOrErr(s.svc.Repairs.FinishRepair(ctx, actorID, core.FinishRepairInput{
		RepairID:         req.RepairID,
		WorkPerformed:    req.WorkPerformed,
		FinalCost:        req.FinalCost,
		ServiceCost:      req.ServiceCost,
		ExpenseAccountID: req.ExpenseAccountID,
	}))
}

func (s *appService) PayRepair(ctx context.Context, actorID int, req RepairPaymentRequest) (*RepairView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return repairOrErr(s.svc.Repairs.PayRepair(ctx, actorID, core.RepairPaymentInput{
		RepairID:  req.RepairID,
		AccountID: req.AccountID,
		Amount:    req.Amount,
	}))
}

func (s *appService) GetRepair(ctx context.Context, repairID int) (*RepairView, error) {
	return repairOrErr(s.svc.Repairs.GetRepair(ctx, repairID))
}

func (s *appService) ListRepairs(ctx context.Context, status string) ([]RepairView, error) {
	repairs, err := s.svc.Repairs.ListRepairs(ctx, core.RepairStatus(status))
	if err != nil {
		return nil, err
	}
	out := make([]RepairView, len(repairs))
	for i, r := range repairs {
		out[i] = repairView(r)
	}
	return out, nil
}

func repairOrErr(r *core.Repair, err error) (*RepairView, error) {
	if err != nil {
		return nil, err
	}
	v := repairView(*r)
	return &v, nil
}

func (s *appService) ExchangeDevice(ctx context.Context, actorID int, req ExchangeRequest) (*ExchangeResult, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	res, err := s.svc.Repairs.Exchange(ctx, actorID, req.OriginalDeviceID, req.ReplacementDeviceID)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{
		SaleID:      res.SaleID,
		Original:    transitionView(res.Original),
		Replacement: transitionView(res.Replacement),
	}, nil
}

func (s *appService) SupplierReplacement(ctx context.Context, actorID int, req SupplierReplacementRequest) (*ReplacementResult, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	res, err := s.svc.Repairs.SupplierReplacement(ctx, actorID, core.ReplacementInput{
		OriginalDeviceID: req.OriginalDeviceID,
		NewSerialNumber:  req.NewSerialNumber,
		NewModelID:       req.NewModelID,
	})
	if err != nil {
		return nil, err
	}
	return &ReplacementResult{Original: transitionView(res.Original), Replacement: deviceView(res.Replacement)}, nil
}

func (s *appService) IssueLoaner(ctx context.Context, actorID int, req IssueLoanerRequest) (*LoanerView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return loanerOrErr(s.svc.Repairs.IssueLoaner(ctx, actorID, req.RepairID, req.LoanerDeviceID))
}

func (s *appService) ReturnLoaner(ctx context.Context, actorID, assignmentID int) (*LoanerView, error) {
	return loanerOrErr(s.svc.Repairs.ReturnLoaner(ctx, actorID, assignmentID))
}

func (s *appService) ListLoaners(ctx context.Context, repairID int) ([]LoanerView, error) {
	as, err := s.svc.Repairs.ListLoaners(ctx, repairID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanerView, len(as))
	for i, a := range as {
		out[i] = loanerView(a)
	}
	return out, nil
}

func loanerOrErr(a *core.LoanerAssignment, err error) (*LoanerView, error) {
	if err != nil {
		return nil, err
	}
	v := loanerView(*a)
	return &v, nil
}

// ── Ledger ────────────────────────────────────────────────────────────────────

// PostManualEntry books a positive amount as income or as expense; the sign
// on the ledger follows the direction.
func (s *appService) PostManualEntry(ctx context.Context, actorID int, req ManualEntryRequest) (*LedgerEntryView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &core.Error{Kind: core.KindValidation, Message: "amount must be positive"}
	}
	category, amount := core.CategoryManualIncome, req.Amount
	if req.Direction == "EXPENSE" {
		category, amount = core.CategoryManualExpense, req.Amount.Neg()
	}
	e, err := s.svc.Ledger.Post(ctx, core.LedgerPosting{
		CategoryCode:   category,
		AccountID:      req.AccountID,
		Amount:         amount,
		CounterpartyID: req.CounterpartyID,
		Description:    req.Description,
		ActorID:        actorID,
	})
	return entryOrErr(e, err)
}

func (s *appService) ReverseEntry(ctx context.Context, actorID int, req ReverseEntryRequest) (*LedgerEntryView, error) {
	if err := checkRequest(s.validate, req); err != nil {
		return nil, err
	}
	return entryOrErr(s.svc.Ledger.Reverse(ctx, req.EntryID, actorID, req.Reason))
}

func (s *appService) GetBalances(ctx context.Context) (*BalancesResult, error) {
	balances, err := s.svc.Ledger.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Balance)
	}
	return &BalancesResult{Accounts: balanceViews(balances), Total: total}, nil
}

func (s *appService) ListEntries(ctx context.Context, accountID int) ([]LedgerEntryView, error) {
	entries, err := s.svc.Ledger.ListEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]LedgerEntryView, len(entries))
	for i, e := range entries {
		out[i] = ledgerEntryView(e)
	}
	return out, nil
}

func (s *appService) TakeSnapshot(ctx context.Context) (*SnapshotView, error) {
	snap, err := s.svc.Ledger.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	v := snapshotView(*snap)
	return &v, nil
}

func (s *appService) ListSnapshots(ctx context.Context) ([]SnapshotView, error) {
	snaps, err := s.svc.Ledger.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotView, len(snaps))
	for i, sn := range snaps {
		out[i] = snapshotView(sn)
	}
	return out, nil
}

func entryOrErr(e *core.LedgerEntry, err error) (*LedgerEntryView, error) {
	if err != nil {
		return nil, err
	}
	v := ledgerEntryView(*e)
	return &v, nil
}

// ── Shifts ────────────────────────────────────────────────────────────────────

func (s *appService) StartShift(ctx context.Context, actorID int) (*ShiftView, error) {
	return shiftOrErr(s.svc.Shifts.StartShift(ctx, actorID))
}

func (s *appService) EndShift(ctx context.Context, actorID int) (*ShiftView, error) {
	return shiftOrErr(s.svc.Shifts.EndShift(ctx, actorID))
}

func (s *appService) ActiveShift(ctx context.Context, actorID int) (*ShiftView, error) {
	return shiftOrErr(s.svc.Shifts.ActiveShift(ctx, actorID))
}

func shiftOrErr(sh *core.Shift, err error) (*ShiftView, error) {
	if err != nil {
		return nil, err
	}
	v := shiftView(*sh)
	return &v, nil
}
