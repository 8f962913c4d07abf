package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SaleService runs point-of-sale transactions. A sale either commits with all
// its lines, stock decrements, device transitions and ledger entries, or not at all.
type SaleService interface {
	CreateSale(ctx context.Context, actorID int, in SaleInput) (*Sale, error)
	// FinalizeSale pays a PENDING_PAYMENT sale. Its effects run exactly once.
	FinalizeSale(ctx context.Context, actorID, saleID int, payments []PaymentAllocation) (*Sale, error)
	// CancelPendingSale releases the stock reserved by a deferred sale.
	CancelPendingSale(ctx context.Context, actorID, saleID int) (*Sale, error)
	// RefundDevice takes a sold device back, refunding its line price.
	RefundDevice(ctx context.Context, actorID int, in RefundInput) (*TransitionResult, error)
	GetSale(ctx context.Context, saleID int) (*Sale, error)
	ListPendingSales(ctx context.Context) ([]Sale, error)
}

type saleService struct {
	uow       *UnitOfWork
	inventory InventoryService
	lifecycle LifecycleService
	ledger    LedgerService
	policy    SalePolicy
}

func NewSaleService(pool *pgxpool.Pool, inventory InventoryService, lifecycle LifecycleService, ledger LedgerService, policy SalePolicy) SaleService {
	return &saleService{
		uow:       NewUnitOfWork(pool),
		inventory: inventory,
		lifecycle: lifecycle,
		ledger:    ledger,
		policy:    policy,
	}
}

// pricedLine is a validated line with its locked unit and resolved cost.
type pricedLine struct {
	SaleLineInput
	Product  ProductRef
	UnitCost decimal.Decimal
}

func (s *saleService) CreateSale(ctx context.Context, actorID int, in SaleInput) (*Sale, error) {
	if err := validateSaleInput(in); err != nil {
		return nil, err
	}
	subtotal, total, err := SaleTotals(in.Lines, in.Discount, in.PaymentAdjustment)
	if err != nil {
		return nil, err
	}
	var changeAdj decimal.Decimal
	var cashAccount int
	if !in.Deferred {
		if err := ReconcilePayments(total, in.Payments, s.policy.PaymentTolerance); err != nil {
			return nil, err
		}
		if changeAdj, cashAccount, err = ChangeAdjustment(in.Payments, in.CashReceived, in.ChangeGiven); err != nil {
			return nil, err
		}
	}

	var saleID int
	err = s.uow.Do(ctx, func(tx pgx.Tx) error {
		customerName, err := customerNameTx(ctx, tx, in.CustomerID)
		if err != nil {
			return err
		}

		lines, err := s.lockAndPrice(ctx, tx, in.Lines)
		if err != nil {
			return err
		}

		status := SalePaid
		if in.Deferred {
			status = SalePendingPayment
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO sales (customer_id, actor_id, subtotal, discount, payment_adjustment, total, status,
			                   cash_received, change_given, delivery_method, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))
			RETURNING id
		`, in.CustomerID, actorID, subtotal, in.Discount, in.PaymentAdjustment, total, string(SalePendingPayment),
			in.CashReceived, in.ChangeGiven, strings.TrimSpace(in.DeliveryMethod), strings.TrimSpace(in.Notes)).Scan(&saleID)
		if err != nil {
			return fmt.Errorf("failed to insert sale: %w", err)
		}

		ref := fmt.Sprintf("sale %d", saleID)
		for _, l := range lines {
			if _, err := s.inventory.AdjustTx(ctx, tx, l.StockUnitID, -l.Quantity, MovementSale, actorID, ref); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO sale_lines (sale_id, stock_unit_id, product_kind, product_id, quantity, unit_price, unit_cost)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, saleID, l.StockUnitID, string(l.Product.Kind()), l.Product.ID(), l.Quantity, l.UnitPrice, l.UnitCost); err != nil {
				return fmt.Errorf("failed to insert sale line: %w", err)
			}
		}

		if status == SalePaid {
			return s.completeTx(ctx, tx, actorID, saleID, customerName, in.Payments, changeAdj, cashAccount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

// lockAndPrice locks every referenced unit in ascending id order, checks the
// aggregated requested quantity against what is on hand and resolves line costs.
// Nothing is written here, so a shortage leaves no trace.
func (s *saleService) lockAndPrice(ctx context.Context, tx pgx.Tx, in []SaleLineInput) ([]pricedLine, error) {
	requested := make(map[int]int, len(in))
	for _, l := range in {
		requested[l.StockUnitID] += l.Quantity
	}
	ids := make([]int, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	units := make(map[int]*StockUnit, len(ids))
	costs := make(map[int]decimal.Decimal, len(ids))
	var shortages []string
	for _, id := range ids {
		u, err := s.inventory.LockUnitTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if u.Quantity < requested[id] {
			shortages = append(shortages, fmt.Sprintf("unit %d has %d, requested %d", id, u.Quantity, requested[id]))
			continue
		}
		cost, err := MatchProduct(u.Product,
			func(r DeviceRef) costResult { return s.deviceCostTx(ctx, tx, r.DeviceID) },
			func(r AccessoryRef) costResult { return accessoryCostTx(ctx, tx, r.AccessoryID) },
		).unpack()
		if err != nil {
			return nil, err
		}
		units[id] = u
		costs[id] = cost
	}
	if len(shortages) > 0 {
		return nil, insufficientf("insufficient stock: %s", strings.Join(shortages, "; "))
	}

	out := make([]pricedLine, 0, len(in))
	for _, l := range in {
		out = append(out, pricedLine{SaleLineInput: l, Product: units[l.StockUnitID].Product, UnitCost: costs[l.StockUnitID]})
	}
	return out, nil
}

type costResult struct {
	cost decimal.Decimal
	err  error
}

func (c costResult) unpack() (decimal.Decimal, error) { return c.cost, c.err }

func (s *saleService) deviceCostTx(ctx context.Context, tx pgx.Tx, deviceID int) costResult {
	d, err := s.lifecycle.LockDeviceTx(ctx, tx, deviceID)
	if err != nil {
		return costResult{err: err}
	}
	if d.CommercialStatus != CommInStock {
		return costResult{err: invalidStatef("device %d is %s, not for sale", deviceID, d.CommercialStatus)}
	}
	return costResult{cost: d.PurchasePrice}
}

func accessoryCostTx(ctx context.Context, tx pgx.Tx, accessoryID int) costResult {
	var cost decimal.Decimal
	if err := tx.QueryRow(ctx, "SELECT purchase_price FROM accessories WHERE id = $1", accessoryID).Scan(&cost); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return costResult{err: notFoundf("accessory %d not found", accessoryID)}
		}
		return costResult{err: fmt.Errorf("failed to fetch accessory %d: %w", accessoryID, err)}
	}
	return costResult{cost: cost}
}

func customerNameTx(ctx context.Context, q querier, customerID *int) (string, error) {
	if customerID == nil {
		return "", nil
	}
	var name string
	if err := q.QueryRow(ctx, "SELECT name FROM customers WHERE id = $1", *customerID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFoundf("customer %d not found", *customerID)
		}
		return "", fmt.Errorf("failed to fetch customer %d: %w", *customerID, err)
	}
	return name, nil
}

// completeTx performs the paid-sale effects: devices become SOLD, line profits
// are fixed, payments are recorded and booked. It also flips the status to PAID,
// which is what makes a second finalize fail.
func (s *saleService) completeTx(ctx context.Context, tx pgx.Tx, actorID, saleID int, customerName string,
	payments []PaymentAllocation, changeAdj decimal.Decimal, cashAccount int) error {

	rows, err := tx.Query(ctx, `
		SELECT id, product_kind, product_id, quantity, unit_price, unit_cost
		FROM sale_lines WHERE sale_id = $1 ORDER BY id
	`, saleID)
	if err != nil {
		return fmt.Errorf("failed to load sale lines: %w", err)
	}
	var lines []SaleLine
	for rows.Next() {
		var l SaleLine
		var kind string
		var productID int
		if err := rows.Scan(&l.ID, &kind, &productID, &l.Quantity, &l.UnitPrice, &l.UnitCost); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan sale line: %w", err)
		}
		if l.Product, err = NewProductRef(ProductKind(kind), productID); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load sale lines: %w", err)
	}

	for _, l := range lines {
		if dev, ok := l.Product.(DeviceRef); ok {
			if _, err := s.lifecycle.TransitionTx(ctx, tx, dev.DeviceID, actorID, Transition{
				Guard:      requireStatus([]TechStatus{TechPackaged}, []CommercialStatus{CommInStock}),
				Commercial: CommSold,
				Event:      Sold{SaleID: saleID, CustomerName: customerName, UnitPrice: l.UnitPrice},
			}); err != nil {
				return err
			}
		}
		profit := LineProfit(l.Product, l.UnitPrice, l.UnitCost, l.Quantity, s.policy.HandlingOverhead)
		if _, err := tx.Exec(ctx, "UPDATE sale_lines SET profit = $1 WHERE id = $2", profit, l.ID); err != nil {
			return fmt.Errorf("failed to record profit of line %d: %w", l.ID, err)
		}
	}

	opID := uuid.New()
	desc := fmt.Sprintf("Sale #%d", saleID)
	if customerName != "" {
		desc += " to " + customerName
	}
	for _, p := range payments {
		if _, err := tx.Exec(ctx,
			"INSERT INTO sale_payments (sale_id, account_id, amount, method) VALUES ($1, $2, $3, $4)",
			saleID, p.AccountID, p.Amount, string(p.Method)); err != nil {
			return fmt.Errorf("failed to insert sale payment: %w", err)
		}
		if _, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
			OperationID:  opID,
			CategoryCode: CategorySaleIncome,
			AccountID:    p.AccountID,
			Amount:       p.Amount,
			Description:  fmt.Sprintf("%s (%s)", desc, strings.ToLower(string(p.Method))),
			ActorID:      actorID,
		}); err != nil {
			return err
		}
	}
	if !changeAdj.IsZero() {
		if _, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
			OperationID:  opID,
			CategoryCode: CategoryChangeAdjustment,
			AccountID:    cashAccount,
			Amount:       changeAdj,
			Description:  desc + ": change not returned",
			ActorID:      actorID,
		}); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE sales SET status = $1, paid_at = NOW() WHERE id = $2",
		string(SalePaid), saleID); err != nil {
		return fmt.Errorf("failed to mark sale %d paid: %w", saleID, err)
	}
	return nil
}

type lockedSale struct {
	total        decimal.Decimal
	status       SaleStatus
	customerName string
}

func lockSaleTx(ctx context.Context, tx pgx.Tx, saleID int) (*lockedSale, error) {
	var ls lockedSale
	var status string
	err := tx.QueryRow(ctx, `
		SELECT s.total, s.status, COALESCE(c.name, '')
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
		FOR UPDATE OF s
	`, saleID).Scan(&ls.total, &status, &ls.customerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("sale %d not found", saleID)
		}
		return nil, fmt.Errorf("failed to lock sale %d: %w", saleID, err)
	}
	ls.status = SaleStatus(status)
	return &ls, nil
}

func (s *saleService) FinalizeSale(ctx context.Context, actorID, saleID int, payments []PaymentAllocation) (*Sale, error) {
	if err := validatePayments(payments); err != nil {
		return nil, err
	}
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		ls, err := lockSaleTx(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if ls.status != SalePendingPayment {
			return invalidStatef("sale %d is %s; only %s sales can be finalized", saleID, ls.status, SalePendingPayment)
		}
		if err := ReconcilePayments(ls.total, payments, s.policy.PaymentTolerance); err != nil {
			return err
		}
		return s.completeTx(ctx, tx, actorID, saleID, ls.customerName, payments, decimal.Zero, 0)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *saleService) CancelPendingSale(ctx context.Context, actorID, saleID int) (*Sale, error) {
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		ls, err := lockSaleTx(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if ls.status != SalePendingPayment {
			return invalidStatef("sale %d is %s; only %s sales can be cancelled", saleID, ls.status, SalePendingPayment)
		}

		rows, err := tx.Query(ctx, "SELECT stock_unit_id, quantity FROM sale_lines WHERE sale_id = $1 ORDER BY stock_unit_id", saleID)
		if err != nil {
			return fmt.Errorf("failed to load sale lines: %w", err)
		}
		type release struct{ unitID, qty int }
		var releases []release
		for rows.Next() {
			var r release
			if err := rows.Scan(&r.unitID, &r.qty); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan sale line: %w", err)
			}
			releases = append(releases, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to load sale lines: %w", err)
		}

		ref := fmt.Sprintf("sale %d cancelled", saleID)
		for _, r := range releases {
			if _, err := s.inventory.AdjustTx(ctx, tx, r.unitID, r.qty, MovementSaleVoid, actorID, ref); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, "UPDATE sales SET status = $1 WHERE id = $2", string(SaleCancelled), saleID); err != nil {
			return fmt.Errorf("failed to cancel sale %d: %w", saleID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *saleService) RefundDevice(ctx context.Context, actorID int, in RefundInput) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.lifecycle.LockDeviceTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus(nil, []CommercialStatus{CommSold})(*d); err != nil {
			return err
		}

		line, err := soldLineTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}

		unit, err := s.inventory.DeviceUnitTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.AdjustTx(ctx, tx, unit.ID, 1, MovementReturn, actorID, fmt.Sprintf("refund sale %d", line.saleID)); err != nil {
			return err
		}

		if _, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
			CategoryCode: CategoryCustomerRefund,
			AccountID:    in.AccountID,
			Amount:       line.unitPrice.Neg(),
			Description:  fmt.Sprintf("Refund for %s (S/N %s), sale #%d", d.DisplayName(), d.Serial(), line.saleID),
			ActorID:      actorID,
		}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE sale_lines SET profit = 0 WHERE id = $1", line.id); err != nil {
			return fmt.Errorf("failed to zero profit of line %d: %w", line.id, err)
		}

		res, err = s.lifecycle.TransitionTx(ctx, tx, in.DeviceID, actorID, Transition{
			Technical:  TechDefective,
			Commercial: CommReturned,
			Event:      CustomerReturn{SaleID: line.saleID, RefundAmount: line.unitPrice, Reason: strings.TrimSpace(in.Reason)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

type soldLine struct {
	id        int
	saleID    int
	unitPrice decimal.Decimal
	unitCost  decimal.Decimal
}

// soldLineTx finds and locks the paid sale line that currently points at deviceID.
func soldLineTx(ctx context.Context, tx pgx.Tx, deviceID int) (*soldLine, error) {
	var l soldLine
	err := tx.QueryRow(ctx, `
		SELECT sl.id, sl.sale_id, sl.unit_price, sl.unit_cost
		FROM sale_lines sl
		JOIN sales s ON s.id = sl.sale_id
		WHERE sl.product_kind = 'DEVICE' AND sl.product_id = $1 AND s.status = 'PAID'
		ORDER BY sl.id DESC
		LIMIT 1
		FOR UPDATE OF sl
	`, deviceID).Scan(&l.id, &l.saleID, &l.unitPrice, &l.unitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("no paid sale line found for device %d", deviceID)
		}
		return nil, fmt.Errorf("failed to find sale line of device %d: %w", deviceID, err)
	}
	return &l, nil
}

func (s *saleService) GetSale(ctx context.Context, saleID int) (*Sale, error) {
	pool := s.uow.Pool()
	sale, err := scanSale(pool.QueryRow(ctx, saleSelect+" WHERE s.id = $1", saleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("sale %d not found", saleID)
		}
		return nil, fmt.Errorf("failed to fetch sale %d: %w", saleID, err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id, stock_unit_id, product_kind, product_id, quantity, unit_price, unit_cost, profit
		FROM sale_lines WHERE sale_id = $1 ORDER BY id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l SaleLine
		var kind string
		var productID int
		if err := rows.Scan(&l.ID, &l.StockUnitID, &kind, &productID, &l.Quantity, &l.UnitPrice, &l.UnitCost, &l.Profit); err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", err)
		}
		if l.Product, err = NewProductRef(ProductKind(kind), productID); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sale lines: %w", err)
	}

	prow, err := pool.Query(ctx, "SELECT id, account_id, amount, method FROM sale_payments WHERE sale_id = $1 ORDER BY id", saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale payments: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var p SalePayment
		var method string
		if err := prow.Scan(&p.ID, &p.AccountID, &p.Amount, &method); err != nil {
			return nil, fmt.Errorf("failed to scan sale payment: %w", err)
		}
		p.Method = PaymentMethod(method)
		sale.Payments = append(sale.Payments, p)
	}
	return sale, prow.Err()
}

func (s *saleService) ListPendingSales(ctx context.Context) ([]Sale, error) {
	rows, err := s.uow.Pool().Query(ctx, saleSelect+" WHERE s.status = $1 ORDER BY s.sold_at", string(SalePendingPayment))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending sales: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

const saleSelect = `
	SELECT s.id, s.customer_id, COALESCE(c.name, ''), s.actor_id, s.sold_at, s.subtotal, s.discount,
	       s.payment_adjustment, s.total, s.status, s.cash_received, s.change_given,
	       COALESCE(s.delivery_method, ''), COALESCE(s.notes, ''), s.paid_at
	FROM sales s
	LEFT JOIN customers c ON c.id = s.customer_id`

func scanSale(row pgx.Row) (*Sale, error) {
	var sale Sale
	var status string
	if err := row.Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.ActorID, &sale.SoldAt, &sale.Subtotal,
		&sale.Discount, &sale.PaymentAdjustment, &sale.Total, &status, &sale.CashReceived, &sale.ChangeGiven,
		&sale.DeliveryMethod, &sale.Notes, &sale.PaidAt); err != nil {
		return nil, err
	}
	sale.Status = SaleStatus(status)
	return &sale, nil
}
