package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type purchaseOrderService struct {
	uow       *UnitOfWork
	lifecycle LifecycleService
	inventory InventoryService
	audit     AuditTrail
	ledger    LedgerService
	notifier  Notifier
}

// NewPurchaseOrderService constructs a PurchaseOrderService backed by PostgreSQL.
func NewPurchaseOrderService(pool *pgxpool.Pool, lifecycle LifecycleService, inventory InventoryService,
	audit AuditTrail, ledger LedgerService, notifier Notifier) PurchaseOrderService {
	return &purchaseOrderService{
		uow:       NewUnitOfWork(pool),
		lifecycle: lifecycle,
		inventory: inventory,
		audit:     audit,
		ledger:    ledger,
		notifier:  orNop(notifier),
	}
}

// CreateOrder records a new ORDERED, UNPAID order.
func (s *purchaseOrderService) CreateOrder(ctx context.Context, supplierID int, lines []SupplierOrderLineInput) (*SupplierOrder, error) {
	if len(lines) == 0 {
		return nil, validationf("supplier order must have at least one line")
	}
	for i, l := range lines {
		if (l.ModelID == nil) == (l.AccessoryID == nil) {
			return nil, validationf("line %d: exactly one of model and accessory is required", i+1)
		}
		if l.Quantity <= 0 {
			return nil, validationf("line %d: quantity must be positive, got %d", i+1, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return nil, validationf("line %d: unit price cannot be negative", i+1)
		}
	}

	var orderID int
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)", supplierID).Scan(&exists); err != nil {
			return fmt.Errorf("validate supplier: %w", err)
		}
		if !exists {
			return notFoundf("supplier %d not found", supplierID)
		}

		if err := tx.QueryRow(ctx,
			"INSERT INTO supplier_orders (supplier_id) VALUES ($1) RETURNING id", supplierID).Scan(&orderID); err != nil {
			return fmt.Errorf("insert supplier order: %w", err)
		}
		for i, l := range lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO supplier_order_lines (order_id, model_id, accessory_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)
			`, orderID, l.ModelID, l.AccessoryID, l.Quantity, l.UnitPrice); err != nil {
				if isForeignKeyViolation(err) {
					return notFoundf("line %d: referenced model or accessory does not exist", i+1)
				}
				return fmt.Errorf("insert order line %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *purchaseOrderService) MarkInTransit(ctx context.Context, orderID int) (*SupplierOrder, error) {
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		o, err := lockOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != OrderOrdered {
			return invalidStatef("supplier order %d is %s; only %s orders can be marked in transit", orderID, o.Status, OrderOrdered)
		}
		_, err = tx.Exec(ctx, "UPDATE supplier_orders SET status = $1 WHERE id = $2", string(OrderInTransit), orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// ReceiveOrder creates one device per ordered phone and adds accessory
// quantities to the warehouse, all in one unit of work. A received order
// cannot be received again.
func (s *purchaseOrderService) ReceiveOrder(ctx context.Context, actorID, orderID int) (*ReceiveResult, error) {
	res := &ReceiveResult{}
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		o, err := lockOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == OrderReceived {
			return invalidStatef("supplier order %d has already been received", orderID)
		}

		lines, err := fetchOrderLines(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			switch {
			case l.ModelID != nil:
				for i := 0; i < l.Quantity; i++ {
					d, err := s.lifecycle.CreateDeviceTx(ctx, tx, NewDevice{
						ModelID:         *l.ModelID,
						PurchasePrice:   l.UnitPrice,
						SupplierOrderID: &orderID,
					})
					if err != nil {
						return err
					}
					if _, err := s.audit.AppendTx(ctx, tx, d.ID, actorID, ReceivedFromSupplier{
						OrderID:       orderID,
						SupplierName:  o.SupplierName,
						PurchasePrice: l.UnitPrice,
					}); err != nil {
						return err
					}
					res.DeviceIDs = append(res.DeviceIDs, d.ID)
				}
			case l.AccessoryID != nil:
				unit, err := s.inventory.ReceiveAccessoryTx(ctx, tx, *l.AccessoryID, l.Quantity, LocationWarehouse,
					actorID, fmt.Sprintf("supplier order %d", orderID))
				if err != nil {
					return err
				}
				if _, err := tx.Exec(ctx,
					"UPDATE accessories SET purchase_price = $1 WHERE id = $2",
					l.UnitPrice, *l.AccessoryID); err != nil {
					return fmt.Errorf("update accessory %d purchase price: %w", *l.AccessoryID, err)
				}
				res.AccessoryUnits = append(res.AccessoryUnits, *unit)
			}
		}

		_, err = tx.Exec(ctx,
			"UPDATE supplier_orders SET status = $1, received_at = NOW() WHERE id = $2",
			string(OrderReceived), orderID)
		if err != nil {
			return fmt.Errorf("mark supplier order %d received: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	res.Order = *order
	s.notifyIfDue(ctx, order)
	return res, nil
}

// PayOrder books a payment to the supplier and updates the payment status.
// Paying more than is due is rejected.
func (s *purchaseOrderService) PayOrder(ctx context.Context, actorID int, in SupplierPaymentInput) (*SupplierOrder, error) {
	if !in.Amount.Round(2).IsPositive() {
		return nil, validationf("payment amount must be positive")
	}

	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		o, err := lockOrderTx(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		if o.PaymentStatus == OrderPaid {
			return invalidStatef("supplier order %d is already paid", in.OrderID)
		}
		if in.Amount.GreaterThan(o.Due()) {
			return validationf("payment %s exceeds the %s still due on order %d",
				in.Amount.StringFixed(2), o.Due().StringFixed(2), in.OrderID)
		}

		var counterpartyID *int
		if err := tx.QueryRow(ctx, "SELECT counterparty_id FROM suppliers WHERE id = $1", o.SupplierID).Scan(&counterpartyID); err != nil {
			return fmt.Errorf("fetch supplier counterparty: %w", err)
		}
		desc := fmt.Sprintf("Payment to %s for order #%d", o.SupplierName, in.OrderID)
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			desc += ": " + notes
		}
		entry, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
			CategoryCode:   CategorySupplierPayment,
			AccountID:      in.AccountID,
			Amount:         in.Amount.Neg(),
			CounterpartyID: counterpartyID,
			Description:    desc,
			ActorID:        actorID,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO supplier_payments (order_id, amount, ledger_entry_id, actor_id)
			VALUES ($1, $2, $3, $4)
		`, in.OrderID, in.Amount, entry.ID, actorID); err != nil {
			return fmt.Errorf("insert supplier payment: %w", err)
		}

		status := paymentStatusFor(o.Total, o.Paid.Add(in.Amount))
		_, err = tx.Exec(ctx, "UPDATE supplier_orders SET payment_status = $1 WHERE id = $2", string(status), in.OrderID)
		if err != nil {
			return fmt.Errorf("update payment status of order %d: %w", in.OrderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderReceived {
		s.notifyIfDue(ctx, order)
	}
	return order, nil
}

func (s *purchaseOrderService) notifyIfDue(ctx context.Context, o *SupplierOrder) {
	if o.PaymentStatus == OrderPaid {
		return
	}
	_ = s.notifier.Notify(ctx, Notification{
		Kind:    NotifySupplierPaymentDue,
		Message: fmt.Sprintf("Order #%d from %s: %s still due to the supplier", o.ID, o.SupplierName, o.Due().StringFixed(2)),
		Ref:     o.ID,
	})
}

const orderSelect = `
	SELECT o.id, o.supplier_id, sp.name, o.ordered_at, o.status, o.payment_status, o.received_at,
	       COALESCE((SELECT SUM(l.quantity * l.unit_price) FROM supplier_order_lines l WHERE l.order_id = o.id), 0),
	       COALESCE((SELECT SUM(p.amount) FROM supplier_payments p WHERE p.order_id = o.id), 0)
	FROM supplier_orders o
	JOIN suppliers sp ON sp.id = o.supplier_id`

func scanOrder(row pgx.Row) (*SupplierOrder, error) {
	var o SupplierOrder
	var status, payStatus string
	if err := row.Scan(&o.ID, &o.SupplierID, &o.SupplierName, &o.OrderedAt, &status, &payStatus, &o.ReceivedAt,
		&o.Total, &o.Paid); err != nil {
		return nil, err
	}
	o.Status = SupplierOrderStatus(status)
	o.PaymentStatus = OrderPaymentStatus(payStatus)
	return &o, nil
}

func lockOrderTx(ctx context.Context, tx pgx.Tx, orderID int) (*SupplierOrder, error) {
	o, err := scanOrder(tx.QueryRow(ctx, orderSelect+" WHERE o.id = $1 FOR UPDATE OF o", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("supplier order %d not found", orderID)
		}
		return nil, fmt.Errorf("lock supplier order %d: %w", orderID, err)
	}
	return o, nil
}

func fetchOrderLines(ctx context.Context, q querier, orderID int) ([]SupplierOrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, model_id, accessory_id, quantity, unit_price
		FROM supplier_order_lines WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []SupplierOrderLine
	for rows.Next() {
		var l SupplierOrderLine
		if err := rows.Scan(&l.ID, &l.ModelID, &l.AccessoryID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *purchaseOrderService) GetOrder(ctx context.Context, orderID int) (*SupplierOrder, error) {
	o, err := scanOrder(s.uow.Pool().QueryRow(ctx, orderSelect+" WHERE o.id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("supplier order %d not found", orderID)
		}
		return nil, fmt.Errorf("fetch supplier order %d: %w", orderID, err)
	}
	if o.Lines, err = fetchOrderLines(ctx, s.uow.Pool(), orderID); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns orders newest first; an empty status returns all of them.
func (s *purchaseOrderService) ListOrders(ctx context.Context, status SupplierOrderStatus) ([]SupplierOrder, error) {
	rows, err := s.uow.Pool().Query(ctx, orderSelect+`
		WHERE ($1 = '' OR o.status = $1)
		ORDER BY o.ordered_at DESC, o.id DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query supplier orders: %w", err)
	}
	defer rows.Close()

	var out []SupplierOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
