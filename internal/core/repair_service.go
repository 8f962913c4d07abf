package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepairService covers everything that happens to a device after it was sold:
// repairs, exchanges, supplier replacements and loaner phones.
type RepairService interface {
	StartRepair(ctx context.Context, actorID int, in StartRepairInput) (*Repair, error)
	FinishRepair(ctx context.Context, actorID int, in FinishRepairInput) (*Repair, error)
	PayRepair(ctx context.Context, actorID int, in RepairPaymentInput) (*Repair, error)
	GetRepair(ctx context.Context, repairID int) (*Repair, error)
	ListRepairs(ctx context.Context, status RepairStatus) ([]Repair, error)

	// Exchange swaps a sold device for an in-stock one of the same model and storage.
	Exchange(ctx context.Context, actorID, originalDeviceID, replacementDeviceID int) (*ExchangeResult, error)
	// SupplierReplacement writes off a device the supplier kept and registers the one it sent back.
	SupplierReplacement(ctx context.Context, actorID int, in ReplacementInput) (*ReplacementResult, error)

	IssueLoaner(ctx context.Context, actorID, repairID, loanerDeviceID int) (*LoanerAssignment, error)
	ReturnLoaner(ctx context.Context, actorID, assignmentID int) (*LoanerAssignment, error)
	ListLoaners(ctx context.Context, repairID int) ([]LoanerAssignment, error)
}

type repairService struct {
	uow       *UnitOfWork
	lifecycle LifecycleService
	inventory InventoryService
	audit     AuditTrail
	ledger    LedgerService
	notifier  Notifier
	policy    SalePolicy
}

func NewRepairService(pool *pgxpool.Pool, lifecycle LifecycleService, inventory InventoryService, audit AuditTrail,
	ledger LedgerService, notifier Notifier, policy SalePolicy) RepairService {
	return &repairService{
		uow:       NewUnitOfWork(pool),
		lifecycle: lifecycle,
		inventory: inventory,
		audit:     audit,
		ledger:    ledger,
		notifier:  orNop(notifier),
		policy:    policy,
	}
}

// ── Repairs ───────────────────────────────────────────────────────────────────

func (s *repairService) StartRepair(ctx context.Context, actorID int, in StartRepairInput) (*Repair, error) {
	if in.Type != RepairWarranty && in.Type != RepairPaid {
		return nil, validationf("unknown repair type %q", in.Type)
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, validationf("customer name is required")
	}
	if strings.TrimSpace(in.Problem) == "" {
		return nil, validationf("problem description is required")
	}
	if in.EstimatedCost != nil && in.EstimatedCost.IsNegative() {
		return nil, validationf("estimated cost cannot be negative")
	}

	var repairID int
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.lifecycle.LockDeviceTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus(nil, []CommercialStatus{CommSold})(*d); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO repairs (device_id, actor_id, repair_type, status, customer_name, customer_phone,
			                     problem, device_condition, included_items, estimated_cost)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10)
			RETURNING id
		`, d.ID, actorID, string(in.Type), string(RepairOpen), strings.TrimSpace(in.CustomerName),
			strings.TrimSpace(in.CustomerPhone), strings.TrimSpace(in.Problem), strings.TrimSpace(in.DeviceCondition),
			strings.TrimSpace(in.IncludedItems), in.EstimatedCost).Scan(&repairID)
		if err != nil {
			return fmt.Errorf("failed to insert repair: %w", err)
		}

		_, err = s.lifecycle.TransitionTx(ctx, tx, d.ID, actorID, Transition{
			Commercial: CommInRepair,
			Event:      SentToRepair{RepairID: repairID, RepairType: in.Type, Problem: strings.TrimSpace(in.Problem)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetRepair(ctx, repairID)
}

// FinishRepair records the work done. A paid repair with a final cost waits
// for the customer's payment; any other repair closes and the device goes back to SOLD.
func (s *repairService) FinishRepair(ctx context.Context, actorID int, in FinishRepairInput) (*Repair, error) {
	work := strings.TrimSpace(in.WorkPerformed)
	if work == "" {
		return nil, validationf("work performed is required")
	}
	if in.FinalCost != nil && in.FinalCost.IsNegative() {
		return nil, validationf("final cost cannot be negative")
	}
	if in.ServiceCost != nil {
		if in.ServiceCost.IsNegative() {
			return nil, validationf("service cost cannot be negative")
		}
		if in.ServiceCost.IsPositive() && in.ExpenseAccountID == nil {
			return nil, validationf("an expense account is required to book the service cost")
		}
	}

	var awaiting bool
	var r *Repair
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		var err error
		r, err = lockRepairTx(ctx, tx, in.RepairID)
		if err != nil {
			return err
		}
		if r.Status != RepairOpen {
			return invalidStatef("repair %d is %s; only %s repairs can be finished", r.ID, r.Status, RepairOpen)
		}

		if in.ServiceCost != nil && in.ServiceCost.IsPositive() {
			if _, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
				CategoryCode: CategoryRepairExpense,
				AccountID:    *in.ExpenseAccountID,
				Amount:       in.ServiceCost.Neg(),
				Description:  fmt.Sprintf("Service cost of repair #%d", r.ID),
				ActorID:      actorID,
			}); err != nil {
				return err
			}
		}

		awaiting = r.Type == RepairPaid && in.FinalCost != nil && in.FinalCost.IsPositive()
		status := RepairClosed
		if awaiting {
			status = RepairAwaitingPayment
		}
		if _, err := tx.Exec(ctx, `
			UPDATE repairs
			SET status = $1, work_performed = $2, final_cost = $3, service_cost = $4,
			    returned_at = CASE WHEN $1 = 'CLOSED' THEN NOW() ELSE returned_at END
			WHERE id = $5
		`, string(status), work, in.FinalCost, in.ServiceCost, r.ID); err != nil {
			return fmt.Errorf("failed to update repair %d: %w", r.ID, err)
		}

		t := Transition{
			Guard: requireStatus(nil, []CommercialStatus{CommInRepair}),
			Event: RepairFinished{RepairID: r.ID, WorkPerformed: work, FinalCost: in.FinalCost, AwaitingPayment: awaiting},
		}
		if !awaiting {
			t.Commercial = CommSold
		}
		_, err = s.lifecycle.TransitionTx(ctx, tx, r.DeviceID, actorID, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	if awaiting {
		_ = s.notifier.Notify(ctx, Notification{
			Kind:    NotifyRepairAwaitingPay,
			Message: fmt.Sprintf("Repair #%d for %s is done: %s to collect", r.ID, r.CustomerName, in.FinalCost.StringFixed(2)),
			Ref:     r.ID,
		})
	}
	return s.GetRepair(ctx, in.RepairID)
}

func (s *repairService) PayRepair(ctx context.Context, actorID int, in RepairPaymentInput) (*Repair, error) {
	if !in.Amount.Round(2).IsPositive() {
		return nil, validationf("payment amount must be positive")
	}
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		r, err := lockRepairTx(ctx, tx, in.RepairID)
		if err != nil {
			return err
		}
		if r.Status != RepairAwaitingPayment {
			return invalidStatef("repair %d is %s; only %s repairs can be paid", r.ID, r.Status, RepairAwaitingPayment)
		}
		if r.FinalCost == nil || in.Amount.Sub(*r.FinalCost).Abs().GreaterThan(s.policy.PaymentTolerance) {
			return validationf("payment %s does not match the repair cost", in.Amount.StringFixed(2))
		}

		if _, err := s.ledger.PostTx(ctx, tx, LedgerPosting{
			CategoryCode: CategoryRepairIncome,
			AccountID:    in.AccountID,
			Amount:       in.Amount,
			Description:  fmt.Sprintf("Paid repair #%d (%s)", r.ID, r.CustomerName),
			ActorID:      actorID,
		}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE repairs SET status = $1, paid_at = NOW(), returned_at = NOW() WHERE id = $2",
			string(RepairClosed), r.ID); err != nil {
			return fmt.Errorf("failed to close repair %d: %w", r.ID, err)
		}

		_, err = s.lifecycle.TransitionTx(ctx, tx, r.DeviceID, actorID, Transition{
			Guard:      requireStatus(nil, []CommercialStatus{CommInRepair}),
			Commercial: CommSold,
			Event:      RepairPaymentReceived{RepairID: r.ID, Amount: in.Amount},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetRepair(ctx, in.RepairID)
}

const repairSelect = `
	SELECT id, device_id, actor_id, repair_type, status, customer_name, COALESCE(customer_phone, ''),
	       problem, COALESCE(device_condition, ''), COALESCE(included_items, ''),
	       estimated_cost, final_cost, service_cost, COALESCE(work_performed, ''),
	       accepted_at, returned_at, paid_at
	FROM repairs`

func scanRepair(row pgx.Row) (*Repair, error) {
	var r Repair
	var typ, status string
	if err := row.Scan(&r.ID, &r.DeviceID, &r.ActorID, &typ, &status, &r.CustomerName, &r.CustomerPhone,
		&r.Problem, &r.DeviceCondition, &r.IncludedItems, &r.EstimatedCost, &r.FinalCost, &r.ServiceCost,
		&r.WorkPerformed, &r.AcceptedAt, &r.ReturnedAt, &r.PaidAt); err != nil {
		return nil, err
	}
	r.Type = RepairType(typ)
	r.Status = RepairStatus(status)
	return &r, nil
}

func lockRepairTx(ctx context.Context, tx pgx.Tx, repairID int) (*Repair, error) {
	r, err := scanRepair(tx.QueryRow(ctx, repairSelect+" WHERE id = $1 FOR UPDATE", repairID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("repair %d not found", repairID)
		}
		return nil, fmt.Errorf("failed to lock repair %d: %w", repairID, err)
	}
	return r, nil
}

func (s *repairService) GetRepair(ctx context.Context, repairID int) (*Repair, error) {
	r, err := scanRepair(s.uow.Pool().QueryRow(ctx, repairSelect+" WHERE id = $1", repairID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("repair %d not found", repairID)
		}
		return nil, fmt.Errorf("failed to fetch repair %d: %w", repairID, err)
	}
	return r, nil
}

func (s *repairService) ListRepairs(ctx context.Context, status RepairStatus) ([]Repair, error) {
	rows, err := s.uow.Pool().Query(ctx, repairSelect+" WHERE ($1 = '' OR status = $1) ORDER BY accepted_at DESC, id DESC", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query repairs: %w", err)
	}
	defer rows.Close()

	var out []Repair
	for rows.Next() {
		r, err := scanRepair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repair: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ── Exchange and supplier replacement ─────────────────────────────────────────

func (s *repairService) Exchange(ctx context.Context, actorID, originalDeviceID, replacementDeviceID int) (*ExchangeResult, error) {
	if originalDeviceID == replacementDeviceID {
		return nil, validationf("a device cannot be exchanged for itself")
	}

	res := &ExchangeResult{}
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		// Lock in id order so two exchanges touching the same pair cannot deadlock.
		first, second := originalDeviceID, replacementDeviceID
		if second < first {
			first, second = second, first
		}
		locked := make(map[int]*Device, 2)
		for _, id := range []int{first, second} {
			d, err := s.lifecycle.LockDeviceTx(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = d
		}
		orig, repl := locked[originalDeviceID], locked[replacementDeviceID]

		if err := requireStatus(nil, []CommercialStatus{CommSold})(*orig); err != nil {
			return err
		}
		if err := requireStatus([]TechStatus{TechPackaged}, []CommercialStatus{CommInStock})(*repl); err != nil {
			return err
		}
		if err := sameModelAndStorage(ctx, tx, orig.ModelID, repl.ModelID); err != nil {
			return err
		}

		line, err := soldLineTx(ctx, tx, orig.ID)
		if err != nil {
			return err
		}
		origUnit, err := s.inventory.DeviceUnitTx(ctx, tx, orig.ID)
		if err != nil {
			return err
		}
		replUnit, err := s.inventory.DeviceUnitTx(ctx, tx, repl.ID)
		if err != nil {
			return err
		}

		ref := fmt.Sprintf("exchange on sale %d", line.saleID)
		if _, err := s.inventory.AdjustTx(ctx, tx, replUnit.ID, -1, MovementExchange, actorID, ref); err != nil {
			return err
		}
		if _, err := s.inventory.AdjustTx(ctx, tx, origUnit.ID, 1, MovementExchange, actorID, ref); err != nil {
			return err
		}

		profit := LineProfit(DeviceRef{DeviceID: repl.ID}, line.unitPrice, repl.PurchasePrice, 1, s.policy.HandlingOverhead)
		if _, err := tx.Exec(ctx, `
			UPDATE sale_lines
			SET stock_unit_id = $1, product_id = $2, unit_cost = $3, profit = $4
			WHERE id = $5
		`, replUnit.ID, repl.ID, repl.PurchasePrice, profit, line.id); err != nil {
			return fmt.Errorf("failed to repoint sale line %d: %w", line.id, err)
		}

		o, err := s.lifecycle.TransitionTx(ctx, tx, orig.ID, actorID, Transition{
			Technical:  TechDefective,
			Commercial: CommReturned,
			Event: Exchanged{SaleID: line.saleID, Direction: ExchangeTakenBack,
				CounterpartDeviceID: repl.ID, CounterpartSerial: repl.Serial()},
		})
		if err != nil {
			return err
		}
		r, err := s.lifecycle.TransitionTx(ctx, tx, repl.ID, actorID, Transition{
			Commercial: CommSold,
			Event: Exchanged{SaleID: line.saleID, Direction: ExchangeHandedOut,
				CounterpartDeviceID: orig.ID, CounterpartSerial: orig.Serial()},
		})
		if err != nil {
			return err
		}
		res.Original, res.Replacement, res.SaleID = *o, *r, line.saleID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// sameModelAndStorage allows a different color but nothing else.
func sameModelAndStorage(ctx context.Context, q querier, modelA, modelB int) error {
	var same bool
	err := q.QueryRow(ctx, `
		SELECT a.model_name_id = b.model_name_id AND a.storage_id = b.storage_id
		FROM device_models a, device_models b
		WHERE a.id = $1 AND b.id = $2
	`, modelA, modelB).Scan(&same)
	if err != nil {
		return fmt.Errorf("failed to compare device models: %w", err)
	}
	if !same {
		return validationf("replacement must be the same model and storage as the original")
	}
	return nil
}

func (s *repairService) SupplierReplacement(ctx context.Context, actorID int, in ReplacementInput) (*ReplacementResult, error) {
	res := &ReplacementResult{}
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		orig, err := s.lifecycle.LockDeviceTx(ctx, tx, in.OriginalDeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus(nil, []CommercialStatus{CommSentToSupplier})(*orig); err != nil {
			return err
		}

		modelID := in.NewModelID
		if modelID == 0 {
			modelID = orig.ModelID
		}
		nd := NewDevice{ModelID: modelID, PurchasePrice: orig.PurchasePrice, SupplierOrderID: orig.SupplierOrderID}
		if serial := strings.TrimSpace(in.NewSerialNumber); serial != "" {
			nd.SerialNumber = &serial
		}
		replacement, err := s.lifecycle.CreateDeviceTx(ctx, tx, nd)
		if err != nil {
			return err
		}
		if _, err := s.audit.AppendTx(ctx, tx, replacement.ID, actorID, ReplacementReceived{
			OriginalDeviceID: orig.ID,
			OriginalSerial:   orig.Serial(),
		}); err != nil {
			return err
		}

		o, err := s.lifecycle.TransitionTx(ctx, tx, orig.ID, actorID, Transition{
			Commercial: CommWrittenOffBySupplier,
			Event:      WrittenOffBySupplier{ReplacementDeviceID: replacement.ID, ReplacementSerial: replacement.Serial()},
		})
		if err != nil {
			return err
		}
		res.Original, res.Replacement = *o, *replacement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── Loaners ───────────────────────────────────────────────────────────────────

func (s *repairService) IssueLoaner(ctx context.Context, actorID, repairID, loanerDeviceID int) (*LoanerAssignment, error) {
	var assignmentID int
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		r, err := lockRepairTx(ctx, tx, repairID)
		if err != nil {
			return err
		}
		if r.Status != RepairOpen {
			return invalidStatef("repair %d is %s; loaners are issued for %s repairs only", r.ID, r.Status, RepairOpen)
		}
		var outstanding bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM loaner_assignments WHERE repair_id = $1 AND returned_at IS NULL)",
			repairID).Scan(&outstanding); err != nil {
			return fmt.Errorf("failed to check outstanding loaners: %w", err)
		}
		if outstanding {
			return invalidStatef("repair %d already has a loaner out", repairID)
		}

		d, err := s.lifecycle.LockDeviceTx(ctx, tx, loanerDeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus([]TechStatus{TechPackaged}, []CommercialStatus{CommLoanerPool})(*d); err != nil {
			return err
		}
		unit, err := s.inventory.DeviceUnitTx(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.AdjustTx(ctx, tx, unit.ID, -1, MovementLoanerOut, actorID, fmt.Sprintf("repair %d", repairID)); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx,
			"INSERT INTO loaner_assignments (repair_id, device_id, actor_id) VALUES ($1, $2, $3) RETURNING id",
			repairID, d.ID, actorID).Scan(&assignmentID); err != nil {
			return fmt.Errorf("failed to insert loaner assignment: %w", err)
		}
		_, err = s.lifecycle.TransitionTx(ctx, tx, d.ID, actorID, Transition{
			Commercial: CommIssuedAsLoaner,
			Event:      IssuedAsLoaner{RepairID: repairID, AssignmentID: assignmentID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.getAssignment(ctx, s.uow.Pool(), assignmentID)
}

// ReturnLoaner takes a loaner back. It goes through inspection again before it
// can be lent out a second time.
func (s *repairService) ReturnLoaner(ctx context.Context, actorID, assignmentID int) (*LoanerAssignment, error) {
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		var a LoanerAssignment
		err := tx.QueryRow(ctx, `
			SELECT id, repair_id, device_id, actor_id, issued_at, returned_at
			FROM loaner_assignments WHERE id = $1 FOR UPDATE
		`, assignmentID).Scan(&a.ID, &a.RepairID, &a.DeviceID, &a.ActorID, &a.IssuedAt, &a.ReturnedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("loaner assignment %d not found", assignmentID)
			}
			return fmt.Errorf("failed to lock loaner assignment %d: %w", assignmentID, err)
		}
		if a.ReturnedAt != nil {
			return invalidStatef("loaner assignment %d was already returned", assignmentID)
		}

		unit, err := s.inventory.DeviceUnitTx(ctx, tx, a.DeviceID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.AdjustTx(ctx, tx, unit.ID, 1, MovementLoanerIn, actorID, fmt.Sprintf("repair %d", a.RepairID)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE loaner_assignments SET returned_at = NOW() WHERE id = $1", a.ID); err != nil {
			return fmt.Errorf("failed to close loaner assignment %d: %w", a.ID, err)
		}
		_, err = s.lifecycle.TransitionTx(ctx, tx, a.DeviceID, actorID, Transition{
			Guard:      requireStatus(nil, []CommercialStatus{CommIssuedAsLoaner}),
			Technical:  TechAwaitingInspection,
			Commercial: CommLoanerPool,
			Event:      ReturnedFromLoaner{RepairID: a.RepairID, AssignmentID: a.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.getAssignment(ctx, s.uow.Pool(), assignmentID)
}

func (s *repairService) getAssignment(ctx context.Context, q querier, id int) (*LoanerAssignment, error) {
	var a LoanerAssignment
	err := q.QueryRow(ctx, `
		SELECT id, repair_id, device_id, actor_id, issued_at, returned_at
		FROM loaner_assignments WHERE id = $1
	`, id).Scan(&a.ID, &a.RepairID, &a.DeviceID, &a.ActorID, &a.IssuedAt, &a.ReturnedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("loaner assignment %d not found", id)
		}
		return nil, fmt.Errorf("failed to fetch loaner assignment %d: %w", id, err)
	}
	return &a, nil
}

func (s *repairService) ListLoaners(ctx context.Context, repairID int) ([]LoanerAssignment, error) {
	rows, err := s.uow.Pool().Query(ctx, `
		SELECT id, repair_id, device_id, actor_id, issued_at, returned_at
		FROM loaner_assignments WHERE repair_id = $1 ORDER BY id
	`, repairID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loaner assignments: %w", err)
	}
	defer rows.Close()

	var out []LoanerAssignment
	for rows.Next() {
		var a LoanerAssignment
		if err := rows.Scan(&a.ID, &a.RepairID, &a.DeviceID, &a.ActorID, &a.IssuedAt, &a.ReturnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loaner assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
