package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LifecycleService owns both status axes of a device. It is the only writer of
// technical_status and commercial_status; other services change them through TransitionTx.
type LifecycleService interface {
	GetDevice(ctx context.Context, deviceID int) (*Device, error)
	FindBySerial(ctx context.Context, serial string) (*Device, error)
	ListDevices(ctx context.Context, tech TechStatus, comm CommercialStatus) ([]Device, error)
	History(ctx context.Context, deviceID int) ([]AuditEvent, error)

	SubmitInspection(ctx context.Context, actorID int, in InspectionInput) (*TransitionResult, error)
	SubmitBatteryTest(ctx context.Context, actorID int, in BatteryTestInput) (*TransitionResult, error)
	ConfirmPackaging(ctx context.Context, actorID int, deviceIDs []int) ([]TransitionResult, error)
	AcceptIntoWarehouse(ctx context.Context, actorID int, deviceIDs []int, loc Location) ([]TransitionResult, error)
	MoveDevice(ctx context.Context, actorID, deviceID int, to Location) (*TransitionResult, error)
	SendToSupplier(ctx context.Context, actorID int, deviceIDs []int, note string) ([]TransitionResult, error)
	ReturnFromSupplier(ctx context.Context, actorID, deviceID int) (*TransitionResult, error)
	AddToLoanerPool(ctx context.Context, actorID, deviceID int) (*TransitionResult, error)
	SetPurchasePrice(ctx context.Context, deviceID int, price decimal.Decimal) error

	// TX-scoped operations.
	LockDeviceTx(ctx context.Context, tx pgx.Tx, deviceID int) (*Device, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, deviceID, actorID int, t Transition) (*TransitionResult, error)
	CreateDeviceTx(ctx context.Context, tx pgx.Tx, nd NewDevice) (*Device, error)
}

type lifecycleService struct {
	uow       *UnitOfWork
	inventory InventoryService
	audit     AuditTrail
	policy    InspectionPolicy
}

func NewLifecycleService(pool *pgxpool.Pool, inventory InventoryService, audit AuditTrail, policy InspectionPolicy) LifecycleService {
	return &lifecycleService{uow: NewUnitOfWork(pool), inventory: inventory, audit: audit, policy: policy}
}

const deviceSelect = `
	SELECT d.id, d.serial_number, d.model_id, mn.name, so.storage_gb, c.name, d.model_number,
	       d.technical_status, d.commercial_status, d.purchase_price, d.supplier_order_id,
	       d.added_at, d.accepted_at
	FROM devices d
	JOIN device_models dm    ON dm.id = d.model_id
	JOIN model_names mn      ON mn.id = dm.model_name_id
	JOIN storage_options so  ON so.id = dm.storage_id
	JOIN colors c            ON c.id = dm.color_id`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	var tech, comm string
	if err := row.Scan(&d.ID, &d.SerialNumber, &d.ModelID, &d.ModelName, &d.StorageGB, &d.Color, &d.ModelNumber,
		&tech, &comm, &d.PurchasePrice, &d.SupplierOrderID, &d.AddedAt, &d.AcceptedAt); err != nil {
		return nil, err
	}
	d.TechnicalStatus = TechStatus(tech)
	d.CommercialStatus = CommercialStatus(comm)
	return &d, nil
}

func fetchDevice(ctx context.Context, q querier, deviceID int, forUpdate bool) (*Device, error) {
	sql := deviceSelect + " WHERE d.id = $1"
	if forUpdate {
		sql += " FOR UPDATE OF d"
	}
	d, err := scanDevice(q.QueryRow(ctx, sql, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("device %d not found", deviceID)
		}
		return nil, fmt.Errorf("failed to fetch device %d: %w", deviceID, err)
	}
	return d, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *lifecycleService) GetDevice(ctx context.Context, deviceID int) (*Device, error) {
	return fetchDevice(ctx, s.uow.Pool(), deviceID, false)
}

func (s *lifecycleService) FindBySerial(ctx context.Context, serial string) (*Device, error) {
	d, err := scanDevice(s.uow.Pool().QueryRow(ctx, deviceSelect+" WHERE d.serial_number = $1", strings.TrimSpace(serial)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("no device with serial number %q", serial)
		}
		return nil, fmt.Errorf("failed to fetch device by serial: %w", err)
	}
	return d, nil
}

// ListDevices filters by status; an empty status matches every value on that axis.
func (s *lifecycleService) ListDevices(ctx context.Context, tech TechStatus, comm CommercialStatus) ([]Device, error) {
	rows, err := s.uow.Pool().Query(ctx, deviceSelect+`
		WHERE ($1 = '' OR d.technical_status = $1)
		  AND ($2 = '' OR d.commercial_status = $2)
		ORDER BY d.id`, string(tech), string(comm))
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *lifecycleService) History(ctx context.Context, deviceID int) ([]AuditEvent, error) {
	if _, err := s.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, deviceID)
}

// ── TX-scoped core ────────────────────────────────────────────────────────────

func (s *lifecycleService) LockDeviceTx(ctx context.Context, tx pgx.Tx, deviceID int) (*Device, error) {
	return fetchDevice(ctx, tx, deviceID, true)
}

// TransitionTx locks the device, runs the guard, validates the resulting status
// pair, persists it and appends exactly one audit event.
func (s *lifecycleService) TransitionTx(ctx context.Context, tx pgx.Tx, deviceID, actorID int, t Transition) (*TransitionResult, error) {
	if t.Event == nil {
		return nil, fmt.Errorf("transition of device %d has no audit event", deviceID)
	}

	d, err := s.LockDeviceTx(ctx, tx, deviceID)
	if err != nil {
		return nil, err
	}
	if t.Guard != nil {
		if err := t.Guard(*d); err != nil {
			return nil, err
		}
	}

	tech, comm := d.TechnicalStatus, d.CommercialStatus
	if t.Technical != "" {
		tech = t.Technical
	}
	if t.Commercial != "" {
		comm = t.Commercial
	}
	if err := ValidateStatusPair(tech, comm); err != nil {
		return nil, err
	}

	if tech != d.TechnicalStatus || comm != d.CommercialStatus {
		if _, err := tx.Exec(ctx,
			"UPDATE devices SET technical_status = $1, commercial_status = $2 WHERE id = $3",
			string(tech), string(comm), deviceID); err != nil {
			return nil, fmt.Errorf("failed to update status of device %d: %w", deviceID, err)
		}
		d.TechnicalStatus, d.CommercialStatus = tech, comm
	}

	ev, err := s.audit.AppendTx(ctx, tx, deviceID, actorID, t.Event)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Device: *d, Event: *ev}, nil
}

func (s *lifecycleService) CreateDeviceTx(ctx context.Context, tx pgx.Tx, nd NewDevice) (*Device, error) {
	if nd.PurchasePrice.IsNegative() {
		return nil, validationf("purchase price cannot be negative, got %s", nd.PurchasePrice)
	}
	if nd.SerialNumber != nil {
		serial := strings.TrimSpace(*nd.SerialNumber)
		if serial == "" {
			nd.SerialNumber = nil
		} else {
			nd.SerialNumber = &serial
			if err := ensureSerialFree(ctx, tx, serial, 0); err != nil {
				return nil, err
			}
		}
	}

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM device_models WHERE id = $1)", nd.ModelID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check device model %d: %w", nd.ModelID, err)
	}
	if !exists {
		return nil, notFoundf("device model %d not found", nd.ModelID)
	}

	var id int
	err := tx.QueryRow(ctx, `
		INSERT INTO devices (serial_number, model_id, technical_status, commercial_status, purchase_price, supplier_order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, nd.SerialNumber, nd.ModelID, string(TechAwaitingInspection), string(CommNotReady), nd.PurchasePrice, nd.SupplierOrderID).Scan(&id)
	if err != nil {
		return nil, mapUniqueViolation(err, "serial number already registered")
	}
	return fetchDevice(ctx, tx, id, false)
}

func ensureSerialFree(ctx context.Context, q querier, serial string, exceptDeviceID int) error {
	var taken bool
	if err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM devices WHERE serial_number = $1 AND id <> $2)",
		serial, exceptDeviceID).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check serial number: %w", err)
	}
	if taken {
		return validationf("serial number %q is already assigned to another device", serial)
	}
	return nil
}

// mapUniqueViolation turns a concurrent duplicate into a ValidationError.
func mapUniqueViolation(err error, msg string) error {
	if isUniqueViolation(err) {
		return validationf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// ── Quality control ───────────────────────────────────────────────────────────

func (s *lifecycleService) SubmitInspection(ctx context.Context, actorID int, in InspectionInput) (*TransitionResult, error) {
	serial := strings.TrimSpace(in.SerialNumber)
	if serial == "" {
		return nil, validationf("serial number is required")
	}
	if len(in.Results) == 0 {
		return nil, validationf("inspection must contain at least one checklist result")
	}

	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.LockDeviceTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus([]TechStatus{TechAwaitingInspection}, nil)(*d); err != nil {
			return err
		}
		if err := ensureSerialFree(ctx, tx, serial, d.ID); err != nil {
			return err
		}

		outcomes, err := resolveChecklist(ctx, tx, in.Results)
		if err != nil {
			return err
		}

		var inspectionID int
		if err := tx.QueryRow(ctx,
			"INSERT INTO inspections (device_id, actor_id) VALUES ($1, $2) RETURNING id",
			d.ID, actorID).Scan(&inspectionID); err != nil {
			return fmt.Errorf("failed to insert inspection: %w", err)
		}
		var failed []string
		for _, o := range outcomes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO inspection_results (inspection_id, checklist_item_id, passed, note)
				VALUES ($1, $2, $3, NULLIF($4, ''))
			`, inspectionID, o.ItemID, o.Passed, o.Note); err != nil {
				return fmt.Errorf("failed to insert inspection result: %w", err)
			}
			if !o.Passed {
				failed = append(failed, o.ItemName)
			}
		}

		var modelNumber *string
		if mn := strings.TrimSpace(in.ModelNumber); mn != "" {
			modelNumber = &mn
		}
		if _, err := tx.Exec(ctx,
			"UPDATE devices SET serial_number = $1, model_number = COALESCE($2, model_number) WHERE id = $3",
			serial, modelNumber, d.ID); err != nil {
			return mapUniqueViolation(err, "serial number already registered")
		}

		t := Transition{}
		switch {
		case len(failed) > 0:
			t.Technical = TechDefective
			t.Event = DefectFound{SerialNumber: serial, FailedItems: failed, Results: outcomes}
		case s.policy.SkipsBatteryTest(d.ModelName):
			t.Technical = TechPackaging
			t.Event = InspectionPassed{SerialNumber: serial, SkippedBatteryTest: true, Results: outcomes}
		default:
			t.Technical = TechBatteryTest
			t.Event = InspectionPassed{SerialNumber: serial, Results: outcomes}
		}
		res, err = s.TransitionTx(ctx, tx, d.ID, actorID, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func resolveChecklist(ctx context.Context, tx pgx.Tx, results []ChecklistResult) ([]ChecklistOutcome, error) {
	ids := make([]int32, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, r := range results {
		if seen[r.ItemID] {
			return nil, validationf("checklist item %d reported twice", r.ItemID)
		}
		seen[r.ItemID] = true
		ids = append(ids, int32(r.ItemID))
	}

	rows, err := tx.Query(ctx, "SELECT id, name FROM checklist_items WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load checklist items: %w", err)
	}
	names := make(map[int]string, len(ids))
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		names[id] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load checklist items: %w", err)
	}

	out := make([]ChecklistOutcome, 0, len(results))
	for _, r := range results {
		name, ok := names[r.ItemID]
		if !ok {
			return nil, notFoundf("checklist item %d not found", r.ItemID)
		}
		out = append(out, ChecklistOutcome{ItemID: r.ItemID, ItemName: name, Passed: r.Passed, Note: strings.TrimSpace(r.Note)})
	}
	return out, nil
}

func (s *lifecycleService) SubmitBatteryTest(ctx context.Context, actorID int, in BatteryTestInput) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.LockDeviceTx(ctx, tx, in.DeviceID)
		if err != nil {
			return err
		}
		if err := requireStatus([]TechStatus{TechBatteryTest}, nil)(*d); err != nil {
			return err
		}

		verdict, err := s.policy.EvaluateBattery(d.ModelName, in.StartedAt, in.EndedAt, in.StartPercent, in.EndPercent)
		if err != nil {
			return err
		}

		var inspectionID int
		err = tx.QueryRow(ctx,
			"SELECT id FROM inspections WHERE device_id = $1 ORDER BY id DESC LIMIT 1", d.ID).Scan(&inspectionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return invalidStatef("device %d has no inspection to attach a battery test to", d.ID)
			}
			return fmt.Errorf("failed to find inspection of device %d: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO battery_tests (inspection_id, started_at, ended_at, start_percent, end_percent, drain_per_hour, threshold, passed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, inspectionID, in.StartedAt, in.EndedAt, in.StartPercent, in.EndPercent,
			verdict.StoredDrain(), verdict.Threshold, verdict.Passed); err != nil {
			return fmt.Errorf("failed to insert battery test: %w", err)
		}

		t := Transition{
			Technical: TechPackaging,
			Event: BatteryTestRecorded{
				DrainPerHour: verdict.StoredDrain(),
				Threshold:    verdict.Threshold,
				MatchedKey:   verdict.MatchedKey,
				Passed:       verdict.Passed,
			},
		}
		if !verdict.Passed {
			t.Technical = TechDefective
		}
		res, err = s.TransitionTx(ctx, tx, d.ID, actorID, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConfirmPackaging is all-or-nothing: one device in the wrong state rejects the batch.
func (s *lifecycleService) ConfirmPackaging(ctx context.Context, actorID int, deviceIDs []int) ([]TransitionResult, error) {
	return s.batch(ctx, deviceIDs, func(tx pgx.Tx, id int) (*TransitionResult, error) {
		return s.TransitionTx(ctx, tx, id, actorID, Transition{
			Guard:     requireStatus([]TechStatus{TechPackaging}, nil),
			Technical: TechPackaged,
			Event:     Packaged{},
		})
	})
}

func (s *lifecycleService) AcceptIntoWarehouse(ctx context.Context, actorID int, deviceIDs []int, loc Location) ([]TransitionResult, error) {
	if loc == "" {
		loc = LocationWarehouse
	}
	if loc != LocationWarehouse && loc != LocationShowcase {
		return nil, validationf("devices can only be accepted into %s or %s, got %q", LocationWarehouse, LocationShowcase, loc)
	}
	return s.batch(ctx, deviceIDs, func(tx pgx.Tx, id int) (*TransitionResult, error) {
		d, err := s.LockDeviceTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := requireStatus([]TechStatus{TechPackaged}, []CommercialStatus{CommNotReady})(*d); err != nil {
			return nil, err
		}
		unit, err := s.inventory.PlaceDeviceTx(ctx, tx, id, loc, actorID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "UPDATE devices SET accepted_at = NOW() WHERE id = $1", id); err != nil {
			return nil, fmt.Errorf("failed to mark device %d accepted: %w", id, err)
		}
		return s.TransitionTx(ctx, tx, id, actorID, Transition{
			Commercial: CommInStock,
			Event:      AcceptedToWarehouse{Location: loc, StockUnitID: unit.ID},
		})
	})
}

// batch runs fn for every id inside one unit of work, in ascending id order.
func (s *lifecycleService) batch(ctx context.Context, deviceIDs []int, fn func(tx pgx.Tx, id int) (*TransitionResult, error)) ([]TransitionResult, error) {
	if len(deviceIDs) == 0 {
		return nil, validationf("at least one device id is required")
	}
	ids := append([]int(nil), deviceIDs...)
	sort.Ints(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, validationf("device %d listed twice", ids[i])
		}
	}

	var results []TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		for _, id := range ids {
			r, err := fn(tx, id)
			if err != nil {
				return err
			}
			results = append(results, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ── Placement and custody ─────────────────────────────────────────────────────

func (s *lifecycleService) MoveDevice(ctx context.Context, actorID, deviceID int, to Location) (*TransitionResult, error) {
	if to != LocationWarehouse && to != LocationShowcase {
		return nil, validationf("devices move between %s and %s only, got %q", LocationWarehouse, LocationShowcase, to)
	}
	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.LockDeviceTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if err := requireStatus(nil, []CommercialStatus{CommInStock})(*d); err != nil {
			return err
		}
		unit, err := s.inventory.DeviceUnitTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		from := unit.Location
		if _, err := s.inventory.MoveTx(ctx, tx, unit.ID, to, actorID, fmt.Sprintf("device %d", deviceID)); err != nil {
			return err
		}
		res, err = s.TransitionTx(ctx, tx, deviceID, actorID, Transition{Event: Moved{From: from, To: to}})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SendToSupplier hands defective devices back to the supplier. Devices that
// are physically on hand leave the inventory ledger.
func (s *lifecycleService) SendToSupplier(ctx context.Context, actorID int, deviceIDs []int, note string) ([]TransitionResult, error) {
	return s.batch(ctx, deviceIDs, func(tx pgx.Tx, id int) (*TransitionResult, error) {
		d, err := s.LockDeviceTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := requireStatus([]TechStatus{TechDefective}, []CommercialStatus{CommNotReady, CommReturned})(*d); err != nil {
			return nil, err
		}
		unit, err := s.inventory.DeviceUnitTx(ctx, tx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if unit != nil && unit.Quantity > 0 {
			if _, err := s.inventory.AdjustTx(ctx, tx, unit.ID, -1, MovementSupplier, actorID, fmt.Sprintf("device %d", id)); err != nil {
				return nil, err
			}
		}
		return s.TransitionTx(ctx, tx, id, actorID, Transition{
			Commercial: CommSentToSupplier,
			Event:      SentToSupplier{Note: strings.TrimSpace(note)},
		})
	})
}

func (s *lifecycleService) ReturnFromSupplier(ctx context.Context, actorID, deviceID int) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		var err error
		res, err = s.TransitionTx(ctx, tx, deviceID, actorID, Transition{
			Guard:      requireStatus(nil, []CommercialStatus{CommSentToSupplier}),
			Technical:  TechAwaitingInspection,
			Commercial: CommNotReady,
			Event:      ReturnedFromSupplier{},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AddToLoanerPool takes an in-stock device off sale and parks it in the loaner pool.
func (s *lifecycleService) AddToLoanerPool(ctx context.Context, actorID, deviceID int) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.LockDeviceTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if err := requireStatus([]TechStatus{TechPackaged}, []CommercialStatus{CommInStock})(*d); err != nil {
			return err
		}
		unit, err := s.inventory.DeviceUnitTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if unit.Quantity == 0 {
			return invalidStatef("device %d is reserved by a pending sale", deviceID)
		}
		if _, err := s.inventory.MoveTx(ctx, tx, unit.ID, LocationLoanerPool, actorID, fmt.Sprintf("device %d", deviceID)); err != nil {
			return err
		}
		res, err = s.TransitionTx(ctx, tx, deviceID, actorID, Transition{
			Commercial: CommLoanerPool,
			Event:      AddedToLoanerPool{},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SetPurchasePrice corrects the price of a device that has not been accepted
// into stock yet. From acceptance on the price is fixed.
func (s *lifecycleService) SetPurchasePrice(ctx context.Context, deviceID int, price decimal.Decimal) error {
	if price.IsNegative() {
		return validationf("purchase price cannot be negative, got %s", price)
	}
	return s.uow.Do(ctx, func(tx pgx.Tx) error {
		d, err := s.LockDeviceTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if d.AcceptedAt != nil {
			return invalidStatef("device %d was accepted on %s; its purchase price is fixed", deviceID, d.AcceptedAt.Format("2006-01-02"))
		}
		if _, err := tx.Exec(ctx, "UPDATE devices SET purchase_price = $1 WHERE id = $2", price, deviceID); err != nil {
			return fmt.Errorf("failed to update purchase price of device %d: %w", deviceID, err)
		}
		return nil
	})
}
