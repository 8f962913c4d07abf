package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryService is the inventory ledger: current quantity and placement per
// stock unit plus an append-only movement log. Every quantity change checks
// the non-negativity rule under the unit's row lock, in the caller's transaction.
type InventoryService interface {
	// Standalone reads.
	GetUnit(ctx context.Context, unitID int) (*StockUnit, error)
	GetStockLevels(ctx context.Context) ([]StockLevel, error)
	ListMovements(ctx context.Context, unitID int) ([]StockMovement, error)

	// TX-scoped operations, used by the lifecycle, sale, procurement and repair services.

	// LockUnitTx loads a unit FOR UPDATE.
	LockUnitTx(ctx context.Context, tx pgx.Tx, unitID int) (*StockUnit, error)
	// DeviceUnitTx loads the unit of a device FOR UPDATE.
	DeviceUnitTx(ctx context.Context, tx pgx.Tx, deviceID int) (*StockUnit, error)
	// PlaceDeviceTx creates (or refills) the device's unit with quantity 1 at loc.
	PlaceDeviceTx(ctx context.Context, tx pgx.Tx, deviceID int, loc Location, actorID int) (*StockUnit, error)
	// ReceiveAccessoryTx adds qty to the accessory's unit at loc, creating it if needed.
	ReceiveAccessoryTx(ctx context.Context, tx pgx.Tx, accessoryID, qty int, loc Location, actorID int, reference string) (*StockUnit, error)
	// AdjustTx applies a signed delta. A result below zero is InsufficientInventory.
	AdjustTx(ctx context.Context, tx pgx.Tx, unitID, delta int, mt MovementType, actorID int, reference string) (*StockUnit, error)
	// MoveTx changes the placement of a device unit.
	MoveTx(ctx context.Context, tx pgx.Tx, unitID int, to Location, actorID int, reference string) (*StockUnit, error)
}

type inventoryService struct {
	pool *pgxpool.Pool
}

func NewInventoryService(pool *pgxpool.Pool) InventoryService {
	return &inventoryService{pool: pool}
}

const stockUnitColumns = "id, product_kind, product_id, quantity, location, created_at, updated_at"

func scanStockUnit(row pgx.Row) (*StockUnit, error) {
	var u StockUnit
	var kind, loc string
	var productID int
	if err := row.Scan(&u.ID, &kind, &productID, &u.Quantity, &loc, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	ref, err := NewProductRef(ProductKind(kind), productID)
	if err != nil {
		return nil, err
	}
	u.Product = ref
	u.Location = Location(loc)
	return &u, nil
}

// ── Standalone reads ──────────────────────────────────────────────────────────

func (s *inventoryService) GetUnit(ctx context.Context, unitID int) (*StockUnit, error) {
	u, err := scanStockUnit(s.pool.QueryRow(ctx, "SELECT "+stockUnitColumns+" FROM stock_units WHERE id = $1", unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("stock unit %d not found", unitID)
		}
		return nil, fmt.Errorf("failed to fetch stock unit %d: %w", unitID, err)
	}
	return u, nil
}

func (s *inventoryService) GetStockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT su.id, su.product_kind, su.product_id, su.location, su.quantity,
		       COALESCE(mn.name || ' ' || so.storage_gb || 'GB ' || c.name, a.name, '') AS product_name,
		       d.serial_number
		FROM stock_units su
		LEFT JOIN devices d         ON su.product_kind = 'DEVICE' AND d.id = su.product_id
		LEFT JOIN device_models dm  ON dm.id = d.model_id
		LEFT JOIN model_names mn    ON mn.id = dm.model_name_id
		LEFT JOIN storage_options so ON so.id = dm.storage_id
		LEFT JOIN colors c          ON c.id = dm.color_id
		LEFT JOIN accessories a     ON su.product_kind = 'ACCESSORY' AND a.id = su.product_id
		WHERE su.quantity > 0
		ORDER BY su.product_kind, su.location, su.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		var kind, loc string
		var productID int
		if err := rows.Scan(&sl.StockUnitID, &kind, &productID, &loc, &sl.Quantity, &sl.ProductName, &sl.SerialNumber); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		if sl.Product, err = NewProductRef(ProductKind(kind), productID); err != nil {
			return nil, err
		}
		sl.Location = Location(loc)
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *inventoryService) ListMovements(ctx context.Context, unitID int) ([]StockMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stock_unit_id, movement_type, quantity_delta, from_location, to_location,
		       actor_id, COALESCE(reference, ''), created_at
		FROM stock_movements
		WHERE stock_unit_id = $1
		ORDER BY id
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		var mt string
		var from, to *string
		if err := rows.Scan(&m.ID, &m.StockUnitID, &mt, &m.QuantityDelta, &from, &to, &m.ActorID, &m.Reference, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		m.Type = MovementType(mt)
		if from != nil {
			l := Location(*from)
			m.FromLocation = &l
		}
		if to != nil {
			l := Location(*to)
			m.ToLocation = &l
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *inventoryService) LockUnitTx(ctx context.Context, tx pgx.Tx, unitID int) (*StockUnit, error) {
	u, err := scanStockUnit(tx.QueryRow(ctx, "SELECT "+stockUnitColumns+" FROM stock_units WHERE id = $1 FOR UPDATE", unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("stock unit %d not found", unitID)
		}
		return nil, fmt.Errorf("failed to lock stock unit %d: %w", unitID, err)
	}
	return u, nil
}

func (s *inventoryService) DeviceUnitTx(ctx context.Context, tx pgx.Tx, deviceID int) (*StockUnit, error) {
	u, err := scanStockUnit(tx.QueryRow(ctx,
		"SELECT "+stockUnitColumns+" FROM stock_units WHERE product_kind = 'DEVICE' AND product_id = $1 FOR UPDATE",
		deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("device %d has no stock unit", deviceID)
		}
		return nil, fmt.Errorf("failed to lock stock unit of device %d: %w", deviceID, err)
	}
	return u, nil
}

func (s *inventoryService) PlaceDeviceTx(ctx context.Context, tx pgx.Tx, deviceID int, loc Location, actorID int) (*StockUnit, error) {
	if !loc.Valid() {
		return nil, validationf("unknown location %q", loc)
	}

	existing, err := s.DeviceUnitTx(ctx, tx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Quantity > 0 {
			return nil, invalidStatef("device %d is already on hand at %s", deviceID, existing.Location)
		}
		if existing.Location != loc {
			if existing, err = s.MoveTx(ctx, tx, existing.ID, loc, actorID, "placement"); err != nil {
				return nil, err
			}
		}
		return s.AdjustTx(ctx, tx, existing.ID, 1, MovementPlacement, actorID, fmt.Sprintf("device %d", deviceID))
	}

	u, err := scanStockUnit(tx.QueryRow(ctx, `
		INSERT INTO stock_units (product_kind, product_id, quantity, location)
		VALUES ('DEVICE', $1, 1, $2)
		RETURNING `+stockUnitColumns, deviceID, string(loc)))
	if err != nil {
		return nil, fmt.Errorf("failed to place device %d: %w", deviceID, err)
	}
	if err := s.recordMovement(ctx, tx, u.ID, MovementPlacement, 1, nil, &loc, actorID, fmt.Sprintf("device %d", deviceID)); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *inventoryService) ReceiveAccessoryTx(ctx context.Context, tx pgx.Tx, accessoryID, qty int, loc Location, actorID int, reference string) (*StockUnit, error) {
	if qty <= 0 {
		return nil, validationf("receive quantity must be positive, got %d", qty)
	}
	if !loc.Valid() {
		return nil, validationf("unknown location %q", loc)
	}

	// Create the unit if missing, then lock it like any other adjustment.
	var unitID int
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_units (product_kind, product_id, quantity, location)
		VALUES ('ACCESSORY', $1, 0, $2)
		ON CONFLICT (product_id, location) WHERE product_kind = 'ACCESSORY'
		DO UPDATE SET updated_at = stock_units.updated_at
		RETURNING id
	`, accessoryID, string(loc)).Scan(&unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert accessory %d stock unit: %w", accessoryID, err)
	}
	return s.AdjustTx(ctx, tx, unitID, qty, MovementReceipt, actorID, reference)
}

func (s *inventoryService) AdjustTx(ctx context.Context, tx pgx.Tx, unitID, delta int, mt MovementType, actorID int, reference string) (*StockUnit, error) {
	if delta == 0 {
		return nil, validationf("stock adjustment must be non-zero")
	}

	u, err := s.LockUnitTx(ctx, tx, unitID)
	if err != nil {
		return nil, err
	}
	next, err := applyDelta(u.ID, u.Quantity, delta)
	if err != nil {
		return nil, err
	}
	if u.Product.Kind() == ProductDevice && next > 1 {
		return nil, invalidStatef("device stock unit %d cannot hold more than one unit", unitID)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE stock_units SET quantity = $1, updated_at = NOW() WHERE id = $2",
		next, u.ID); err != nil {
		return nil, fmt.Errorf("failed to update stock unit %d: %w", u.ID, err)
	}
	if err := s.recordMovement(ctx, tx, u.ID, mt, delta, nil, nil, actorID, reference); err != nil {
		return nil, err
	}
	u.Quantity = next
	return u, nil
}

func (s *inventoryService) MoveTx(ctx context.Context, tx pgx.Tx, unitID int, to Location, actorID int, reference string) (*StockUnit, error) {
	if !to.Valid() {
		return nil, validationf("unknown location %q", to)
	}

	u, err := s.LockUnitTx(ctx, tx, unitID)
	if err != nil {
		return nil, err
	}
	if u.Product.Kind() != ProductDevice {
		return nil, validationf("stock unit %d holds accessories; only device units can be moved", unitID)
	}
	if u.Location == to {
		return nil, invalidStatef("stock unit %d is already at %s", unitID, to)
	}

	from := u.Location
	if _, err := tx.Exec(ctx,
		"UPDATE stock_units SET location = $1, updated_at = NOW() WHERE id = $2",
		string(to), u.ID); err != nil {
		return nil, fmt.Errorf("failed to move stock unit %d: %w", u.ID, err)
	}
	if err := s.recordMovement(ctx, tx, u.ID, MovementTransfer, 0, &from, &to, actorID, reference); err != nil {
		return nil, err
	}
	u.Location = to
	return u, nil
}

func (s *inventoryService) recordMovement(ctx context.Context, tx pgx.Tx, unitID int, mt MovementType, delta int,
	from, to *Location, actorID int, reference string) error {
	var fromS, toS *string
	if from != nil {
		v := string(*from)
		fromS = &v
	}
	if to != nil {
		v := string(*to)
		toS = &v
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (stock_unit_id, movement_type, quantity_delta, from_location, to_location, actor_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, unitID, string(mt), delta, fromS, toS, actorID, reference)
	if err != nil {
		return fmt.Errorf("failed to record stock movement for unit %d: %w", unitID, err)
	}
	return nil
}
