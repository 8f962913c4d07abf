package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerService is the cash-flow ledger. Entries are write-once; corrections
// are made by posting a reversing entry. Balances are always summed from entries.
type LedgerService interface {
	// PostTx records one entry inside the caller's unit of work.
	PostTx(ctx context.Context, tx pgx.Tx, p LedgerPosting) (*LedgerEntry, error)
	// Post records a standalone entry (manual income or expense).
	Post(ctx context.Context, p LedgerPosting) (*LedgerEntry, error)
	Reverse(ctx context.Context, entryID, actorID int, reason string) (*LedgerEntry, error)
	GetBalances(ctx context.Context) ([]AccountBalance, error)
	GetAccountBalance(ctx context.Context, accountID int) (decimal.Decimal, error)
	ListEntries(ctx context.Context, accountID int) ([]LedgerEntry, error)
	TakeSnapshot(ctx context.Context) (*FinancialSnapshot, error)
	ListSnapshots(ctx context.Context) ([]FinancialSnapshot, error)
}

type Ledger struct {
	pool       *pgxpool.Pool
	uow        *UnitOfWork
	categories CategoryResolver
}

func NewLedger(pool *pgxpool.Pool, categories CategoryResolver) *Ledger {
	return &Ledger{pool: pool, uow: NewUnitOfWork(pool), categories: categories}
}

func (l *Ledger) PostTx(ctx context.Context, tx pgx.Tx, p LedgerPosting) (*LedgerEntry, error) {
	return l.insert(ctx, tx, p, nil)
}

func (l *Ledger) insert(ctx context.Context, tx pgx.Tx, p LedgerPosting, reverses *int) (*LedgerEntry, error) {
	// Amounts are stored with two decimals; a sub-cent amount would land as 0.00.
	p.Amount = p.Amount.Round(2)
	if p.Amount.IsZero() {
		return nil, validationf("ledger amount must be at least 0.01 in magnitude")
	}

	categoryID, err := l.categories.ResolveCategory(ctx, tx, p.CategoryCode)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM cash_accounts WHERE id = $1)", p.AccountID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check cash account %d: %w", p.AccountID, err)
	}
	if !exists {
		return nil, notFoundf("cash account %d not found", p.AccountID)
	}

	if p.OperationID == uuid.Nil {
		p.OperationID = uuid.New()
	}

	e := LedgerEntry{
		OperationID:    p.OperationID,
		CategoryCode:   p.CategoryCode,
		AccountID:      p.AccountID,
		Amount:         p.Amount,
		CounterpartyID: p.CounterpartyID,
		Description:    p.Description,
		ActorID:        p.ActorID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (operation_id, category_id, account_id, amount, counterparty_id, description, actor_id, reverses_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, occurred_at
	`, e.OperationID, categoryID, e.AccountID, e.Amount, e.CounterpartyID, e.Description, e.ActorID, reverses).Scan(&e.ID, &e.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return &e, nil
}

func (l *Ledger) Post(ctx context.Context, p LedgerPosting) (*LedgerEntry, error) {
	var e *LedgerEntry
	err := l.uow.Do(ctx, func(tx pgx.Tx) error {
		var err error
		e, err = l.PostTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Reverse posts the negation of entryID under the same category and account.
func (l *Ledger) Reverse(ctx context.Context, entryID, actorID int, reason string) (*LedgerEntry, error) {
	var e *LedgerEntry
	err := l.uow.Do(ctx, func(tx pgx.Tx) error {
		var orig LedgerPosting
		var reversesID *int
		err := tx.QueryRow(ctx, `
			SELECT oc.code, le.account_id, le.amount, le.counterparty_id, le.description, le.reverses_id
			FROM ledger_entries le
			JOIN operation_categories oc ON oc.id = le.category_id
			WHERE le.id = $1
			FOR UPDATE OF le
		`, entryID).Scan(&orig.CategoryCode, &orig.AccountID, &orig.Amount, &orig.CounterpartyID, &orig.Description, &reversesID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("ledger entry %d not found", entryID)
			}
			return fmt.Errorf("failed to fetch ledger entry %d: %w", entryID, err)
		}
		if reversesID != nil {
			return invalidStatef("ledger entry %d is itself a reversal", entryID)
		}

		var count int
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM ledger_entries WHERE reverses_id = $1", entryID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check reversal status: %w", err)
		}
		if count > 0 {
			return invalidStatef("ledger entry %d is already reversed", entryID)
		}

		rev := LedgerPosting{
			CategoryCode:   orig.CategoryCode,
			AccountID:      orig.AccountID,
			Amount:         orig.Amount.Neg(),
			CounterpartyID: orig.CounterpartyID,
			Description:    fmt.Sprintf("Reversal of entry %d: %s", entryID, reason),
			ActorID:        actorID,
		}
		e, err = l.insert(ctx, tx, rev, &entryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Ledger) GetBalances(ctx context.Context) ([]AccountBalance, error) {
	return balances(ctx, l.pool)
}

func balances(ctx context.Context, q querier) ([]AccountBalance, error) {
	rows, err := q.Query(ctx, `
		SELECT ca.id, ca.name, COALESCE(SUM(le.amount), 0) AS balance
		FROM cash_accounts ca
		LEFT JOIN ledger_entries le ON le.account_id = ca.id
		GROUP BY ca.id, ca.name
		ORDER BY ca.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Name, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (l *Ledger) GetAccountBalance(ctx context.Context, accountID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(le.amount), 0)
		FROM cash_accounts ca
		LEFT JOIN ledger_entries le ON le.account_id = ca.id
		WHERE ca.id = $1
		GROUP BY ca.id
	`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, notFoundf("cash account %d not found", accountID)
		}
		return decimal.Zero, fmt.Errorf("failed to sum account %d: %w", accountID, err)
	}
	return balance, nil
}

func (l *Ledger) ListEntries(ctx context.Context, accountID int) ([]LedgerEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT le.id, le.operation_id, le.occurred_at, oc.code, le.account_id, le.amount,
		       le.counterparty_id, le.description, le.actor_id
		FROM ledger_entries le
		JOIN operation_categories oc ON oc.id = le.category_id
		WHERE le.account_id = $1
		ORDER BY le.id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.OperationID, &e.OccurredAt, &e.CategoryCode, &e.AccountID, &e.Amount,
			&e.CounterpartyID, &e.Description, &e.ActorID); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TakeSnapshot stores the current cash position and the purchase value of
// everything still on hand. Snapshots are never updated afterwards.
func (l *Ledger) TakeSnapshot(ctx context.Context) (*FinancialSnapshot, error) {
	var snap FinancialSnapshot
	err := l.uow.Do(ctx, func(tx pgx.Tx) error {
		accounts, err := balances(ctx, tx)
		if err != nil {
			return err
		}
		snap = FinancialSnapshot{Accounts: accounts, CashBalance: decimal.Zero}
		for _, a := range accounts {
			snap.CashBalance = snap.CashBalance.Add(a.Balance)
		}

		err = tx.QueryRow(ctx, `
			SELECT
			  COALESCE((SELECT SUM(d.purchase_price)
			            FROM stock_units su JOIN devices d ON d.id = su.product_id
			            WHERE su.product_kind = 'DEVICE' AND su.quantity > 0), 0)
			+ COALESCE((SELECT SUM(su.quantity * a.purchase_price)
			            FROM stock_units su JOIN accessories a ON a.id = su.product_id
			            WHERE su.product_kind = 'ACCESSORY'), 0)
		`).Scan(&snap.InventoryValue)
		if err != nil {
			return fmt.Errorf("failed to value inventory: %w", err)
		}

		details, err := json.Marshal(accounts)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot details: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO financial_snapshots (cash_balance, inventory_value, details)
			VALUES ($1, $2, $3)
			RETURNING id, taken_at
		`, snap.CashBalance, snap.InventoryValue, details).Scan(&snap.ID, &snap.TakenAt)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (l *Ledger) ListSnapshots(ctx context.Context) ([]FinancialSnapshot, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, taken_at, cash_balance, inventory_value, details
		FROM financial_snapshots
		ORDER BY taken_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []FinancialSnapshot
	for rows.Next() {
		var s FinancialSnapshot
		var details []byte
		if err := rows.Scan(&s.ID, &s.TakenAt, &s.CashBalance, &s.InventoryValue, &details); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal(details, &s.Accounts); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %d: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
