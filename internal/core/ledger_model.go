package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerPosting is one cash movement to record. Amount is signed:
// positive for money in, negative for money out.
type LedgerPosting struct {
	OperationID    uuid.UUID
	CategoryCode   string
	AccountID      int
	Amount         decimal.Decimal
	CounterpartyID *int
	Description    string
	ActorID        int
}

type LedgerEntry struct {
	ID             int
	OperationID    uuid.UUID
	OccurredAt     time.Time
	CategoryCode   string
	AccountID      int
	Amount         decimal.Decimal
	CounterpartyID *int
	Description    string
	ActorID        int
}

// AccountBalance is always derived from ledger_entries, never stored.
type AccountBalance struct {
	AccountID int
	Name      string
	Balance   decimal.Decimal
}

// FinancialSnapshot is an immutable point-in-time view kept for reporting.
type FinancialSnapshot struct {
	ID             int
	TakenAt        time.Time
	CashBalance    decimal.Decimal
	InventoryValue decimal.Decimal
	Accounts       []AccountBalance
}
