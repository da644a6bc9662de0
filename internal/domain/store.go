package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerReader reads the collateral and debt ledgers. Missing entries read
// as zero.
type LedgerReader interface {
	Collateral(ctx context.Context, user, asset common.Address) (*uint256.Int, error)
	Debt(ctx context.Context, user common.Address) (*uint256.Int, error)
}

// LedgerTx is one atomic batch over both ledgers.
type LedgerTx interface {
	LedgerReader
	SetCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	SetDebt(ctx context.Context, user common.Address, amount *uint256.Int) error
}

// LedgerStore owns the collateral and debt ledgers. Update applies every
// write made by fn, or none of them when fn returns an error.
type LedgerStore interface {
	Update(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(r LedgerReader) error) error
	// Accounts lists every user holding collateral or debt.
	Accounts(ctx context.Context) ([]common.Address, error)
}

// EventSink receives committed engine events.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// EventStore persists committed engine events.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
