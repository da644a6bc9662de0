package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each Update is one SERIALIZABLE
// transaction; each View reads a single REPEATABLE READ snapshot.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Update runs fn inside a transaction and commits only if fn succeeds.
func (s *LedgerStore) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ledgerTx{tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger tx: %w", err)
	}
	return nil
}

// View runs fn against a read-only snapshot.
func (s *LedgerStore) View(ctx context.Context, fn func(r domain.LedgerReader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger view: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(ledgerTx{tx})
}

// Accounts lists users with non-zero collateral or debt.
func (s *LedgerStore) Accounts(ctx context.Context) ([]common.Address, error) {
	const query = `
		SELECT user_address FROM collateral_positions WHERE amount > 0
		UNION
		SELECT user_address FROM debt_positions WHERE amount > 0
		ORDER BY 1`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, common.HexToAddress(addr))
	}
	return out, rows.Err()
}

// ledgerTx adapts a pgx transaction to domain.LedgerTx.
type ledgerTx struct {
	tx pgx.Tx
}

func (t ledgerTx) Collateral(ctx context.Context, user, asset common.Address) (*uint256.Int, error) {
	const query = `SELECT amount::text FROM collateral_positions WHERE user_address = $1 AND asset = $2`
	return scanAmount(t.tx.QueryRow(ctx, query, user.Hex(), asset.Hex()))
}

func (t ledgerTx) Debt(ctx context.Context, user common.Address) (*uint256.Int, error) {
	const query = `SELECT amount::text FROM debt_positions WHERE user_address = $1`
	return scanAmount(t.tx.QueryRow(ctx, query, user.Hex()))
}

func (t ledgerTx) SetCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	const query = `
		INSERT INTO collateral_positions (user_address, asset, amount, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (user_address, asset)
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`
	if _, err := t.tx.Exec(ctx, query, user.Hex(), asset.Hex(), amount.Dec()); err != nil {
		return fmt.Errorf("postgres: set collateral %s/%s: %w", user.Hex(), asset.Hex(), err)
	}
	return nil
}

func (t ledgerTx) SetDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	const query = `
		INSERT INTO debt_positions (user_address, amount, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (user_address)
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`
	if _, err := t.tx.Exec(ctx, query, user.Hex(), amount.Dec()); err != nil {
		return fmt.Errorf("postgres: set debt %s: %w", user.Hex(), err)
	}
	return nil
}

// scanAmount reads a NUMERIC rendered as text. No row reads as zero.
func scanAmount(row pgx.Row) (*uint256.Int, error) {
	var s string
	if err := row.Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("postgres: scan amount: %w", err)
	}
	return parseAmount(s)
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse amount %q: %w", s, err)
	}
	return v, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
