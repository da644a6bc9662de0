// Package memory implements the domain store interfaces in process. It backs
// the engine in tests and in deployments that run without PostgreSQL.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

type position struct {
	user  common.Address
	asset common.Address
}

// LedgerStore holds the collateral and debt ledgers in maps. Update stages
// writes in an overlay and applies them only when fn succeeds.
type LedgerStore struct {
	mu         sync.RWMutex
	collateral map[position]*uint256.Int
	debt       map[common.Address]*uint256.Int
}

// NewLedgerStore creates an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		collateral: make(map[position]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
}

// Update runs fn against a staged batch and commits it if fn returns nil.
func (s *LedgerStore) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &ledgerTx{
		base:       s,
		collateral: make(map[position]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.collateral {
		s.collateral[k] = v
	}
	for k, v := range tx.debt {
		s.debt[k] = v
	}
	return nil
}

// View runs fn against the committed ledgers.
func (s *LedgerStore) View(ctx context.Context, fn func(r domain.LedgerReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(committed{s})
}

// Accounts lists users with non-zero collateral or debt, sorted by address.
func (s *LedgerStore) Accounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[common.Address]struct{})
	for k, v := range s.collateral {
		if !v.IsZero() {
			seen[k.user] = struct{}{}
		}
	}
	for u, v := range s.debt {
		if !v.IsZero() {
			seen[u] = struct{}{}
		}
	}
	out := make([]common.Address, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

func (s *LedgerStore) readCollateral(user, asset common.Address) *uint256.Int {
	if v, ok := s.collateral[position{user, asset}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (s *LedgerStore) readDebt(user common.Address) *uint256.Int {
	if v, ok := s.debt[user]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// committed reads the store directly. The caller holds the read lock.
type committed struct{ s *LedgerStore }

func (c committed) Collateral(_ context.Context, user, asset common.Address) (*uint256.Int, error) {
	return c.s.readCollateral(user, asset), nil
}

func (c committed) Debt(_ context.Context, user common.Address) (*uint256.Int, error) {
	return c.s.readDebt(user), nil
}

// ledgerTx overlays staged writes on the committed ledgers.
type ledgerTx struct {
	base       *LedgerStore
	collateral map[position]*uint256.Int
	debt       map[common.Address]*uint256.Int
}

func (t *ledgerTx) Collateral(_ context.Context, user, asset common.Address) (*uint256.Int, error) {
	if v, ok := t.collateral[position{user, asset}]; ok {
		return v.Clone(), nil
	}
	return t.base.readCollateral(user, asset), nil
}

func (t *ledgerTx) Debt(_ context.Context, user common.Address) (*uint256.Int, error) {
	if v, ok := t.debt[user]; ok {
		return v.Clone(), nil
	}
	return t.base.readDebt(user), nil
}

func (t *ledgerTx) SetCollateral(_ context.Context, user, asset common.Address, amount *uint256.Int) error {
	t.collateral[position{user, asset}] = amount.Clone()
	return nil
}

func (t *ledgerTx) SetDebt(_ context.Context, user common.Address, amount *uint256.Int) error {
	t.debt[user] = amount.Clone()
	return nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
