// Package token implements in-process fungible tokens used as the engine's
// collateral and pegged-token collaborators. Mutations made inside a snapshot
// scope are journaled so a failed engine call can undo its own effects.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Ledger is a fungible token with balances, allowances and a total supply.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	decimals   uint8
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int

	journals  map[int][]func()
	nextScope int
}

// NewLedger creates an empty token.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		journals:   make(map[int][]func()),
	}
}

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the token precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// TotalSupply returns the current supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply.Clone()
}

// BalanceOf returns the balance held by owner.
func (l *Ledger) BalanceOf(owner common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(owner).Clone()
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender).Clone()
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.move(ctx, from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Approve lets spender move up to amount of owner's balance.
func (l *Ledger) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) (bool, error) {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return false, fmt.Errorf("%s: approve: %w", l.symbol, domain.ErrZeroAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowance(ctx, owner, spender, amount.Clone())
	return true, nil
}

// TransferFrom moves amount from from to to using spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowance(from, spender)
	if allowed.Lt(amount) {
		return false, fmt.Errorf("%s: transfer from %s: %w", l.symbol, from.Hex(), domain.ErrInsufficientAllowance)
	}
	if err := l.move(ctx, from, to, amount); err != nil {
		return false, err
	}
	l.setAllowance(ctx, from, spender, new(uint256.Int).Sub(allowed, amount))
	return true, nil
}

// Mint creates amount new tokens for to.
func (l *Ledger) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%s: mint: %w", l.symbol, domain.ErrZeroAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mint(ctx, to, amount)
}

func (l *Ledger) mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return fmt.Errorf("%s: mint: %w", l.symbol, domain.ErrArithmeticOverflow)
	}
	l.supply = supply
	l.credit(to, amount)
	l.record(ctx, func() {
		l.debit(to, amount)
		l.supply = saturatingSub(l.supply, amount)
	})
	return nil
}

func (l *Ledger) burn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if l.balance(from).Lt(amount) {
		return fmt.Errorf("%s: burn: %w", l.symbol, domain.ErrBurnAmountExceedsBalance)
	}
	l.debit(from, amount)
	l.supply = new(uint256.Int).Sub(l.supply, amount)
	l.record(ctx, func() {
		l.supply = new(uint256.Int).Add(l.supply, amount)
		l.credit(from, amount)
	})
	return nil
}

func (l *Ledger) move(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%s: transfer: %w", l.symbol, domain.ErrZeroAddress)
	}
	if l.balance(from).Lt(amount) {
		return fmt.Errorf("%s: transfer from %s: %w", l.symbol, from.Hex(), domain.ErrInsufficientBalance)
	}
	l.debit(from, amount)
	l.credit(to, amount)
	l.record(ctx, func() {
		l.debit(to, amount)
		l.credit(from, amount)
	})
	return nil
}

func (l *Ledger) balance(owner common.Address) *uint256.Int {
	if b, ok := l.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}

// Balances never exceed the supply, so credit cannot overflow.
func (l *Ledger) credit(owner common.Address, amount *uint256.Int) {
	l.balances[owner] = new(uint256.Int).Add(l.balance(owner), amount)
}

func (l *Ledger) debit(owner common.Address, amount *uint256.Int) {
	next := saturatingSub(l.balance(owner), amount)
	if next.IsZero() {
		delete(l.balances, owner)
		return
	}
	l.balances[owner] = next
}

// setAllowance overwrites an allowance. Its undo step restores the previous
// value only while the allowance still holds v; a later Approve wins.
func (l *Ledger) setAllowance(ctx context.Context, owner, spender common.Address, v *uint256.Int) {
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	prev, had := m[spender]
	m[spender] = v
	l.record(ctx, func() {
		if cur, ok := m[spender]; !ok || !cur.Eq(v) {
			return
		}
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
	})
}

func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

type scopeKey struct{ l *Ledger }

// record appends undo to the journal of the scope ctx was opened with.
// Writes made outside a scope, or under another scope, are never undone by
// it. Undo steps apply inverse deltas and leave other callers' writes in
// place.
func (l *Ledger) record(ctx context.Context, undo func()) {
	id, ok := ctx.Value(scopeKey{l}).(int)
	if !ok {
		return
	}
	if _, open := l.journals[id]; open {
		l.journals[id] = append(l.journals[id], undo)
	}
}

// Snapshot opens a revertible scope. Only writes made with the returned
// context are journaled under id.
func (l *Ledger) Snapshot(ctx context.Context) (context.Context, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextScope++
	id := l.nextScope
	l.journals[id] = []func(){}
	return context.WithValue(ctx, scopeKey{l}, id), id
}

// RevertToSnapshot undoes the writes journaled under id and closes the scope.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	steps := l.journals[id]
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
	delete(l.journals, id)
}

// Release closes the scope id and keeps its changes.
func (l *Ledger) Release(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.journals, id)
}

var (
	_ domain.Token     = (*Ledger)(nil)
	_ domain.Journaled = (*Ledger)(nil)
)
