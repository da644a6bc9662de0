package token

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Stablecoin is the pegged token. Only its owner mints and burns; ownership
// is handed to the engine's custody account at wiring time.
type Stablecoin struct {
	*Ledger
	owner common.Address
}

// NewStablecoin creates an 18-decimal pegged token owned by owner.
func NewStablecoin(symbol string, owner common.Address) *Stablecoin {
	return &Stablecoin{Ledger: NewLedger(symbol, 18), owner: owner}
}

// Owner returns the current owner.
func (s *Stablecoin) Owner() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// TransferOwnership hands minting rights to newOwner.
func (s *Stablecoin) TransferOwnership(_ context.Context, caller, newOwner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return fmt.Errorf("%s: transfer ownership: %w", s.symbol, domain.ErrNotOwner)
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%s: transfer ownership: %w", s.symbol, domain.ErrZeroAddress)
	}
	s.owner = newOwner
	return nil
}

// Mint creates amount tokens for to.
func (s *Stablecoin) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return false, fmt.Errorf("%s: mint: %w", s.symbol, domain.ErrNotOwner)
	}
	if to == (common.Address{}) {
		return false, fmt.Errorf("%s: mint: %w", s.symbol, domain.ErrZeroAddress)
	}
	if amount.IsZero() {
		return false, fmt.Errorf("%s: mint: %w", s.symbol, domain.ErrNeedMoreThanZero)
	}
	if err := s.mint(ctx, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Burn destroys amount tokens from the caller's own balance.
func (s *Stablecoin) Burn(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return fmt.Errorf("%s: burn: %w", s.symbol, domain.ErrNotOwner)
	}
	if amount.IsZero() {
		return fmt.Errorf("%s: burn: %w", s.symbol, domain.ErrNeedMoreThanZero)
	}
	return s.burn(ctx, caller, amount)
}

var (
	_ domain.StableToken = (*Stablecoin)(nil)
	_ domain.Journaled   = (*Stablecoin)(nil)
)
