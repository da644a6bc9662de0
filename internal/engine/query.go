package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Queries read committed state and fresh oracle prices. None of them mutate.

// AccountCollateralValue returns the USD value of all of user's collateral.
func (e *Engine) AccountCollateralValue(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var value *uint256.Int
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		value, err = e.collateralValue(ctx, r, user)
		return err
	})
	return value, err
}

// AccountInfo returns user's debt and collateral value.
func (e *Engine) AccountInfo(ctx context.Context, user common.Address) (domain.AccountInfo, error) {
	var info domain.AccountInfo
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		info, err = e.accountInfo(ctx, r, user)
		return err
	})
	return info, err
}

// HealthFactor returns user's current ratio. It fails with
// domain.ErrNeedMoreThanZero when user has no debt.
func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var hf *uint256.Int
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		hf, err = e.healthFactor(ctx, r, user)
		return err
	})
	return hf, err
}

// CollateralDeposited returns how much of asset user has deposited.
func (e *Engine) CollateralDeposited(ctx context.Context, user, asset common.Address) (*uint256.Int, error) {
	var q *uint256.Int
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		q, err = r.Collateral(ctx, user, asset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("engine: collateral deposited: %w", err)
	}
	return q, nil
}

// CollateralBalances lists user's deposit of every accepted asset, in
// registration order.
func (e *Engine) CollateralBalances(ctx context.Context, user common.Address) ([]domain.CollateralBalance, error) {
	assets := e.oracle.Assets()
	out := make([]domain.CollateralBalance, 0, len(assets))
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		for _, asset := range assets {
			q, err := r.Collateral(ctx, user, asset)
			if err != nil {
				return err
			}
			out = append(out, domain.CollateralBalance{Asset: asset, Amount: q})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("engine: collateral balances: %w", err)
	}
	return out, nil
}

// DSCMinted returns user's debt.
func (e *Engine) DSCMinted(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var debt *uint256.Int
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		debt, err = r.Debt(ctx, user)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("engine: dsc minted: %w", err)
	}
	return debt, nil
}

// CollateralTokens returns the accepted assets in registration order.
func (e *Engine) CollateralTokens() []common.Address {
	return e.oracle.Assets()
}

// PriceFeed returns the feed registered for asset.
func (e *Engine) PriceFeed(asset common.Address) (domain.PriceFeed, error) {
	return e.oracle.Feed(asset)
}

// Accounts lists every user with collateral or debt.
func (e *Engine) Accounts(ctx context.Context) ([]common.Address, error) {
	users, err := e.store.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: accounts: %w", err)
	}
	return users, nil
}

// AccountHealth reads user's position and ratio from one snapshot. The ratio
// is nil when user has no debt.
func (e *Engine) AccountHealth(ctx context.Context, user common.Address) (domain.AccountInfo, *uint256.Int, error) {
	var (
		info domain.AccountInfo
		hf   *uint256.Int
	)
	err := e.store.View(ctx, func(r domain.LedgerReader) error {
		var err error
		if info, err = e.accountInfo(ctx, r, user); err != nil {
			return err
		}
		if info.TotalDSCMinted.IsZero() {
			return nil
		}
		hf, err = CalculateHealthFactor(info.TotalDSCMinted, info.CollateralValueUSD)
		return err
	})
	return info, hf, err
}
