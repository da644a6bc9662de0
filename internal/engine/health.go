package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// CalculateHealthFactor returns collateralUSD * 50 / 100 * 1e18 / debt. A
// zero debt has no defined ratio and fails with domain.ErrNeedMoreThanZero.
func CalculateHealthFactor(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	if debt == nil || debt.IsZero() {
		return nil, domain.ErrNeedMoreThanZero
	}
	adjusted, err := mulDiv(orZero(collateralUSD), threshold, pctScale)
	if err != nil {
		return nil, err
	}
	return mulDiv(adjusted, unit, debt)
}

// collateralValue sums the USD value of every accepted asset user holds.
func (e *Engine) collateralValue(ctx context.Context, r domain.LedgerReader, user common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range e.oracle.Assets() {
		q, err := r.Collateral(ctx, user, asset)
		if err != nil {
			return nil, fmt.Errorf("engine: read collateral: %w", err)
		}
		if q.IsZero() {
			continue
		}
		price, err := e.oracle.Price(ctx, asset)
		if err != nil {
			return nil, err
		}
		v, err := usdValue(price, q)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, v); overflow {
			return nil, domain.ErrArithmeticOverflow
		}
	}
	return total, nil
}

// accountInfo reads debt and collateral value from r.
func (e *Engine) accountInfo(ctx context.Context, r domain.LedgerReader, user common.Address) (domain.AccountInfo, error) {
	debt, err := r.Debt(ctx, user)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("engine: read debt: %w", err)
	}
	value, err := e.collateralValue(ctx, r, user)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	return domain.AccountInfo{TotalDSCMinted: debt, CollateralValueUSD: value}, nil
}

// healthFactor computes the ratio for user from r. Zero debt fails with
// domain.ErrNeedMoreThanZero.
func (e *Engine) healthFactor(ctx context.Context, r domain.LedgerReader, user common.Address) (*uint256.Int, error) {
	info, err := e.accountInfo(ctx, r, user)
	if err != nil {
		return nil, err
	}
	return CalculateHealthFactor(info.TotalDSCMinted, info.CollateralValueUSD)
}

// requireHealthy enforces the solvency invariant for user: either no debt or
// a ratio of at least 1e18.
func (e *Engine) requireHealthy(ctx context.Context, r domain.LedgerReader, user common.Address) error {
	debt, err := r.Debt(ctx, user)
	if err != nil {
		return fmt.Errorf("engine: read debt: %w", err)
	}
	if debt.IsZero() {
		return nil
	}
	hf, err := e.healthFactor(ctx, r, user)
	if err != nil {
		return err
	}
	if hf.Lt(minHealth) {
		return &domain.HealthFactorError{User: user, HealthFactor: hf}
	}
	return nil
}
