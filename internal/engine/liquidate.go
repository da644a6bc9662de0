package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Liquidate lets liquidator repay debtToCover of user's debt and seize the
// equivalent amount of asset plus a 10% bonus. user must start below the
// minimum health factor and end at or above it.
//
// The solvency check made right after the seizure runs against the
// liquidator, who received the collateral, not against user. Both health
// factor reads on user fail with domain.ErrNeedMoreThanZero when user has no
// debt, so a debt-free user cannot be liquidated and a liquidation cannot
// repay all of user's debt.
func (e *Engine) Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (domain.Liquidation, error) {
	if err := e.checkAsset(asset, debtToCover); err != nil {
		return domain.Liquidation{}, err
	}

	var receipt domain.Liquidation
	err := e.atomically(ctx, "liquidate", func(c *call) error {
		starting, err := e.healthFactor(c.ctx, c.tx, user)
		if err != nil {
			return err
		}
		if !starting.Lt(minHealth) {
			return fmt.Errorf("engine: %s at %s: %w", user.Hex(), starting.Dec(), domain.ErrHealthFactorOk)
		}

		price, err := e.oracle.Price(c.ctx, asset)
		if err != nil {
			return err
		}
		covered, err := tokenAmountFromUSD(price, debtToCover)
		if err != nil {
			return err
		}
		bonus, err := mulDiv(covered, bonusRatio, pctScale)
		if err != nil {
			return err
		}
		seized, overflow := new(uint256.Int).AddOverflow(covered, bonus)
		if overflow {
			return domain.ErrArithmeticOverflow
		}

		if err := e.redeem(c, asset, seized, user, liquidator); err != nil {
			return err
		}
		if err := e.requireHealthy(c.ctx, c.tx, liquidator); err != nil {
			return err
		}

		if err := e.burn(c, debtToCover, user, liquidator); err != nil {
			return err
		}

		ending, err := e.healthFactor(c.ctx, c.tx, user)
		if err != nil {
			return err
		}
		if ending.Lt(minHealth) {
			return fmt.Errorf("engine: %s ends at %s: %w", user.Hex(), ending.Dec(), domain.ErrHealthFactorNotImproved)
		}

		if err := e.requireHealthy(c.ctx, c.tx, liquidator); err != nil {
			return err
		}

		receipt = domain.Liquidation{
			User:                 user,
			Liquidator:           liquidator,
			Asset:                asset,
			DebtCovered:          debtToCover.Clone(),
			CollateralSeized:     seized,
			Bonus:                bonus,
			StartingHealthFactor: starting,
			EndingHealthFactor:   ending,
		}
		return nil
	})
	if err != nil {
		return domain.Liquidation{}, err
	}
	return receipt, nil
}
