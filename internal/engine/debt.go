package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// MintDSC adds amount to user's debt and mints the same amount of DSC to
// them, provided the new debt stays within the health factor.
func (e *Engine) MintDSC(ctx context.Context, user common.Address, amount *uint256.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	return e.atomically(ctx, "mint_dsc", func(c *call) error {
		return e.mint(c, user, amount)
	})
}

// BurnDSC pulls amount of DSC from user, destroys it and reduces their debt.
func (e *Engine) BurnDSC(ctx context.Context, user common.Address, amount *uint256.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	return e.atomically(ctx, "burn_dsc", func(c *call) error {
		if err := e.burn(c, amount, user, user); err != nil {
			return err
		}
		return e.requireHealthy(c.ctx, c.tx, user)
	})
}

func (e *Engine) mint(c *call, user common.Address, amount *uint256.Int) error {
	debt, err := c.tx.Debt(c.ctx, user)
	if err != nil {
		return fmt.Errorf("engine: read debt: %w", err)
	}
	next, overflow := new(uint256.Int).AddOverflow(debt, amount)
	if overflow {
		return domain.ErrArithmeticOverflow
	}
	if err := c.tx.SetDebt(c.ctx, user, next); err != nil {
		return fmt.Errorf("engine: write debt: %w", err)
	}
	if err := e.requireHealthy(c.ctx, c.tx, user); err != nil {
		return err
	}

	ok, err := e.dsc.Mint(c.ctx, e.custody, user, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMintFailed, err)
	}
	if !ok {
		return domain.ErrMintFailed
	}
	return nil
}

// burn reduces onBehalfOf's debt and destroys amount DSC taken from dscFrom.
func (e *Engine) burn(c *call, amount *uint256.Int, onBehalfOf, dscFrom common.Address) error {
	debt, err := c.tx.Debt(c.ctx, onBehalfOf)
	if err != nil {
		return fmt.Errorf("engine: read debt: %w", err)
	}
	if debt.Lt(amount) {
		return fmt.Errorf("engine: burn %s against debt %s of %s: %w",
			amount.Dec(), debt.Dec(), onBehalfOf.Hex(), domain.ErrInsufficientDebt)
	}
	if err := c.tx.SetDebt(c.ctx, onBehalfOf, new(uint256.Int).Sub(debt, amount)); err != nil {
		return fmt.Errorf("engine: write debt: %w", err)
	}

	ok, err := e.dsc.TransferFrom(c.ctx, e.custody, dscFrom, e.custody, amount)
	if err := transferResult(ok, err); err != nil {
		return err
	}
	if err := e.dsc.Burn(c.ctx, e.custody, amount); err != nil {
		return fmt.Errorf("engine: burn dsc: %w", err)
	}
	return nil
}
