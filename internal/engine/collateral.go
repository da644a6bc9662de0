package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// DepositCollateral moves amount of asset from user into custody and credits
// user's collateral position.
func (e *Engine) DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	if err := e.checkAsset(asset, amount); err != nil {
		return err
	}
	return e.atomically(ctx, "deposit_collateral", func(c *call) error {
		return e.deposit(c, user, asset, amount)
	})
}

// RedeemCollateral returns amount of asset from custody to user. It fails
// with a HealthFactorError if user's remaining collateral no longer covers
// their debt.
func (e *Engine) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	if err := e.checkAsset(asset, amount); err != nil {
		return err
	}
	return e.atomically(ctx, "redeem_collateral", func(c *call) error {
		if err := e.redeem(c, asset, amount, user, user); err != nil {
			return err
		}
		return e.requireHealthy(c.ctx, c.tx, user)
	})
}

// DepositCollateralAndMintDSC deposits collateral and mints against it in one
// call.
func (e *Engine) DepositCollateralAndMintDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error {
	if err := e.checkAsset(asset, amountCollateral); err != nil {
		return err
	}
	if err := positive(amountDSC); err != nil {
		return err
	}
	return e.atomically(ctx, "deposit_collateral_and_mint", func(c *call) error {
		if err := e.deposit(c, user, asset, amountCollateral); err != nil {
			return err
		}
		return e.mint(c, user, amountDSC)
	})
}

// RedeemCollateralForDSC burns amountDSC of user's debt and then redeems
// amountCollateral of asset in one call.
func (e *Engine) RedeemCollateralForDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error {
	if err := e.checkAsset(asset, amountCollateral); err != nil {
		return err
	}
	if err := positive(amountDSC); err != nil {
		return err
	}
	return e.atomically(ctx, "redeem_collateral_for_dsc", func(c *call) error {
		if err := e.burn(c, amountDSC, user, user); err != nil {
			return err
		}
		if err := e.redeem(c, asset, amountCollateral, user, user); err != nil {
			return err
		}
		return e.requireHealthy(c.ctx, c.tx, user)
	})
}

func (e *Engine) deposit(c *call, user, asset common.Address, amount *uint256.Int) error {
	held, err := c.tx.Collateral(c.ctx, user, asset)
	if err != nil {
		return fmt.Errorf("engine: read collateral: %w", err)
	}
	next, overflow := new(uint256.Int).AddOverflow(held, amount)
	if overflow {
		return domain.ErrArithmeticOverflow
	}
	if err := c.tx.SetCollateral(c.ctx, user, asset, next); err != nil {
		return fmt.Errorf("engine: write collateral: %w", err)
	}
	c.emit(domain.Event{
		Kind:   domain.EventCollateralDeposited,
		User:   user,
		Asset:  asset,
		Amount: amount.Clone(),
	})

	ok, err := e.collateral[asset].TransferFrom(c.ctx, e.custody, user, e.custody, amount)
	return transferResult(ok, err)
}

// redeem debits from's position and sends the collateral to to. Callers
// decide whose health factor to check afterwards.
func (e *Engine) redeem(c *call, asset common.Address, amount *uint256.Int, from, to common.Address) error {
	held, err := c.tx.Collateral(c.ctx, from, asset)
	if err != nil {
		return fmt.Errorf("engine: read collateral: %w", err)
	}
	if held.Lt(amount) {
		return fmt.Errorf("engine: redeem %s of %s from %s holding %s: %w",
			amount.Dec(), asset.Hex(), from.Hex(), held.Dec(), domain.ErrInsufficientCollateral)
	}
	if err := c.tx.SetCollateral(c.ctx, from, asset, new(uint256.Int).Sub(held, amount)); err != nil {
		return fmt.Errorf("engine: write collateral: %w", err)
	}
	c.emit(domain.Event{
		Kind:   domain.EventCollateralRedeemed,
		From:   from,
		To:     to,
		Asset:  asset,
		Amount: amount.Clone(),
	})

	ok, err := e.collateral[asset].Transfer(c.ctx, e.custody, to, amount)
	return transferResult(ok, err)
}

func (e *Engine) checkAsset(asset common.Address, amount *uint256.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if !e.oracle.Allowed(asset) {
		return fmt.Errorf("engine: %s: %w", asset.Hex(), domain.ErrNotAllowedToken)
	}
	return nil
}

func positive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return domain.ErrNeedMoreThanZero
	}
	return nil
}

func transferResult(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}
	if !ok {
		return domain.ErrTransferFailed
	}
	return nil
}
