package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/engine"
	"github.com/alanyoungcy/dscengine/internal/metrics"
	"github.com/alanyoungcy/dscengine/internal/notify"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AssetInfo describes a collateral token for display.
type AssetInfo struct {
	Symbol   string
	Decimals uint8
}

// AccountConfig tunes the engine lock.
type AccountConfig struct {
	// LockTTL bounds how long a crashed replica can hold the engine lock.
	LockTTL time.Duration
	// LockRetry is the pause between acquisition attempts.
	LockRetry time.Duration
	Assets    map[common.Address]AssetInfo
}

// AccountService is the entry point for every engine call made on behalf of
// a user. State-changing calls are serialised across replicas through the
// engine lock, measured, and written to the audit log.
type AccountService struct {
	eng      *engine.Engine
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier Notifier
	metrics  *metrics.EngineMetrics
	cfg      AccountConfig
	logger   *slog.Logger
}

// NewAccountService creates an AccountService. notifier may be nil.
func NewAccountService(
	eng *engine.Engine,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier Notifier,
	cfg AccountConfig,
	logger *slog.Logger,
) *AccountService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 20 * time.Millisecond
	}
	return &AccountService{
		eng:      eng,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics.Engine(),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// DepositCollateral moves amount of asset from user into custody.
func (s *AccountService) DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	detail := map[string]any{"user": user.Hex(), "asset": asset.Hex(), "amount": dec(amount)}
	return s.run(ctx, "deposit_collateral", detail, func(ctx context.Context) error {
		return s.eng.DepositCollateral(ctx, user, asset, amount)
	})
}

// RedeemCollateral returns amount of asset to user.
func (s *AccountService) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	detail := map[string]any{"user": user.Hex(), "asset": asset.Hex(), "amount": dec(amount)}
	return s.run(ctx, "redeem_collateral", detail, func(ctx context.Context) error {
		return s.eng.RedeemCollateral(ctx, user, asset, amount)
	})
}

// DepositCollateralAndMintDSC deposits and mints in one call.
func (s *AccountService) DepositCollateralAndMintDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error {
	detail := map[string]any{
		"user":              user.Hex(),
		"asset":             asset.Hex(),
		"amount_collateral": dec(amountCollateral),
		"amount_dsc":        dec(amountDSC),
	}
	return s.run(ctx, "deposit_collateral_and_mint_dsc", detail, func(ctx context.Context) error {
		return s.eng.DepositCollateralAndMintDSC(ctx, user, asset, amountCollateral, amountDSC)
	})
}

// RedeemCollateralForDSC burns and redeems in one call.
func (s *AccountService) RedeemCollateralForDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error {
	detail := map[string]any{
		"user":              user.Hex(),
		"asset":             asset.Hex(),
		"amount_collateral": dec(amountCollateral),
		"amount_dsc":        dec(amountDSC),
	}
	return s.run(ctx, "redeem_collateral_for_dsc", detail, func(ctx context.Context) error {
		return s.eng.RedeemCollateralForDSC(ctx, user, asset, amountCollateral, amountDSC)
	})
}

// MintDSC mints amount of DSC to user.
func (s *AccountService) MintDSC(ctx context.Context, user common.Address, amount *uint256.Int) error {
	detail := map[string]any{"user": user.Hex(), "amount": dec(amount)}
	return s.run(ctx, "mint_dsc", detail, func(ctx context.Context) error {
		return s.eng.MintDSC(ctx, user, amount)
	})
}

// BurnDSC repays amount of user's debt with user's DSC.
func (s *AccountService) BurnDSC(ctx context.Context, user common.Address, amount *uint256.Int) error {
	detail := map[string]any{"user": user.Hex(), "amount": dec(amount)}
	return s.run(ctx, "burn_dsc", detail, func(ctx context.Context) error {
		return s.eng.BurnDSC(ctx, user, amount)
	})
}

// Liquidate repays debtToCover of user's debt with liquidator's DSC and
// alerts operators on success.
func (s *AccountService) Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (domain.Liquidation, error) {
	var receipt domain.Liquidation
	detail := map[string]any{
		"liquidator":    liquidator.Hex(),
		"user":          user.Hex(),
		"asset":         asset.Hex(),
		"debt_to_cover": dec(debtToCover),
	}
	err := s.run(ctx, "liquidate", detail, func(ctx context.Context) error {
		var err error
		receipt, err = s.eng.Liquidate(ctx, liquidator, asset, user, debtToCover)
		if err == nil {
			detail["collateral_seized"] = dec(receipt.CollateralSeized)
			detail["bonus"] = dec(receipt.Bonus)
		}
		return err
	})
	if err != nil {
		return domain.Liquidation{}, err
	}

	s.metrics.Liquidated()
	s.logger.InfoContext(ctx, "account liquidated",
		slog.String("user", user.Hex()),
		slog.String("liquidator", liquidator.Hex()),
		slog.String("debt_covered", dec(receipt.DebtCovered)),
		slog.String("collateral_seized", dec(receipt.CollateralSeized)),
	)
	if s.notifier != nil {
		meta := s.asset(asset)
		title, msg := notify.LiquidationMessage(receipt, meta.Symbol, meta.Decimals)
		if nerr := s.notifier.Notify(ctx, notify.EventLiquidation, title, msg); nerr != nil {
			s.logger.WarnContext(ctx, "liquidation notification failed", slog.String("error", nerr.Error()))
		}
	}
	return receipt, nil
}

// run executes fn under the engine lock, then records metrics and an audit
// row whatever the outcome.
func (s *AccountService) run(ctx context.Context, op string, detail map[string]any, fn func(context.Context) error) error {
	start := time.Now()
	err := s.withLock(ctx, fn)
	s.metrics.Observe(op, time.Since(start), err)

	detail["outcome"] = domain.ErrorCode(err)
	if err != nil {
		detail["error"] = err.Error()
	}
	// The audit row is written even when the caller has gone away.
	if aerr := s.audit.Log(context.WithoutCancel(ctx), "engine."+op, detail); aerr != nil {
		s.logger.ErrorContext(ctx, "audit log failed",
			slog.String("op", op),
			slog.String("error", aerr.Error()),
		)
	}
	if err != nil {
		s.logger.DebugContext(ctx, "engine call rejected",
			slog.String("op", op),
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// withLock polls the engine lock until it is acquired or ctx ends.
func (s *AccountService) withLock(ctx context.Context, fn func(context.Context) error) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		unlock, err := s.locks.Acquire(ctx, domain.LockEngine, s.cfg.LockTTL)
		if err == nil {
			defer unlock()
			return fn(ctx)
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("account_service: acquire engine lock: %w", err)
		}
		timer.Reset(s.cfg.LockRetry)
		select {
		case <-ctx.Done():
			return fmt.Errorf("account_service: wait for engine lock: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *AccountService) asset(asset common.Address) AssetInfo {
	if meta, ok := s.cfg.Assets[asset]; ok {
		return meta
	}
	return AssetInfo{Symbol: asset.Hex(), Decimals: 18}
}

// Queries go straight to the engine; they take no lock.

// AccountInfo returns user's debt and collateral value.
func (s *AccountService) AccountInfo(ctx context.Context, user common.Address) (domain.AccountInfo, error) {
	return s.eng.AccountInfo(ctx, user)
}

// AccountHealth returns user's position and ratio, nil without debt.
func (s *AccountService) AccountHealth(ctx context.Context, user common.Address) (domain.AccountInfo, *uint256.Int, error) {
	return s.eng.AccountHealth(ctx, user)
}

// HealthFactor fails with domain.ErrNeedMoreThanZero when user has no debt.
func (s *AccountService) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	return s.eng.HealthFactor(ctx, user)
}

func (s *AccountService) CollateralDeposited(ctx context.Context, user, asset common.Address) (*uint256.Int, error) {
	return s.eng.CollateralDeposited(ctx, user, asset)
}

func (s *AccountService) CollateralBalances(ctx context.Context, user common.Address) ([]domain.CollateralBalance, error) {
	return s.eng.CollateralBalances(ctx, user)
}

func (s *AccountService) USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return s.eng.USDValue(ctx, asset, amount)
}

func (s *AccountService) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	return s.eng.TokenAmountFromUSD(ctx, asset, usd)
}

// Collateral lists the accepted assets with their display metadata.
func (s *AccountService) Collateral() []CollateralAsset {
	assets := s.eng.CollateralTokens()
	out := make([]CollateralAsset, 0, len(assets))
	for _, a := range assets {
		out = append(out, CollateralAsset{Asset: a, AssetInfo: s.asset(a)})
	}
	return out
}

// CollateralAsset is one accepted asset.
type CollateralAsset struct {
	Asset common.Address
	AssetInfo
}

// PriceFeed returns the feed for asset.
func (s *AccountService) PriceFeed(asset common.Address) (domain.PriceFeed, error) {
	return s.eng.PriceFeed(asset)
}

// Params returns the engine's constants.
func (s *AccountService) Params() engine.Params {
	return s.eng.Params()
}

// Custody returns the account holding collateral.
func (s *AccountService) Custody() common.Address {
	return s.eng.Custody()
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
