package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Protocol constants. Feed answers carry 8 decimals; everything else is
// 18-decimal fixed point.
const (
	additionalFeedPrecision = 1e10
	precision               = 1e18
	liquidationThreshold    = 50
	liquidationBonus        = 10
	liquidationPrecision    = 100
	minHealthFactor         = 1e18
)

var (
	feedScale  = uint256.NewInt(additionalFeedPrecision)
	unit       = uint256.NewInt(precision)
	threshold  = uint256.NewInt(liquidationThreshold)
	bonusRatio = uint256.NewInt(liquidationBonus)
	pctScale   = uint256.NewInt(liquidationPrecision)
	minHealth  = uint256.NewInt(minHealthFactor)
)

// Params lists the engine's fixed parameters.
type Params struct {
	Precision               uint64 `json:"precision"`
	AdditionalFeedPrecision uint64 `json:"additional_feed_precision"`
	LiquidationThreshold    uint64 `json:"liquidation_threshold"`
	LiquidationBonus        uint64 `json:"liquidation_bonus"`
	LiquidationPrecision    uint64 `json:"liquidation_precision"`
	MinHealthFactor         uint64 `json:"min_health_factor"`
}

// Params returns the engine constants.
func (e *Engine) Params() Params {
	return Params{
		Precision:               precision,
		AdditionalFeedPrecision: additionalFeedPrecision,
		LiquidationThreshold:    liquidationThreshold,
		LiquidationBonus:        liquidationBonus,
		LiquidationPrecision:    liquidationPrecision,
		MinHealthFactor:         minHealthFactor,
	}
}

// MinHealthFactor returns 1e18.
func MinHealthFactor() *uint256.Int { return minHealth.Clone() }

// mulDiv returns a*b/d truncated toward zero, failing on an a*b overflow.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return prod.Div(prod, d), nil
}

// usdValue converts quantity of an asset priced at price (8 decimals) to an
// 18-decimal USD value: price * 1e10 * quantity / 1e18.
func usdValue(price, quantity *uint256.Int) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(price, feedScale)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return mulDiv(scaled, quantity, unit)
}

// tokenAmountFromUSD is the inverse: usd * 1e18 / (price * 1e10).
func tokenAmountFromUSD(price, usd *uint256.Int) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(price, feedScale)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	if scaled.IsZero() {
		return nil, domain.ErrInvalidPrice
	}
	return mulDiv(usd, unit, scaled)
}

// USDValue returns the USD value of amount units of asset.
func (e *Engine) USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	price, err := e.oracle.Price(ctx, asset)
	if err != nil {
		return nil, err
	}
	v, err := usdValue(price, orZero(amount))
	if err != nil {
		return nil, fmt.Errorf("engine: usd value: %w", err)
	}
	return v, nil
}

// TokenAmountFromUSD returns how many units of asset are worth usd.
func (e *Engine) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	price, err := e.oracle.Price(ctx, asset)
	if err != nil {
		return nil, err
	}
	q, err := tokenAmountFromUSD(price, orZero(usd))
	if err != nil {
		return nil, fmt.Errorf("engine: token amount: %w", err)
	}
	return q, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
