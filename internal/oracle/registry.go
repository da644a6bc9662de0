// Package oracle adapts per-asset price feeds for the engine. Prices are read
// fresh on every call; nothing here caches a quote.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// Registry maps each accepted collateral asset to exactly one price feed. The
// set of assets is fixed at construction.
type Registry struct {
	assets []common.Address
	feeds  map[common.Address]domain.PriceFeed
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxAge rejects rounds whose UpdatedAt is older than d. Zero disables the
// check, which is the default.
func WithMaxAge(d time.Duration) Option {
	return func(r *Registry) { r.maxAge = d }
}

// WithClock overrides the clock used by the staleness check.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry pairs assets[i] with feeds[i]. Both lists must have the same
// length.
func NewRegistry(assets []common.Address, feeds []domain.PriceFeed, opts ...Option) (*Registry, error) {
	if len(assets) != len(feeds) {
		return nil, domain.ErrAssetFeedLengthMismatch
	}
	r := &Registry{
		assets: make([]common.Address, 0, len(assets)),
		feeds:  make(map[common.Address]domain.PriceFeed, len(assets)),
		now:    time.Now,
	}
	for i, asset := range assets {
		if feeds[i] == nil {
			return nil, fmt.Errorf("oracle: nil feed for %s", asset.Hex())
		}
		if _, dup := r.feeds[asset]; dup {
			return nil, fmt.Errorf("oracle: duplicate asset %s", asset.Hex())
		}
		r.assets = append(r.assets, asset)
		r.feeds[asset] = feeds[i]
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Assets returns the accepted assets in registration order.
func (r *Registry) Assets() []common.Address {
	out := make([]common.Address, len(r.assets))
	copy(out, r.assets)
	return out
}

// Allowed reports whether asset has a registered feed.
func (r *Registry) Allowed(asset common.Address) bool {
	_, ok := r.feeds[asset]
	return ok
}

// Feed returns the feed registered for asset.
func (r *Registry) Feed(asset common.Address) (domain.PriceFeed, error) {
	f, ok := r.feeds[asset]
	if !ok {
		return nil, domain.ErrNotAllowedToken
	}
	return f, nil
}

// Price returns the latest 8-decimal USD price of one unit of asset.
func (r *Registry) Price(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	feed, err := r.Feed(asset)
	if err != nil {
		return nil, err
	}
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle: latest round %s: %w: %w", asset.Hex(), domain.ErrOracleUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: %s: %w", asset.Hex(), domain.ErrInvalidPrice)
	}
	if r.maxAge > 0 && r.now().Sub(round.UpdatedAt) > r.maxAge {
		return nil, fmt.Errorf("oracle: %s updated %s: %w",
			asset.Hex(), round.UpdatedAt.UTC().Format(time.RFC3339), domain.ErrStalePrice)
	}
	price, overflow := uint256.FromBig(round.Answer)
	if overflow {
		return nil, fmt.Errorf("oracle: %s: %w", asset.Hex(), domain.ErrInvalidPrice)
	}
	return price, nil
}
