// Package engine implements the collateral accounting, health-factor and
// liquidation engine behind the DSC stablecoin.
//
// Every state-changing call runs under one mutex inside a single ledger-store
// transaction. Journaled token collaborators are snapshotted before the call
// and reverted when it fails, so a failed call leaves no trace. Events are
// handed to the EventSink only after the ledger commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/oracle"
)

// Config holds everything the engine needs at construction. Assets and Feeds
// are paired by index and fix the accepted collateral set for the engine's
// lifetime.
type Config struct {
	// Custody is the account that holds deposited collateral and owns the
	// stablecoin.
	Custody common.Address

	Assets []common.Address
	Feeds  []domain.PriceFeed
	// Collateral maps each accepted asset to its token collaborator.
	Collateral map[common.Address]domain.Token
	Stablecoin domain.StableToken

	Store  domain.LedgerStore
	Events domain.EventSink // optional

	OracleOptions []oracle.Option
	Logger        *slog.Logger
	Now           func() time.Time
}

// Engine is the DSC orchestrator.
type Engine struct {
	mu sync.Mutex

	custody    common.Address
	oracle     *oracle.Registry
	collateral map[common.Address]domain.Token
	dsc        domain.StableToken
	store      domain.LedgerStore
	events     domain.EventSink
	journals   []domain.Journaled
	logger     *slog.Logger
	now        func() time.Time
}

// New validates cfg and builds an Engine. It fails with
// domain.ErrAssetFeedLengthMismatch when Assets and Feeds differ in length.
func New(cfg Config) (*Engine, error) {
	registry, err := oracle.NewRegistry(cfg.Assets, cfg.Feeds, cfg.OracleOptions...)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.Store == nil {
		return nil, errors.New("engine: ledger store is required")
	}
	if cfg.Stablecoin == nil {
		return nil, errors.New("engine: stablecoin is required")
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("engine: custody: %w", domain.ErrZeroAddress)
	}

	collateral := make(map[common.Address]domain.Token, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		tok, ok := cfg.Collateral[asset]
		if !ok || tok == nil {
			return nil, fmt.Errorf("engine: no token collaborator for %s", asset.Hex())
		}
		collateral[asset] = tok
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		custody:    cfg.Custody,
		oracle:     registry,
		collateral: collateral,
		dsc:        cfg.Stablecoin,
		store:      cfg.Store,
		events:     cfg.Events,
		logger:     logger.With(slog.String("component", "engine")),
		now:        now,
	}
	e.journals = collectJournals(cfg.Stablecoin, cfg.Assets, collateral)
	return e, nil
}

func collectJournals(dsc domain.StableToken, assets []common.Address, collateral map[common.Address]domain.Token) []domain.Journaled {
	seen := make(map[domain.Journaled]struct{})
	var out []domain.Journaled
	add := func(v any) {
		j, ok := v.(domain.Journaled)
		if !ok {
			return
		}
		if _, dup := seen[j]; dup {
			return
		}
		seen[j] = struct{}{}
		out = append(out, j)
	}
	add(dsc)
	for _, asset := range assets {
		add(collateral[asset])
	}
	return out
}

// Custody returns the account holding deposited collateral.
func (e *Engine) Custody() common.Address { return e.custody }

// call is the scope of one state-changing engine call.
type call struct {
	ctx    context.Context
	tx     domain.LedgerTx
	events []domain.Event
}

func (c *call) emit(ev domain.Event) {
	c.events = append(c.events, ev)
}

// atomically runs fn as one all-or-nothing engine call.
func (e *Engine) atomically(ctx context.Context, op string, fn func(c *call) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snaps := make([]int, len(e.journals))
	for i, j := range e.journals {
		ctx, snaps[i] = j.Snapshot(ctx)
	}

	var pending []domain.Event
	err := e.store.Update(ctx, func(tx domain.LedgerTx) error {
		c := &call{ctx: ctx, tx: tx}
		if err := fn(c); err != nil {
			return err
		}
		pending = c.events
		return nil
	})
	if err != nil {
		for i := len(e.journals) - 1; i >= 0; i-- {
			e.journals[i].RevertToSnapshot(snaps[i])
		}
		e.logger.DebugContext(ctx, "call reverted", slog.String("op", op), slog.String("error", err.Error()))
		return err
	}
	for i, j := range e.journals {
		j.Release(snaps[i])
	}

	at := e.now().UTC()
	for _, ev := range pending {
		ev.ID = uuid.NewString()
		ev.At = at
		if e.events == nil {
			continue
		}
		if err := e.events.Emit(ctx, ev); err != nil {
			e.logger.WarnContext(ctx, "emit event failed",
				slog.String("op", op),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
