package service

import (
	"context"
	"encoding/json"
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

// LiquidatableAccount is published on domain.ChannelLiquidatable for every
// account found below the minimum health factor.
type LiquidatableAccount struct {
	User               string    `json:"user"`
	HealthFactor       string    `json:"health_factor"`
	TotalDSCMinted     string    `json:"total_dsc_minted"`
	CollateralValueUSD string    `json:"collateral_value_usd"`
	At                 time.Time `json:"at"`
}

// LiquidationMonitor periodically scans every open position and reports the
// ones a keeper could liquidate.
type LiquidationMonitor struct {
	eng      *engine.Engine
	bus      domain.SignalBus
	notifier Notifier
	metrics  *metrics.MonitorMetrics
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// flagged holds accounts already alerted on, so operators get one alert
	// per episode rather than one per scan.
	flagged map[common.Address]bool
}

// NewLiquidationMonitor creates a monitor. bus and notifier may be nil.
func NewLiquidationMonitor(eng *engine.Engine, bus domain.SignalBus, notifier Notifier, interval time.Duration, logger *slog.Logger) *LiquidationMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LiquidationMonitor{
		eng:      eng,
		bus:      bus,
		notifier: notifier,
		metrics:  metrics.Monitor(),
		interval: interval,
		logger:   logger.With(slog.String("component", "liquidation_monitor")),
		now:      time.Now,
		flagged:  make(map[common.Address]bool),
	}
}

// Run scans immediately and then every interval until ctx is cancelled. Scan
// failures are logged and do not stop the loop.
func (m *LiquidationMonitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "liquidation monitor started", slog.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "liquidation monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan checks every account once and returns the liquidatable ones.
func (m *LiquidationMonitor) Scan(ctx context.Context) ([]LiquidatableAccount, error) {
	start := time.Now()
	found, err := m.scan(ctx)
	m.metrics.Scanned(len(found), time.Since(start), err)
	return found, err
}

func (m *LiquidationMonitor) scan(ctx context.Context) ([]LiquidatableAccount, error) {
	users, err := m.eng.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("liquidation_monitor: %w", err)
	}

	var found []LiquidatableAccount
	seen := make(map[common.Address]bool, len(users))
	for _, user := range users {
		info, hf, err := m.eng.AccountHealth(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("liquidation_monitor: account %s: %w", user.Hex(), err)
		}
		if hf == nil || !hf.Lt(engine.MinHealthFactor()) {
			continue
		}
		seen[user] = true
		acct := LiquidatableAccount{
			User:               user.Hex(),
			HealthFactor:       hf.Dec(),
			TotalDSCMinted:     info.TotalDSCMinted.Dec(),
			CollateralValueUSD: info.CollateralValueUSD.Dec(),
			At:                 m.now().UTC(),
		}
		found = append(found, acct)
		m.publish(ctx, acct)
		if !m.flagged[user] {
			m.alert(ctx, user, info, hf)
		}
	}
	m.flagged = seen

	m.logger.DebugContext(ctx, "scan complete",
		slog.Int("accounts", len(users)),
		slog.Int("liquidatable", len(found)),
	)
	return found, nil
}

func (m *LiquidationMonitor) publish(ctx context.Context, acct LiquidatableAccount) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(acct)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, domain.ChannelLiquidatable, payload); err != nil {
		m.logger.WarnContext(ctx, "publish liquidatable failed",
			slog.String("user", acct.User),
			slog.String("error", err.Error()),
		)
	}
}

func (m *LiquidationMonitor) alert(ctx context.Context, user common.Address, info domain.AccountInfo, hf *uint256.Int) {
	m.logger.WarnContext(ctx, "account liquidatable",
		slog.String("user", user.Hex()),
		slog.String("health_factor", hf.Dec()),
	)
	if m.notifier == nil {
		return
	}
	title, msg := notify.LiquidatableMessage(user, info, hf)
	if err := m.notifier.Notify(ctx, notify.EventAccountLiquidatable, title, msg); err != nil {
		m.logger.WarnContext(ctx, "liquidatable notification failed", slog.String("error", err.Error()))
	}
}
