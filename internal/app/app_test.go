package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanyoungcy/dscengine/internal/config"
	"github.com/alanyoungcy/dscengine/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	custodyHex = "0x00000000000000000000000000000000000000c0"
	wethHex    = "0x00000000000000000000000000000000000000e1"
	user       = "0x000000000000000000000000000000000000a11c"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Server.Port = 0
	cfg.Monitor.Interval.Duration = 10 * time.Millisecond
	cfg.Engine.Custody = custodyHex
	cfg.Engine.Collateral = []config.CollateralConfig{
		{Symbol: "WETH", Asset: wethHex, Kind: config.FeedStatic, Price: "2000.5", Decimals: 18},
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestStaticAnswer(t *testing.T) {
	got, err := staticAnswer("2000.5")
	require.NoError(t, err)
	assert.Equal(t, "200050000000", got.String())

	_, err = staticAnswer("two thousand")
	require.Error(t, err)
}

func TestWireInMemory(t *testing.T) {
	ctx := context.Background()
	deps, cleanup, err := Wire(ctx, testConfig(t, "full"), discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Archiver, "archive is off by default")
	require.Len(t, deps.Collateral, 1)
	assert.Equal(t, common.HexToAddress(custodyHex), deps.Stablecoin.Owner())

	weth := common.HexToAddress(wethHex)
	usd, err := deps.Engine.USDValue(ctx, weth, uint256.NewInt(2e18))
	require.NoError(t, err)
	assert.Equal(t, "4001000000000000000000", usd.Dec())

	alice := common.HexToAddress(user)
	require.NoError(t, deps.Collateral[0].Ledger.Mint(ctx, alice, uint256.NewInt(1e18)))
	_, err = deps.Collateral[0].Ledger.Approve(ctx, alice, deps.Custody, uint256.NewInt(1e18))
	require.NoError(t, err)
	require.NoError(t, deps.Engine.DepositCollateral(ctx, alice, weth, uint256.NewInt(1e18)))

	events, err := deps.EventStore.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, events, 1, "engine events reach the event store")
}

func TestModesStopOnCancel(t *testing.T) {
	for _, mode := range []string{"server", "monitor", "full"} {
		t.Run(mode, func(t *testing.T) {
			a := New(testConfig(t, mode), discard())
			defer a.Close()

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			time.Sleep(50 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("mode did not stop")
			}
		})
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t, "full")
	cfg.Mode = "trade"
	a := New(cfg, discard())
	defer a.Close()
	require.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}
