package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
mode = "full"
log_level = "debug"

[engine]
custody = "0x00000000000000000000000000000000000000c0"
lock_ttl = "3s"

[[engine.collateral]]
symbol = "WETH"
asset = "0x00000000000000000000000000000000000000e1"
kind = "static"
price = "2000"
decimals = 18

[[engine.collateral]]
symbol = "WBTC"
asset = "0x00000000000000000000000000000000000000b1"
kind = "chainlink"
feed = "0x00000000000000000000000000000000000000f1"
decimals = 8

[oracle]
rpc_url = "https://rpc.example/key"
max_price_age = "1h"

[monitor]
interval = "10s"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Engine.LockTTL.Duration)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.LockRetry.Duration, "default kept")
	assert.Equal(t, time.Hour, cfg.Oracle.MaxPriceAge.Duration)
	require.Len(t, cfg.Engine.Collateral, 2)
	assert.Equal(t, FeedChainlink, cfg.Engine.Collateral[1].Kind)
	assert.Equal(t, uint8(8), cfg.Engine.Collateral[1].Decimals)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sample+"\n[server]\nprot = 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.prot")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DSC_MODE", "monitor")
	t.Setenv("DSC_SERVER_PORT", "9100")
	t.Setenv("DSC_NOTIFY_EVENTS", " liquidation , ,account_liquidatable")
	t.Setenv("DSC_MONITOR_INTERVAL", "not-a-duration")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"liquidation", "account_liquidatable"}, cfg.Notify.Events)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval.Duration, "unparsable override ignored")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Store.Driver = "sqlite"
	cfg.Engine.Collateral = []CollateralConfig{
		{Symbol: "WETH", Asset: "0x00000000000000000000000000000000000000e1", Kind: FeedStatic, Price: "-1"},
		{Symbol: "", Asset: "0x00000000000000000000000000000000000000e1", Kind: FeedChainlink},
	}
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown driver "sqlite"`,
		"custody must be a non-zero address",
		"engine.collateral[0]: static price must be a positive decimal",
		"engine.collateral[1]: symbol must not be empty",
		"engine.collateral[1]: duplicate asset",
		"engine.collateral[1]: chainlink feed must be a non-zero address",
		"oracle.rpc_url is required",
		"telegram_token and telegram_chat_id must be set together",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateArchiveNeedsBucket(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""
	require.ErrorContains(t, cfg.Validate(), "s3: bucket must not be empty")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Oracle.RPCURL)
	assert.Empty(t, red.Redis.Password, "empty secrets stay empty")

	red.Engine.Collateral[0].Symbol = "changed"
	assert.Equal(t, "WETH", cfg.Engine.Collateral[0].Symbol)
	assert.Equal(t, "pw", cfg.Postgres.Password)
}
