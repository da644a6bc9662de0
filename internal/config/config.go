// Package config defines the dscd configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by DSC_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Oracle   OracleConfig   `toml:"oracle"`
	Server   ServerConfig   `toml:"server"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver        string `toml:"driver"`
	RunMigrations bool   `toml:"run_migrations"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	ApplicationName string   `toml:"application_name"`
}

// RedisConfig holds Redis connection parameters. With Enabled false the
// in-process lock, bus and rate limiter are used.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	DialTimeout  duration `toml:"dial_timeout"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	Namespace    string   `toml:"namespace"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Feed kinds for CollateralConfig.Kind.
const (
	FeedStatic    = "static"
	FeedChainlink = "chainlink"
)

// CollateralConfig declares one accepted collateral asset.
type CollateralConfig struct {
	Symbol string `toml:"symbol"`
	Asset  string `toml:"asset"`
	// Kind is "static" (Price is used) or "chainlink" (Feed is read over
	// oracle.rpc_url).
	Kind     string `toml:"kind"`
	Feed     string `toml:"feed"`
	Price    string `toml:"price"`
	Decimals uint8  `toml:"decimals"`
}

// EngineConfig holds the engine wiring.
type EngineConfig struct {
	Custody    string             `toml:"custody"`
	Collateral []CollateralConfig `toml:"collateral"`
	LockTTL    duration           `toml:"lock_ttl"`
	LockRetry  duration           `toml:"lock_retry"`
}

// OracleConfig holds price feed settings.
type OracleConfig struct {
	RPCURL string `toml:"rpc_url"`
	// MaxPriceAge rejects rounds older than this; zero disables the check.
	MaxPriceAge duration `toml:"max_price_age"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every /api request.
	APIKey           string   `toml:"api_key"`
	RateLimit        int      `toml:"rate_limit"`
	RateWindow       duration `toml:"rate_window"`
	SignatureMaxSkew duration `toml:"signature_max_skew"`
	// DevFaucet enables POST /api/tokens/{token}/faucet.
	DevFaucet    bool     `toml:"dev_faucet"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// MonitorConfig holds liquidation monitor parameters.
type MonitorConfig struct {
	Interval duration `toml:"interval"`
}

// ArchiveConfig holds history archiving parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values used when a key is
// absent from the file.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Store: StoreConfig{
			Driver:        "memory",
			RunMigrations: true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "dsc",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			ApplicationName: "dscd",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			DialTimeout:  duration{5 * time.Second},
			Namespace:    "dsc",
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "dsc-archive",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			LockTTL:   duration{10 * time.Second},
			LockRetry: duration{20 * time.Millisecond},
		},
		Server: ServerConfig{
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000"},
			RateLimit:        120,
			RateWindow:       duration{time.Minute},
			SignatureMaxSkew: duration{5 * time.Minute},
			ReadTimeout:      duration{15 * time.Second},
			WriteTimeout:     duration{15 * time.Second},
		},
		Monitor: MonitorConfig{
			Interval: duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation", "account_liquidatable"},
		},
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks c and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		addf("unknown mode %q (valid: server, monitor, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		addf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				addf("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				addf("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				addf("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			addf("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			addf("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		addf("store: unknown driver %q (valid: memory, postgres)", c.Store.Driver)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			addf("redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			addf("redis: pool_size must be >= 1")
		}
	}

	c.validateEngine(addf)

	if c.Oracle.MaxPriceAge.Duration < 0 {
		addf("oracle: max_price_age must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		addf("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		addf("server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		addf("server: rate_window must be > 0 when rate_limit is set")
	}
	if c.Server.SignatureMaxSkew.Duration <= 0 {
		addf("server: signature_max_skew must be > 0")
	}

	if c.Mode != "server" && c.Monitor.Interval.Duration <= 0 {
		addf("monitor: interval must be > 0")
	}

	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			addf("archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			addf("archive: cron must not be empty")
		}
		if c.S3.Bucket == "" {
			addf("s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			addf("s3: region must not be empty when archive is enabled")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		addf("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateEngine(addf func(string, ...any)) {
	if !isAddress(c.Engine.Custody) {
		addf("engine: custody must be a non-zero address, got %q", c.Engine.Custody)
	}
	if len(c.Engine.Collateral) == 0 {
		addf("engine: at least one collateral asset is required")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		addf("engine: lock_ttl must be > 0")
	}

	seen := make(map[common.Address]bool, len(c.Engine.Collateral))
	for i, col := range c.Engine.Collateral {
		name := fmt.Sprintf("engine.collateral[%d]", i)
		if col.Symbol == "" {
			addf("%s: symbol must not be empty", name)
		}
		if !isAddress(col.Asset) {
			addf("%s: asset must be a non-zero address, got %q", name, col.Asset)
		} else if a := common.HexToAddress(col.Asset); seen[a] {
			addf("%s: duplicate asset %s", name, a.Hex())
		} else {
			seen[a] = true
		}
		if col.Decimals > 36 {
			addf("%s: decimals must be <= 36", name)
		}
		switch col.Kind {
		case FeedStatic:
			p, err := decimal.NewFromString(col.Price)
			if err != nil || !p.IsPositive() {
				addf("%s: static price must be a positive decimal, got %q", name, col.Price)
			}
		case FeedChainlink:
			if !isAddress(col.Feed) {
				addf("%s: chainlink feed must be a non-zero address, got %q", name, col.Feed)
			}
			if c.Oracle.RPCURL == "" {
				addf("%s: oracle.rpc_url is required for chainlink feeds", name)
			}
		default:
			addf("%s: unknown kind %q (valid: static, chainlink)", name, col.Kind)
		}
	}
}

func isAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
