package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults(), loads .env if present
// and applies DSC_* overrides. An empty path skips the file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the file. The collateral list is file-only.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "DSC_MODE")
	setStr(&cfg.LogLevel, "DSC_LOG_LEVEL")

	setStr(&cfg.Store.Driver, "DSC_STORE_DRIVER")
	setBool(&cfg.Store.RunMigrations, "DSC_STORE_RUN_MIGRATIONS")

	setStr(&cfg.Postgres.DSN, "DSC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DSC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DSC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DSC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DSC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DSC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DSC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DSC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DSC_POSTGRES_POOL_MIN_CONNS")

	setBool(&cfg.Redis.Enabled, "DSC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DSC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DSC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DSC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DSC_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "DSC_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "DSC_REDIS_NAMESPACE")

	setStr(&cfg.S3.Endpoint, "DSC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DSC_S3_REGION")
	setStr(&cfg.S3.Bucket, "DSC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DSC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DSC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DSC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DSC_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Engine.Custody, "DSC_ENGINE_CUSTODY")
	setDuration(&cfg.Engine.LockTTL, "DSC_ENGINE_LOCK_TTL")

	setStr(&cfg.Oracle.RPCURL, "DSC_ORACLE_RPC_URL")
	setDuration(&cfg.Oracle.MaxPriceAge, "DSC_ORACLE_MAX_PRICE_AGE")

	setInt(&cfg.Server.Port, "DSC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DSC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DSC_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DSC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.SignatureMaxSkew, "DSC_SERVER_SIGNATURE_MAX_SKEW")
	setBool(&cfg.Server.DevFaucet, "DSC_SERVER_DEV_FAUCET")

	setDuration(&cfg.Monitor.Interval, "DSC_MONITOR_INTERVAL")

	setBool(&cfg.Archive.Enabled, "DSC_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "DSC_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "DSC_ARCHIVE_CRON")

	setStr(&cfg.Notify.TelegramToken, "DSC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DSC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DSC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DSC_NOTIFY_EVENTS")
}

// Typed env helpers. Each only touches dst when the variable is set,
// non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
