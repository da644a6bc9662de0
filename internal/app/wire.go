package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/dscengine/internal/blob/s3"
	cachemem "github.com/alanyoungcy/dscengine/internal/cache/memory"
	"github.com/alanyoungcy/dscengine/internal/cache/redis"
	"github.com/alanyoungcy/dscengine/internal/config"
	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/engine"
	"github.com/alanyoungcy/dscengine/internal/notify"
	"github.com/alanyoungcy/dscengine/internal/oracle"
	"github.com/alanyoungcy/dscengine/internal/service"
	storemem "github.com/alanyoungcy/dscengine/internal/store/memory"
	"github.com/alanyoungcy/dscengine/internal/store/postgres"
	"github.com/alanyoungcy/dscengine/internal/token"
)

// deployer creates the stablecoin and hands ownership to custody.
var deployer = common.HexToAddress("0x000000000000000000000000000000000000dE91")

// archivableAudit is an audit store the archiver can read history from.
type archivableAudit interface {
	domain.AuditStore
	s3blob.AuditSource
}

// TokenRef is a wired in-process token and the address it is known by.
type TokenRef struct {
	Address common.Address
	Symbol  string
	Ledger  *token.Ledger
}

// Dependencies bundles everything the modes need. It is built by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	LedgerStore domain.LedgerStore
	EventStore  domain.EventStore
	AuditStore  archivableAudit

	// Caches
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage; nil unless archiving is enabled.
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier

	// Engine and its collaborators
	Engine     *engine.Engine
	Collateral []TokenRef
	Stablecoin *token.Stablecoin
	DSCAddress common.Address
	Custody    common.Address
}

// Wire constructs the concrete implementations selected by cfg.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Custody: common.HexToAddress(cfg.Engine.Custody)}

	// --- Stores ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
			ApplicationName: cfg.Postgres.ApplicationName,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		if cfg.Store.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pgClient.Pool()
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	default:
		deps.LedgerStore = storemem.NewLedgerStore()
		deps.EventStore = storemem.NewEventStore()
		deps.AuditStore = storemem.NewAuditStore()
	}

	// --- Locks, bus and rate limiting ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			Namespace:   cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
	} else {
		deps.LockManager = cachemem.NewLockManager()
		deps.SignalBus = cachemem.NewSignalBus()
		deps.RateLimiter = cachemem.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.EventStore, deps.AuditStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Oracle feeds ---
	feeds, closeFeeds, err := wireFeeds(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeFeeds)

	// --- Tokens ---
	assets := make([]common.Address, 0, len(cfg.Engine.Collateral))
	collateral := make(map[common.Address]domain.Token, len(cfg.Engine.Collateral))
	for _, col := range cfg.Engine.Collateral {
		addr := common.HexToAddress(col.Asset)
		decimals := col.Decimals
		if decimals == 0 {
			decimals = 18
		}
		ledger := token.NewLedger(col.Symbol, decimals)
		assets = append(assets, addr)
		collateral[addr] = ledger
		deps.Collateral = append(deps.Collateral, TokenRef{Address: addr, Symbol: col.Symbol, Ledger: ledger})
	}

	dsc := token.NewStablecoin("DSC", deployer)
	if err := dsc.TransferOwnership(ctx, deployer, deps.Custody); err != nil {
		return fail(fmt.Errorf("wire: dsc ownership: %w", err))
	}
	deps.Stablecoin = dsc
	deps.DSCAddress = ethcrypto.CreateAddress(deployer, 0)

	// --- Engine ---
	var oracleOpts []oracle.Option
	if age := cfg.Oracle.MaxPriceAge.Duration; age > 0 {
		oracleOpts = append(oracleOpts, oracle.WithMaxAge(age))
	}
	eng, err := engine.New(engine.Config{
		Custody:       deps.Custody,
		Assets:        assets,
		Feeds:         feeds,
		Collateral:    collateral,
		Stablecoin:    dsc,
		Store:         deps.LedgerStore,
		Events:        service.NewEventRouter(deps.EventStore, deps.SignalBus, logger),
		OracleOptions: oracleOpts,
		Logger:        logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: engine: %w", err))
	}
	deps.Engine = eng

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("store", cfg.Store.Driver),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Int("collateral_assets", len(assets)),
		slog.String("custody", deps.Custody.Hex()),
	)
	return deps, cleanup, nil
}

// wireFeeds builds one price feed per collateral entry. Chainlink feeds
// share a single RPC client.
func wireFeeds(ctx context.Context, cfg *config.Config) ([]domain.PriceFeed, func(), error) {
	var rpc *ethclient.Client
	closeRPC := func() {
		if rpc != nil {
			rpc.Close()
		}
	}

	feeds := make([]domain.PriceFeed, 0, len(cfg.Engine.Collateral))
	for _, col := range cfg.Engine.Collateral {
		switch strings.ToLower(col.Kind) {
		case config.FeedChainlink:
			if rpc == nil {
				dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				client, err := ethclient.DialContext(dialCtx, cfg.Oracle.RPCURL)
				cancel()
				if err != nil {
					return nil, nil, fmt.Errorf("wire: dial %s: %w", cfg.Oracle.RPCURL, err)
				}
				rpc = client
			}
			feeds = append(feeds, oracle.NewChainlinkFeed(rpc, common.HexToAddress(col.Feed)))
		default:
			answer, err := staticAnswer(col.Price)
			if err != nil {
				closeRPC()
				return nil, nil, fmt.Errorf("wire: %s price: %w", col.Symbol, err)
			}
			feeds = append(feeds, oracle.NewStaticFeed(answer))
		}
	}
	return feeds, closeRPC, nil
}

// staticAnswer converts a USD price such as "2000.5" to the feed's 8-decimal
// integer answer.
func staticAnswer(price string) (*big.Int, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	return d.Shift(8).BigInt(), nil
}
