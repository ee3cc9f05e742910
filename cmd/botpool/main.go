package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/ticker-bots/internal/allocator"
	"github.com/Checker-Finance/ticker-bots/internal/api"
	"github.com/Checker-Finance/ticker-bots/internal/config"
	"github.com/Checker-Finance/ticker-bots/internal/discord"
	"github.com/Checker-Finance/ticker-bots/internal/jobs"
	"github.com/Checker-Finance/ticker-bots/internal/launcher"
	"github.com/Checker-Finance/ticker-bots/internal/market"
	"github.com/Checker-Finance/ticker-bots/internal/notify"
	"github.com/Checker-Finance/ticker-bots/internal/publisher"
	"github.com/Checker-Finance/ticker-bots/internal/rabbitmq"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
	internalsecrets "github.com/Checker-Finance/ticker-bots/internal/secrets"
	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/internal/store/migrations"
	"github.com/Checker-Finance/ticker-bots/pkg/logger"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
	"github.com/Checker-Finance/ticker-bots/pkg/secrets"
	"github.com/Checker-Finance/ticker-bots/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.InitWithOptions(cfg.ServiceName, cfg.Env, cfg.LogLevel, logger.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSize,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [ticker-bots]...")

	// --- AWS Secrets Manager overlay ---
	if cfg.UseAWSSecrets || cfg.AWSSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		resolver := internalsecrets.NewResolver(logger.L(), cfg.Env, cfg.ServiceName, awsProvider, 0)
		values, err := resolver.Resolve(ctx, cfg.AWSSecretName)
		if err != nil {
			logg.Fatalw("failed to resolve service secrets", "error", err)
		}
		logg.Infow("secrets applied", "fields", cfg.ApplySecrets(values))
	}

	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Store (Postgres, optional Redis binding cache) ---
	pgStore, err := store.NewPG(ctx, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	if err := migrations.Apply(ctx, pgStore.PG); err != nil {
		logg.Fatalw("failed to apply migrations", "error", err)
	}

	var st store.Store = pgStore
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			logg.Fatalw("failed to connect to redis", "error", err)
		}
		st = store.NewCached(pgStore, rdb, cfg.BindingCacheTTL, logger.L())
	}

	// --- Event fan-out ---
	bus := notify.NewBus(logger.L())
	webhook := notify.NewWebhook(logger.L(), cfg.AdminWebhookURL, cfg.HTTPClientTimeout)
	bus.Subscribe("webhook", webhook.Handle)
	if !webhook.Enabled() {
		logg.Warn("DISCORD_ADMIN_WEBHOOK not configured; admin notifications are logged only")
	}

	healthChecks := map[string]api.Pinger{}
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(nc, cfg.NATSStream, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		bus.Subscribe("nats", pub.PublishEvent)
		healthChecks["nats"] = pub
	}

	var rmq *rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		rmq, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger.L())
		if err != nil {
			logg.Fatalw("failed to init rabbitmq publisher", "error", err)
		}
		bus.Subscribe("rabbitmq", rmq.PublishEvent)
	}

	// --- Rate limiter (one bucket per provider) ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
	})

	// --- Collaborators ---
	coinGecko := market.NewCoinGecko(logger.L(), rateMgr, market.CoinGeckoConfig{
		BaseURL: cfg.CoinGeckoURL,
		APIKey:  cfg.CoinGeckoAPIKey,
		Timeout: cfg.HTTPClientTimeout,
		ListTTL: cfg.CoinListTTL,
	})
	yahoo := market.NewYahoo(logger.L(), rateMgr, market.YahooConfig{
		BaseURL: cfg.YahooURL,
		Timeout: cfg.HTTPClientTimeout,
	})
	gateway := market.NewGateway(coinGecko, yahoo)

	identity := discord.NewIdentity(logger.L(), rateMgr, discord.Config{
		BaseURL: cfg.DiscordAPIURL,
		Timeout: cfg.HTTPClientTimeout,
	})

	opts := []allocator.Option{
		allocator.WithPool(cfg.Pool),
		allocator.WithDefaultAvatar(model.AssetCrypto, cfg.DefaultCryptoAvatar),
		allocator.WithDefaultAvatar(model.AssetStock, cfg.DefaultStockAvatar),
	}
	if lc := launcher.New(logger.L(), rateMgr, launcher.Config{
		URL:       cfg.LauncherURL,
		User:      cfg.LauncherUser,
		Password:  cfg.LauncherPass,
		Frequency: cfg.LauncherFrequency,
		Timeout:   cfg.HTTPClientTimeout,
	}); lc != nil {
		opts = append(opts, allocator.WithLauncher(lc))
	}

	alloc := allocator.New(logger.L(), gateway, st, identity, bus, opts...)
	// Registration and avatar changes need tokens, which the binding cache never holds.
	registrar := allocator.NewRegistrar(logger.L(), pgStore, identity, bus)

	// --- Pool monitor ---
	monitor := jobs.NewPoolMonitor(logger.L(), pgStore, bus, cfg.Pool, cfg.PoolMonitorInterval, cfg.PoolLowWatermark)
	go monitor.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	routes := api.Routes{
		Store:  st,
		Checks: healthChecks,
		Bots:   api.NewBotHandler(logger.L(), alloc, coinGecko),
		Admin:  api.NewAdminHandler(logger.L(), registrar),
	}
	if cfg.AdminEnabled() {
		routes.AdminUsers = map[string]string{cfg.AdminUser: cfg.AdminPass}
	} else {
		logg.Warn("ADMIN_USER/ADMIN_PASS not configured; admin API disabled")
	}
	api.RegisterRoutes(app, routes)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[ticker-bots] running",
		"env", cfg.Env,
		"pool", cfg.Pool,
		"nats", nc != nil,
		"rabbitmq", rmq != nil,
		"redis_cache", cfg.RedisAddr != "",
		"launcher", cfg.LauncherURL != "")

	<-ctx.Done()
	logg.Info("shutting down [ticker-bots]...")

	monitor.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := bus.Close(shutdownCtx); err != nil {
		logg.Warnw("eventbus.drain_failed", "error", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if rmq != nil {
		if err := rmq.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
