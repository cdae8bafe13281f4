package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphawulf/alphawulf-hub/config"
	"github.com/alphawulf/alphawulf-hub/internal/application/catalog"
	"github.com/alphawulf/alphawulf-hub/internal/application/command"
	"github.com/alphawulf/alphawulf-hub/internal/application/eventhandler"
	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/auth"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/external/telegram"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/messaging"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/metrics"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/redis"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/seed"
	httpserver "github.com/alphawulf/alphawulf-hub/internal/interface/http"
	"github.com/alphawulf/alphawulf-hub/internal/interface/http/handlers"
	bot "github.com/alphawulf/alphawulf-hub/internal/interface/telegram"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/handler"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/middleware"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Telegram bot",
		Long: `Run the Mini App HTTP API and, when TELEGRAM_BOT_ENABLED is set,
the long-polling Telegram bot. Stops gracefully on SIGINT or SIGTERM.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

// closableBus is an event bus that drains on Close.
type closableBus interface {
	shared.EventBus
	Close() error
}

func runServe(ctx context.Context, opts *RootOptions) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := newLogger(cfg)
	log.Info("starting AlphaWulf Hub",
		slog.String("version", cfg.App.Version),
		slog.String("driver", cfg.Database.Driver),
		slog.Bool("bot_enabled", cfg.Telegram.BotEnabled),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К ХРАНИЛИЩУ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openBackend(ctx, cfg, cfg.Database.AutoMigrate, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection...")
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", logger.Err(err))
		}
	}()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if cfg.Redis.Enabled() {
		cache, err = redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
			log.Info("Redis connection established")
		}
	}

	var (
		accounts account.Repository  = store.Accounts
		records  progress.Repository = store.Progress
	)
	if cache != nil {
		accounts = redis.NewCachedAccountRepository(store.Accounts, cache, cfg.Redis.CacheTTL, log)
		records = redis.NewCachedProgressRepository(store.Progress, cache, cfg.Redis.CacheTTL, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. МЕТРИКИ И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	bus := newEventBus(cfg, cache, m, log)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. КАТАЛОГ ДОСТИЖЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Progression.SeedOnStart {
		defaults, err := seed.Load(cfg.Progression.CatalogFile)
		if err != nil {
			return fmt.Errorf("failed to load achievement catalog: %w", err)
		}
		seeder := command.NewSeedAchievementsHandler(store.Catalog, log)
		if _, err := seeder.Handle(ctx, command.SeedAchievementsCommand{Catalog: defaults}); err != nil {
			return fmt.Errorf("failed to seed achievements: %w", err)
		}
	}
	catalogs := catalog.NewProvider(store.Catalog, cfg.Progression.CatalogRefresh, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	var observer command.Observer
	if m != nil {
		observer = m
	}
	provisionCmd := command.NewProvisionAccountHandler(accounts, records, catalogs, command.ProvisionAccountConfig{
		Publisher:          bus,
		Observer:           observer,
		Logger:             log,
		WelcomeAchievement: seed.TelegramProAchievement,
	})
	awardCmd := command.NewAwardExperienceHandler(records, catalogs, command.AwardExperienceConfig{
		Publisher:   bus,
		MaxAttempts: cfg.Progression.MaxAttempts,
		Observer:    observer,
		Logger:      log,
	})
	progressQuery := query.NewGetProgressHandler(records, nil)
	achievementsQuery := query.NewGetAchievementsHandler(records, catalogs, nil)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	var (
		tgBot        *bot.Bot
		botAPIState  handlers.HealthCheckFunc
		progressSync httpserver.ProgressSyncer
	)
	if cfg.Telegram.BotEnabled {
		clientCfg := telegram.DefaultClientConfig(cfg.Telegram.BotToken)
		clientCfg.BaseURL = cfg.Telegram.APIBaseURL
		clientCfg.PollTimeout = cfg.Telegram.PollingTimeout
		clientCfg.Timeout = time.Duration(cfg.Telegram.PollingTimeout)*time.Second + 30*time.Second
		clientCfg.Logger = log
		client := telegram.NewClient(clientCfg)
		botAPIState = client.Health

		notifier := eventhandler.NewProgressNotifier(accounts, client, log)
		if err := notifier.Register(messaging.LocalSubscriber(bus)); err != nil {
			return fmt.Errorf("failed to register notifier: %w", err)
		}

		progressSync = handler.NewProgressSync(accounts, progressQuery, client, log)

		router := bot.NewRouter(bot.RouterConfig{Logger: log})
		bot.RegisterDefaultCommands(router, handler.NewCommands(accounts, progressQuery, log))

		botCfg := bot.DefaultBotConfig()
		botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
		botCfg.RateLimit = middleware.DefaultRateLimitConfig()
		botCfg.RateLimit.RequestsPerMinute = cfg.Telegram.UserRateLimit
		botCfg.Debug = cfg.App.Debug
		botCfg.Logger = log

		deps := bot.BotDependencies{Updates: client, Sender: client, Router: router}
		if m != nil {
			deps.Observer = m
		}
		tgBot, err = bot.NewBot(botCfg, deps)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	sessions, err := auth.NewSessionIssuer(auth.SessionConfig{
		Secret: cfg.Session.Secret,
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return fmt.Errorf("failed to create session issuer: %w", err)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.PingCheck(store))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.PingCheck(cache))
	}
	if botAPIState != nil {
		health.AddOptionalCheck("telegram", botAPIState)
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.TrustProxyHeaders = cfg.HTTP.TrustProxyHeaders
	httpCfg.RateLimitRequests = cfg.RateLimit.Requests
	httpCfg.RateLimitWindow = cfg.RateLimit.Window
	httpCfg.Version = cfg.App.Version

	httpDeps := httpserver.Dependencies{
		Verifier: telegram.NewInitDataVerifier(cfg.Telegram.BotToken,
			telegram.WithMaxAge(cfg.Telegram.InitDataMaxAge),
			telegram.WithVerifierLogger(log),
		),
		Sessions:         sessions,
		Accounts:         accounts,
		ProvisionAccount: provisionCmd,
		AwardExperience:  awardCmd,
		GetProgress:      progressQuery,
		GetAchievements:  achievementsQuery,
		ProgressSync:     progressSync,
		HealthChecker:    health,
		Logger:           log,
	}
	if cache != nil && cfg.RateLimit.Requests > 0 {
		httpDeps.RateLimiter = httpserver.NewRedisRateLimiter(cache, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if m != nil {
		httpDeps.Metrics = m
	}
	httpServer := httpserver.NewServer(httpCfg, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 2)

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	if tgBot != nil {
		go func() {
			if err := tgBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram bot error: %w", err)
			}
		}()
	}

	log.Info("AlphaWulf Hub is running", slog.String("http_address", httpCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case runErr = <-errCh:
		log.Error("service error", logger.Err(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// Порядок: бот, HTTP, затем defer-ы (event bus, Redis, хранилище).
	if tgBot != nil {
		if err := tgBot.Stop(shutdownCtx); err != nil {
			log.Warn("bot shutdown error", logger.Err(err))
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", logger.Err(err))
	}

	log.Info("AlphaWulf Hub stopped")
	return runErr
}

// newEventBus returns a Redis-backed bus when Redis is available and an
// in-memory bus otherwise.
func newEventBus(cfg *config.Config, cache *redis.Cache, m *metrics.Metrics, log *slog.Logger) closableBus {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log
	if m != nil {
		local.OnHandled = m.EventHandled
	}

	if cache != nil {
		rb, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Transport: cache,
			Channel:   cfg.Redis.EventChannel,
			Local:     local,
			Logger:    log,
		})
		if err == nil {
			return rb
		}
		log.Warn("redis event bus unavailable, using in-memory bus", logger.Err(err))
	}
	return messaging.NewInMemoryEventBus(local)
}
