package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/domain/ports/repository"
	"telegram-access-subscription/internal/infra/adapters/access"
	"telegram-access-subscription/internal/infra/adapters/knowledge"
	"telegram-access-subscription/internal/infra/adapters/storage"
	tele "telegram-access-subscription/internal/infra/adapters/telegram"
	pg "telegram-access-subscription/internal/infra/db/postgres"
	"telegram-access-subscription/internal/infra/i18n"
	"telegram-access-subscription/internal/infra/logging"
	red "telegram-access-subscription/internal/infra/redis"
	"telegram-access-subscription/internal/infra/sched"
	"telegram-access-subscription/internal/usecase"
)

// application holds everything serve and reconcile need.
type application struct {
	cfg      *config.Config
	log      *zerolog.Logger
	pool     *pgxpool.Pool
	redis    *red.Client
	resolver *dnscache.Resolver

	subs      repository.SubscriptionRepository
	lifecycle usecase.LifecycleUseCase
	payments  usecase.PaymentUseCase
	pricing   usecase.PricingUseCase
	purchase  usecase.PurchaseUseCase
	worker    *sched.ReconcilerWorker
}

func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

func connectDB(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := pg.MigrateUp(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database schema is up to date")
	}
	return pool, nil
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*application, error) {
	pool, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, log: logger, pool: pool, resolver: &dnscache.Resolver{}}

	clk := clock.System()

	// ---- Repositories ----
	var (
		users   repository.UserRepository   = pg.NewPostgresUserRepo(pool)
		tariffs repository.TariffRepository = pg.NewTariffRepo(pool)
	)
	subs := pg.NewSubscriptionRepo(pool)
	payments := pg.NewPaymentRepo(pool)
	actions := pg.NewActionLogRepo(pool)
	promos := pg.NewPromocodeRepo(pool)
	defs := pg.NewNotificationDefinitionRepo(pool)
	states := pg.NewBotStateRepo(pool, clk.Now)
	tm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var guard sched.PassGuard = sched.NewLocalGuard()
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.redis = rc
		users = pg.NewUserRepoCacheDecorator(users, rc, cfg.Redis.TTL, logger)
		tariffs = pg.NewTariffRepoCacheDecorator(tariffs, rc, cfg.Redis.TTL, logger)
		if cfg.Scheduler.DistributedLock {
			guard = sched.NewRedisGuard(red.NewLocker(rc), "", cfg.Scheduler.LockTTL, logger)
		}
	}

	// ---- Messaging and access providers ----
	notifier, providers, err := buildProviders(ctx, cfg, app.resolver, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Locale.Lang)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("i18n: %w", err)
	}

	// ---- Use cases ----
	accessUC := usecase.NewAccessUseCase(providers, subs, users, cfg.Access.Timeout, logger)
	notifyUC := usecase.NewNotificationUseCase(defs, actions, users, tariffs, notifier, translator, clk, cfg.Locale.DateFormat, logger)
	lifecycleUC := usecase.NewLifecycleUseCase(subs, users, tariffs, actions, tm, accessUC, notifyUC, clk, logger)
	pricingUC := usecase.NewPricingUseCase(promos, tariffs, clk, logger)

	app.subs = subs
	app.lifecycle = lifecycleUC
	app.payments = usecase.NewPaymentUseCase(payments, subs, actions, lifecycleUC, clk, logger)
	app.pricing = pricingUC
	app.purchase = usecase.NewPurchaseUseCase(users, tariffs, subs, payments, actions, pricingUC, tm, clk, logger)

	reconciler := usecase.NewReconcileUseCase(subs, states, lifecycleUC, notifyUC, accessUC, clk, usecase.ReconcileOptions{
		Concurrency: cfg.Scheduler.Concurrency,
		BatchSize:   cfg.Scheduler.BatchSize,
		RetryAccess: cfg.Scheduler.RetryAccess,
	}, logger)
	app.worker = sched.NewReconcilerWorker(cfg.Scheduler.Interval, cfg.Scheduler.PassTimeout, guard, reconciler, subs, logger)

	return app, nil
}

// buildProviders returns the notifier and one provider per access system.
// A system without settings gets a stand-in that fails with ErrNotConfigured.
func buildProviders(ctx context.Context, cfg *config.Config, resolver *dnscache.Resolver, logger *zerolog.Logger) (adapter.Notifier, []adapter.AccessProvider, error) {
	rps, burst := cfg.Access.RatePerSecond, cfg.Access.Burst

	var (
		notifier adapter.Notifier
		chat     adapter.AccessProvider = access.Unconfigured(model.AccessCommunityChat)
		kb       adapter.AccessProvider = access.Unconfigured(model.AccessKnowledgeBase)
		files    adapter.AccessProvider = access.Unconfigured(model.AccessFileStorage)
	)

	if cfg.Bot.Token != "" {
		bot, err := tele.NewBotAPI(cfg.Bot)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		notifier = tele.NewBotNotifier(bot)
		if cfg.Bot.ChatID != 0 {
			chat = access.Wrap(tele.NewChatAccess(bot, cfg.Bot.ChatID), rps, burst)
		}
	} else {
		logger.Warn().Msg("bot.token not set; notifications are logged only")
		notifier = tele.NewNoopNotifier(logger)
	}

	if cfg.Access.Knowledge.BaseURL != "" {
		kb = access.Wrap(knowledge.NewClient(cfg.Access.Knowledge, resolver), rps, burst)
	}

	if cfg.Access.Storage.Bucket != "" {
		grants, err := storage.NewGrants(ctx, cfg.Access.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		files = access.Wrap(grants, rps, burst)
	}

	return notifier, []adapter.AccessProvider{chat, kb, files}, nil
}

// refreshDNS keeps the knowledge-base resolver cache fresh until ctx ends.
func (a *application) refreshDNS(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.resolver.Refresh(true)
		}
	}
}

func (a *application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("redis close")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
