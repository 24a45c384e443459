// Command billsync runs the subscription reconciliation service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billsync/internal/api"
	"github.com/dmitrymomot/billsync/internal/config"
	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/billing/paddle"
	"github.com/dmitrymomot/billsync/pkg/billing/pgstore"
	"github.com/dmitrymomot/billsync/pkg/billing/rediscache"
	"github.com/dmitrymomot/billsync/pkg/billing/stripe"
	"github.com/dmitrymomot/billsync/pkg/httpserver"
	"github.com/dmitrymomot/billsync/pkg/logger"
	"github.com/dmitrymomot/billsync/pkg/metrics"
	"github.com/dmitrymomot/billsync/pkg/pg"
	"github.com/dmitrymomot/billsync/pkg/redis"
	"github.com/dmitrymomot/billsync/pkg/requestid"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(append(cfg.App.LoggerOptions(),
		logger.WithContextExtractors(requestid.LogExtractor()),
	)...)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Service terminated with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Service stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.PG.MigrationsTable, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	var store billing.Store = pgstore.NewStore(pool)
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer closeRedis(client, log)

		store = rediscache.New(store, client,
			rediscache.WithTTL(cfg.Billing.CacheTTL),
			rediscache.WithLogger(log),
		)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	gateway, parser, err := provider(cfg)
	if err != nil {
		return err
	}

	collector := metrics.New()
	engine := billing.NewEngine(store, pgstore.NewLedger(pool), gateway, parser,
		billing.WithLogger(log),
		billing.WithUserDirectory(pgstore.NewUsers(pool, cfg.Billing.UsersTable)),
		billing.WithCatalog(billing.PriceCatalog(cfg.Billing.PricePlans)),
		billing.WithRecorder(collector),
	)

	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	router := api.NewRouter(engine, verifier,
		api.WithLogger(log),
		api.WithDebugRoutes(cfg.Billing.DebugRoutes),
		api.WithMetricsHandler(collector.Handler()),
		api.WithHealthChecks(cfg.Billing.ReadyTimeout, checks...),
		api.WithCheckoutURLs(cfg.Billing.SuccessURL, cfg.Billing.CancelURL),
		api.WithMaxWebhookBytes(cfg.Billing.WebhookMaxKiB<<10),
	)

	if cfg.Billing.DebugRoutes {
		log.Warn("Debug routes are enabled")
	}
	log.Info("Starting billsync",
		logger.Provider(parser.Provider()),
		slog.Int("plans", len(cfg.Billing.PricePlans)),
	)

	return httpserver.New(cfg.HTTP, log).Run(ctx, router)
}

func provider(cfg config.Config) (billing.Gateway, billing.WebhookParser, error) {
	switch strings.ToLower(cfg.Billing.Provider) {
	case stripe.ProviderName:
		gw, err := stripe.NewGateway(cfg.Stripe)
		if err != nil {
			return nil, nil, err
		}
		parser, err := stripe.NewParser(cfg.Stripe)
		if err != nil {
			return nil, nil, err
		}
		return gw, parser, nil
	case paddle.ProviderName:
		gw, err := paddle.NewGateway(cfg.Paddle)
		if err != nil {
			return nil, nil, err
		}
		parser, err := paddle.NewParser(cfg.Paddle)
		if err != nil {
			return nil, nil, err
		}
		return gw, parser, nil
	}
	return nil, nil, errors.Join(config.ErrUnknownProvider, fmt.Errorf("provider %q", cfg.Billing.Provider))
}

func closeRedis(client *goredis.Client, log *slog.Logger) {
	if err := client.Close(); err != nil {
		log.Warn("Failed to close redis client", logger.Error(err))
	}
}
