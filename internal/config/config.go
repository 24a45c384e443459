// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing/paddle"
	"github.com/dmitrymomot/billsync/pkg/billing/stripe"
	"github.com/dmitrymomot/billsync/pkg/httpserver"
	"github.com/dmitrymomot/billsync/pkg/logger"
	"github.com/dmitrymomot/billsync/pkg/pg"
	"github.com/dmitrymomot/billsync/pkg/redis"
)

var (
	ErrUnknownProvider = errors.New("BILLING_PROVIDER must be stripe or paddle")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// App holds process-wide settings.
type App struct {
	Name      string `env:"APP_NAME" envDefault:"billsync"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Billing holds engine settings.
type Billing struct {
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`
	// PricePlans maps provider price ids to plan names, e.g.
	// "price_123:STARTUP,price_456:PRO".
	PricePlans    map[string]string `env:"BILLING_PRICE_PLANS" envKeyValSeparator:":"`
	DebugRoutes   bool              `env:"BILLING_DEBUG_ROUTES" envDefault:"false"`
	UsersTable    string            `env:"BILLING_USERS_TABLE" envDefault:"users"`
	CacheTTL      time.Duration     `env:"BILLING_CACHE_TTL" envDefault:"5m"`
	ReadyTimeout  time.Duration     `env:"BILLING_READY_TIMEOUT" envDefault:"3s"`
	SuccessURL    string            `env:"BILLING_SUCCESS_URL"`
	CancelURL     string            `env:"BILLING_CANCEL_URL"`
	WebhookMaxKiB int64             `env:"BILLING_WEBHOOK_MAX_KIB" envDefault:"512"`
}

// Config aggregates the per-package configuration structs.
type Config struct {
	App     App
	Billing Billing
	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Auth    auth.Config
	Stripe  stripe.Config
	Paddle  paddle.Config
}

// Load reads .env when present, parses the environment and validates the
// provider section.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Billing.Provider) {
	case stripe.ProviderName:
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required"))
		}
	case paddle.ProviderName:
		if c.Paddle.APIKey == "" || c.Paddle.WebhookSecret == "" {
			errs = append(errs, errors.New("PADDLE_API_KEY and PADDLE_WEBHOOK_SECRET are required"))
		}
	default:
		errs = append(errs, ErrUnknownProvider)
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// LoggerOptions translates App into logger options.
func (a App) LoggerOptions() []logger.Option {
	opts := []logger.Option{
		logger.WithEnvironment(a.Env, a.Name),
		logger.WithLevelName(a.LogLevel),
	}
	if a.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(a.LogFormat)))
	}
	return opts
}
