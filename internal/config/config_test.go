package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/internal/config"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("PG_CONN_URL", "postgres://localhost/billsync")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoad(t *testing.T) {
	setBase(t)
	t.Setenv("BILLING_PRICE_PLANS", "price_a:STARTUP,price_b:PRO")
	t.Setenv("BILLING_DEBUG_ROUTES", "true")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "stripe", cfg.Billing.Provider)
	assert.Equal(t, map[string]string{"price_a": "STARTUP", "price_b": "PRO"}, cfg.Billing.PricePlans)
	assert.True(t, cfg.Billing.DebugRoutes)
	assert.Equal(t, 5*time.Minute, cfg.Billing.CacheTTL)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://localhost/billsync", cfg.PG.ConnectionString)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("PG_CONN_URL", "")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := config.Config{}
	valid.Auth.Secret = "secret"
	valid.Billing.Provider = "paddle"
	valid.Paddle.APIKey = "key"
	valid.Paddle.WebhookSecret = "whsec"

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{name: "paddle", mutate: func(*config.Config) {}},
		{name: "uppercase provider", mutate: func(c *config.Config) { c.Billing.Provider = "PADDLE" }},
		{name: "unknown provider", mutate: func(c *config.Config) { c.Billing.Provider = "braintree" }, wantErr: config.ErrUnknownProvider},
		{name: "paddle without key", mutate: func(c *config.Config) { c.Paddle.APIKey = "" }, wantErr: config.ErrInvalidConfig},
		{name: "stripe without secrets", mutate: func(c *config.Config) { c.Billing.Provider = "stripe" }, wantErr: config.ErrInvalidConfig},
		{name: "no jwt secret", mutate: func(c *config.Config) { c.Auth.Secret = "" }, wantErr: config.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
