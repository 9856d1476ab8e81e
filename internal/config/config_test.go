package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("SUBSCRIPTION_TIMEOUT", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("INSTANCE_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Zero(t, cfg.SubscriptionTimeout)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SUBSCRIPTION_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("INSTANCE_ID", "api-1")
	t.Setenv("MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.SubscriptionTimeout)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.Equal(t, "api-1", cfg.InstanceID)
	assert.True(t, cfg.Migrate)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
}
