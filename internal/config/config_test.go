package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, 100, cfg.Engine.BatchSize)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Engine.BackoffInitial)
	assert.Equal(t, 5*time.Minute, cfg.Engine.BackoffMax)
	assert.Equal(t, 15*time.Minute, cfg.Engine.ReconcileInterval)
	assert.Equal(t, 6*time.Hour, cfg.Engine.CleanupInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.TombstoneRetention)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, 10000, cfg.Cache.Size)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Connectors.Timeout)
	assert.Empty(t, cfg.Connectors.Endpoints)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENGINE_WORKERS", "8")
	t.Setenv("RETRY_BACKOFF_INITIAL", "250ms")
	t.Setenv("CONNECTORS", "shopify=https://shop.example.com, magento=https://m.example.com")
	t.Setenv("CONNECTOR_SHOPIFY_TOKEN", "secret")
	t.Setenv("CONNECTOR_SUBSCRIBERS", "shopify,magento")
	t.Setenv("QUEUE_JOURNAL_PATH", "/tmp/journal.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.BackoffInitial)
	assert.Equal(t, "/tmp/journal.db", cfg.Queue.JournalPath)
	assert.Equal(t, []string{"shopify", "magento"}, cfg.Connectors.Subscribers)
	assert.Equal(t, []ConnectorEndpoint{
		{Name: "shopify", BaseURL: "https://shop.example.com", Token: "secret"},
		{Name: "magento", BaseURL: "https://m.example.com"},
	}, cfg.Connectors.Endpoints)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad duration", "ENGINE_TICK_INTERVAL", "soon", "invalid ENGINE_TICK_INTERVAL"},
		{"bad jwt expiration", "JWT_EXPIRATION", "1x", "invalid JWT_EXPIRATION"},
		{"connector without url", "CONNECTORS", "shopify", "invalid CONNECTORS entry"},
		{"duplicate connector", "CONNECTORS", "a=http://x,a=http://y", "duplicate connector"},
		{"backoff max below initial", "RETRY_BACKOFF_MAX", "10ms", "invalid RETRY_BACKOFF_MAX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "many")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}
