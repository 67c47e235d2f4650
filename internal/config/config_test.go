package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("AUCTION_DB_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUCTION_DB_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUCTION_DB_URL", "postgres://localhost:5432/auction")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.DB.StatementTimeout)
	assert.Equal(t, 3, cfg.Auction.RetryMaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Auction.RetryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Auction.DuplicateBidWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Auction.PaymentDueIn)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SweepInterval)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("AUCTION_DB_URL", "postgres://localhost:5432/auction")
	t.Setenv("DB_STATEMENT_TIMEOUT", "2s")
	t.Setenv("BID_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("BID_RETRY_BASE_DELAY", "50ms")
	t.Setenv("SCHEDULER_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.DB.StatementTimeout)
	assert.Equal(t, 5, cfg.Auction.RetryMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Auction.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.SweepInterval)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"malformed duration", "BID_RETRY_BASE_DELAY", "soon"},
		{"duration missing unit", "SCHEDULER_SWEEP_INTERVAL", "30"},
		{"malformed statement timeout", "DB_STATEMENT_TIMEOUT", "5 seconds"},
		{"malformed integer", "SCHEDULER_BATCH_SIZE", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUCTION_DB_URL", "postgres://localhost:5432/auction")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_RejectsZeroRetryAttempts(t *testing.T) {
	t.Setenv("AUCTION_DB_URL", "postgres://localhost:5432/auction")
	t.Setenv("BID_RETRY_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BID_RETRY_MAX_ATTEMPTS")
}
