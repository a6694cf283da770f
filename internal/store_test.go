package internal

import (
	"circles/domain"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestOpenStores_BothDrivers(t *testing.T) {
	for _, driver := range []string{BadgerDriver, SQLiteDriver} {
		t.Run(driver, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			dir := t.TempDir()
			log := logs.GetLoggerFromLevel(slog.LevelDebug)

			// Given stores opened with the driver
			stores, err := OpenStores(driver, filepath.Join(dir, "badger"), filepath.Join(dir, "circles.db"), log)
			req.NoError(err)

			// When creating a conversation and a message
			alice, err := stores.Users.CreateUser(ctx, domain.User{Username: "alice"})
			req.NoError(err)
			bob, err := stores.Users.CreateUser(ctx, domain.User{Username: "bob"})
			req.NoError(err)
			conversation, created, err := stores.Conversations.CreateDirect(ctx, alice.ID, bob.ID)
			req.NoError(err)
			req.True(created)
			_, _, err = stores.Messages.StoreMessage(ctx, domain.Message{ConversationID: conversation.ID, SenderID: alice.ID, Content: "hi"})
			req.NoError(err)

			// Then they read back and close cleanly
			last, err := stores.Messages.LastMessage(ctx, conversation.ID)
			req.NoError(err)
			req.Equal("hi", last.Content)
			req.NoError(stores.Close())
		})
	}
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores("mongo", "", "", logs.GetLoggerFromLevel(slog.LevelDebug))
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		Port:                 8080,
		StoreDriver:          BadgerDriver,
		JWTSecret:            "0123456789abcdef",
		AuthTokenDuration:    time.Hour,
		ConnectionBufferSize: 8,
		PingInterval:         25 * time.Second,
		WriteTimeout:         5 * time.Second,
		SinkTimeout:          2 * time.Second,
		SearchBatchSize:      100,
		SearchBufferTimeout:  500 * time.Millisecond,
		MaxPageSize:          100,
		MetricInterval:       10 * time.Second,
		RestartInterval:      time.Second,
		ShutdownTimeout:      10 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	req.NoError(cfg.Validate())

	cfg.StoreDriver = "mongo"
	req.ErrorContains(cfg.Validate(), "STORE_DRIVER")

	cfg.StoreDriver = SQLiteDriver
	cfg.JWTSecret = "short"
	req.ErrorContains(cfg.Validate(), "JWT_SECRET")
}

func TestConfig_Validate_RejectsNonPositiveIntervals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"PING_INTERVAL", func(c *Config) { c.PingInterval = 0 }},
		{"METRIC_INTERVAL", func(c *Config) { c.MetricInterval = -time.Second }},
		{"SINK_TIMEOUT", func(c *Config) { c.SinkTimeout = 0 }},
		{"WRITE_TIMEOUT", func(c *Config) { c.WriteTimeout = 0 }},
		{"RESTART_INTERVAL", func(c *Config) { c.RestartInterval = 0 }},
		{"SEARCH_BUFFER_TIMEOUT", func(c *Config) { c.SearchBufferTimeout = 0 }},
		{"CONNECTION_BUFFER_SIZE", func(c *Config) { c.ConnectionBufferSize = 0 }},
		{"MAX_PAGE_SIZE", func(c *Config) { c.MaxPageSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given an otherwise valid config with one bad value
			cfg := validConfig()
			tt.mutate(&cfg)

			// Then validation names the variable
			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorContains(t, err, tt.name)
			require.ErrorContains(t, err, "must be positive")
		})
	}
}
