package main

import (
	"circles/auth"
	"circles/contract"
	"circles/infrastructure/http/server"
	"circles/infrastructure/realtime"
	"circles/infrastructure/search"
	"circles/internal"
	"circles/observability"
	"circles/runtime"
	"circles/runtime/workers"
	"circles/services"
	"circles/sink"
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred closes run before the exit code is returned to main.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !goerrors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("failed to load .env: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Stores
	stores, err := internal.OpenStores(config.StoreDriver, config.BadgerFilepath, config.SQLiteFilepath, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing stores...", "driver", config.StoreDriver)
		if err := stores.Close(); err != nil {
			log.Error("failed to close stores", "error", err)
		}
	}()

	// 3. Realtime transport: Redis when configured, in-process otherwise
	registry := runtime.NewRegistry()
	fanout := workers.NewEventFanout(log, registry, config.SinkTimeout)
	monitoring := observability.NewMonitoringManager(log, config.MetricInterval)
	background := []contract.Worker{
		monitoring,
		workers.NewHealthMonitoringWorker(log, monitoring, config.MetricInterval),
	}

	var transport contract.Publisher = runtime.NewLocalTransport(fanout)
	if config.RedisURL != "" {
		client, err := realtime.Connect(ctx, config.RedisURL)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		transport = realtime.NewRedisTransport(client, config.RedisPrefix)
		background = append(background, realtime.NewRedisRelay(log, client, config.RedisPrefix, fanout))
		log.Info("Realtime events go through Redis", "prefix", config.RedisPrefix)
	}

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, registry, transport, config.SinkTimeout)

	// 4. Services
	conversationService := services.NewConversationService(log, stores.Users, stores.Conversations, stores.Messages)
	messageService := services.NewMessageService(log, stores.Users, stores.Conversations, stores.Messages, orchestrator, monitoring).
		WithMaxPageSize(config.MaxPageSize)

	// 5. Optional full text search
	if config.BlugeFilepath != "" {
		index, err := search.Open(config.BlugeFilepath, log)
		if err != nil {
			return exitRuntime, fmt.Errorf("search index: %w", err)
		}
		searchSink := sink.NewSearchSink(index, log, config.SearchBatchSize, config.SearchBufferTimeout)
		defer func() {
			if err := searchSink.Flush(); err != nil {
				log.Error("failed to flush search index", "error", err)
			}
			_ = index.Close()
		}()
		orchestrator.Add(searchSink)
		messageService = messageService.WithSearcher(index)
	}

	// 6. HTTP
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	router := server.NewRouter(log, tokens,
		server.NewChatServer(log, conversationService, messageService, stores.Users),
		server.NewRealtimeServer(log, orchestrator, conversationService, monitoring, server.RealtimeConfig{
			BufferSize:     config.ConnectionBufferSize,
			PingInterval:   config.PingInterval,
			WriteTimeout:   config.WriteTimeout,
			OriginPatterns: splitList(config.AllowOrigins),
		}),
		server.NewMonitoringServer(monitoring, registry),
	)
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		orchestrator.Start(ctx, background...)
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "store", config.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	stop()
	orchestrator.Stop()
	<-workersDone
	log.Info("Program stopped cleanly")
	return code, runErr
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
