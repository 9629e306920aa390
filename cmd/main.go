package main

import (
	"chat-delivery/auth"
	grpcadmin "chat-delivery/infrastructure/grpc"
	"chat-delivery/infrastructure/httpapi"
	"chat-delivery/infrastructure/ws"
	"chat-delivery/internal"
	"chat-delivery/moderation"
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"chat-delivery/runtime"
	"chat-delivery/runtime/workers"
	"chat-delivery/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-delivery terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the process lifecycle so that deferred
// cleanups run before exiting.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	var moderator *moderation.Moderator
	if config.ModerationEnabled {
		charReplacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		censored, err := moderation.LoadCensoredWords()
		if err != nil {
			return exitConfig, fmt.Errorf("censored words: %w", err)
		}
		if moderator, err = moderation.NewModerator(censored.Words, charReplacement, log); err != nil {
			return exitConfig, err
		}
		log.Info("Moderation enabled", "words", len(censored.Words), "languages", censored.Languages)
	}

	// 2. Storage (Badger + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, log))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	if config.DebugPort > 0 {
		log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		database.StartDebugServer(db, config.DebugPort, "/inspect", StoreMapper)
	}

	messages := repositories.NewMessageRepository(db, log)
	notifications := repositories.NewNotificationRepository(db, log)
	index := repositories.NewMessageIndex(blugeWriter, log)

	// 3. Delivery core
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(promRegistry)

	registry := runtime.NewRegistry()
	rooms := runtime.NewRoomTracker(registry, messages)
	metrics.RegisterLiveGauges(
		func() float64 { return float64(registry.CountConnections()) },
		func() float64 { return float64(registry.CountUsers()) },
		func() float64 { return float64(rooms.Rooms()) },
	)

	router := runtime.NewRouter(log, registry, rooms, messages, index, moderator, metrics, runtime.RouterConfig{
		PushTimeout:      config.PushTimeout,
		TypingWindow:     config.TypingWindow,
		MaxContentLength: config.MaxContentLength,
	})
	notifier := runtime.NewNotifier(log, registry, notifications, metrics, config.PushTimeout)

	// 4. Background workers
	retention, err := workers.NewRetentionWorker(log, notifications, metrics, config.RetentionCron, config.RetentionMaxAge)
	if err != nil {
		return exitConfig, err
	}
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(retention, workers.NewProcessStatsWorker(log, metrics, config.StatsInterval))

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		sup.Run(ctx)
	}()

	// 6. HTTP + WebSocket
	tokens := auth.NewTokenService(config.JWTSecret)
	wsHandler := ws.NewHandler(log, registry, router, ws.NewCodec(tokens), metrics, ws.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		InboundBufferSize:    config.InboundBufferSize,
		InboundRate:          config.InboundRate,
		InboundBurst:         config.InboundBurst,
	})
	if !log.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := httpapi.NewEngine(log, httpapi.Dependencies{
		Tokens:        tokens,
		InternalKey:   config.InternalAPIKey,
		Conversations: services.NewConversationService(log, messages, index, router),
		Notifications: services.NewNotificationService(log, notifications, notifier),
		Live:          registry,
		Metrics:       metrics.Handler(),
		WebSocket:     wsHandler.ServeWS,
		StartedAt:     time.Now(),
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Sockets inherit the root context and are closed on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	adminAddress := fmt.Sprintf("%s:%d", config.Host, config.AdminPort)
	adminListener, err := net.Listen("tcp", adminAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", adminAddress, err)
	}
	admin := grpcadmin.NewAdminServer(log)

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := admin.Serve(adminListener); err != nil {
			errChan <- err
		}
	}()
	admin.SetServing(true)

	// 7. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err = <-errChan:
		log.Error("Server failed", "error", err)
		code = exitRuntime
	}

	// 8. Graceful shutdown
	log.Info("Shutting down gracefully...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	admin.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supervised
	log.Info("Program stopped cleanly")

	return code, err
}

func buildBadgerOpts(config internal.Config, log *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if log.Enabled(context.Background(), slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
