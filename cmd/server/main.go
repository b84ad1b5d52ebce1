package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"campus-chat/internal/api"
	"campus-chat/internal/chat"
	"campus-chat/internal/config"
	"campus-chat/internal/db"
	"campus-chat/internal/identity"
	myMiddleware "campus-chat/internal/middleware"
	"campus-chat/internal/realtime"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	var (
		store  chat.Store
		health api.Pinger
	)
	if cfg.UsePostgres() {
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer func() {
			log.Info("Closing PostgreSQL...")
			_ = database.Close()
		}()
		log.Info("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		log.Info("✅ Database Schema Initialized")
		store = chat.NewRepository(database.Conn, chat.UUIDv7)
		health = database.Conn
	} else {
		log.Warn("DB_DSN not set, conversations live in memory only")
		store = chat.NewMemoryStore(chat.UUIDv7)
	}

	// 3. Event relay
	var broker realtime.Broker
	if cfg.UseRedis() {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis", "channel", cfg.RedisChannel)
		broker = realtime.NewRedisBroker(redisClient, cfg.RedisChannel, log)
	} else {
		broker = realtime.NewLocalBroker(cfg.ClientBuffer)
	}

	// 4. Messaging core + hub
	hub := realtime.NewHub(broker, log)
	hubErr := make(chan error, 1)
	go func() { hubErr <- hub.Run(ctx) }()

	svc := chat.NewService(store, hub, log, chat.Options{
		PreviewLength:    cfg.PreviewLength,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	handler := api.NewHandler(svc, hub, log, api.Options{
		ClientBuffer: cfg.ClientBuffer,
		WriteTimeout: cfg.WriteTimeout,
		SyncLimit:    cfg.SyncLimit,
		Health:       health,
	})
	auth := myMiddleware.NewAuthMiddleware(identity.NewTokens(cfg.JWTSecret, cfg.JWTIssuer))

	// 5. HTTP server
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewRouter(handler, auth),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	hubStopped := false
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case err := <-hubErr:
		if err != nil {
			return fmt.Errorf("hub stopped: %w", err)
		}
		hubStopped = true
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
	stop()
	if !hubStopped {
		if err := <-hubErr; err != nil {
			log.Warn("Hub stopped with error", "error", err)
		}
	}
	log.Info("Server stopped")
	return nil
}
