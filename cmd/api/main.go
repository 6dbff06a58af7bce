package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"appbuilder/api/internal/app"
	"appbuilder/api/internal/config"
	"appbuilder/api/internal/logging"
	"appbuilder/api/internal/store"
	"appbuilder/api/internal/tokenstore"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{
		ServiceName: "appbuilder-api",
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
	})
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	var tokens tokenstore.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for token revocation")
		redisStore, err := tokenstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		tokens = redisStore
	} else {
		logger.Warn("REDIS_URL not set, token revocation is process-local")
		tokens = tokenstore.NewMemoryStore()
	}

	service := app.New(cfg, store.NewPostgresStore(db), tokens, logger)
	if cfg.SeedDemo {
		if err := service.Bootstrap(ctx); err != nil {
			logger.Warn("bootstrap error (will retry on next restart)", zap.Error(err))
		}
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("appbuilder API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
