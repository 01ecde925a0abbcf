package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/callbackops/internal/alert"
	"github.com/punchamoorthee/callbackops/internal/api"
	"github.com/punchamoorthee/callbackops/internal/callback"
	"github.com/punchamoorthee/callbackops/internal/config"
	"github.com/punchamoorthee/callbackops/internal/service"
	"github.com/punchamoorthee/callbackops/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Unable to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		logger.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Unable to apply schema", zap.Error(err))
	}

	// Initialize Layers
	var alerts service.AlertSink
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, side effect alerts will only be logged", zap.Error(err))
		} else {
			alerts = alert.NewQueue(rdb, alert.DefaultMaxAttempts, logger)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, side effect alerts will only be logged")
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, admin endpoints will reject every request")
	}
	if cfg.RequireSignature {
		logger.Warn("GATEWAY_REQUIRE_SIGNATURE is set without a signature verifier; all callbacks will be rejected")
	}

	activator := service.NewActivator(db, cfg.SubscriptionType, cfg.SubscriptionAmount, logger)
	engine := service.NewEngine(db, db, activator, service.NewWalletReconciler(db, logger), alerts, logger)
	validator := callback.NewValidator(cfg.ReplayWindow, callback.WithRequiredSignature(cfg.RequireSignature))
	handler := api.NewHandler(validator, engine, activator, db, logger, cfg.Version)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, api.NewAuthenticator(cfg.JWTSecret)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Env), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
