package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/callbackops/internal/alert"
	"github.com/punchamoorthee/callbackops/internal/config"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/pawapay"
	"github.com/punchamoorthee/callbackops/internal/service"
	"github.com/punchamoorthee/callbackops/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	maxAttempts int
	poll        time.Duration
	backoff     time.Duration
	depositID   string
)

func init() {
	flag.IntVar(&maxAttempts, "max-attempts", alert.DefaultMaxAttempts, "Attempts before an alert is dead-lettered")
	flag.DurationVar(&poll, "poll", 5*time.Second, "How long to block waiting for an alert")
	flag.DurationVar(&backoff, "backoff", 2*time.Second, "Pause after a failed retry")
	flag.StringVar(&depositID, "deposit", "", "Reconcile one deposit from the gateway's status API and exit")
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	newLogger := zap.NewProduction
	if cfg.IsDevelopment() {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
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

	activator := service.NewActivator(db, cfg.SubscriptionType, cfg.SubscriptionAmount, logger)
	wallets := service.NewWalletReconciler(db, logger)

	if depositID != "" {
		engine := service.NewEngine(db, db, activator, wallets, nil, logger)
		if err := reconcileDeposit(ctx, cfg, engine, logger); err != nil {
			logger.Fatal("Deposit reconciliation failed", zap.String("deposit_id", depositID), zap.Error(err))
		}
		return
	}

	if cfg.RedisAddr == "" {
		logger.Fatal("REDIS_ADDR is required to drain side effect alerts")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Unable to reach Redis", zap.Error(err))
	}

	queue := alert.NewQueue(rdb, maxAttempts, logger)
	engine := service.NewEngine(db, db, activator, wallets, queue, logger)

	if pending, dead, err := queue.Len(ctx); err == nil {
		logger.Info("Reconciler starting", zap.Int64("pending", pending), zap.Int64("dead_lettered", dead))
	}
	if err := queue.Drain(ctx, engine.Retry, poll, backoff); err != nil {
		logger.Fatal("Reconciler stopped", zap.Error(err))
	}
	logger.Info("Reconciler stopped")
}

// reconcileDeposit feeds the gateway's current view of a deposit through the
// same engine that handles callbacks, for deposits whose callback was lost.
func reconcileDeposit(ctx context.Context, cfg *config.Config, engine *service.Engine, logger *zap.Logger) error {
	client := pawapay.NewClient(cfg.PawaPayBaseURL, cfg.PawaPayAPIToken, 10*time.Second)
	ev, err := client.Deposit(ctx, depositID)
	if err != nil {
		return err
	}

	res, err := engine.Process(ctx, ev)
	if err != nil {
		return err
	}
	if res.Outcome == service.OutcomeNotFound {
		return domain.ErrTransactionNotFound
	}

	fields := []zap.Field{
		zap.String("deposit_id", ev.ExternalID),
		zap.String("status", string(ev.Status)),
		zap.String("outcome", string(res.Outcome)),
	}
	var sideErr *domain.SideEffectError
	if errors.As(res.SideEffectErr, &sideErr) {
		fields = append(fields, zap.String("failed_effect", sideErr.Effect), zap.Error(sideErr.Err))
	}
	logger.Info("Deposit reconciled", fields...)
	return nil
}
