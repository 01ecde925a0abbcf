// Package alert queues side effects that failed after a callback had already
// been settled, so a reconciler can retry them outside the webhook request.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	PendingKey = "callbackops:side_effects"
	DeadKey    = "callbackops:side_effects:dead"

	DefaultMaxAttempts = 5
)

// RetryFunc re-runs the side effect described by an alert.
type RetryFunc func(ctx context.Context, a *domain.SideEffectAlert) error

// Queue is a Redis list of pending alerts plus a dead-letter list for alerts
// that exhausted their attempts.
type Queue struct {
	client      *redis.Client
	maxAttempts int
	logger      *zap.Logger
}

func NewQueue(client *redis.Client, maxAttempts int, logger *zap.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{client: client, maxAttempts: maxAttempts, logger: logger}
}

// Raise enqueues a failed side effect.
func (q *Queue) Raise(ctx context.Context, a *domain.SideEffectAlert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := q.client.LPush(ctx, PendingKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue alert %s: %w", a.ExternalID, err)
	}
	return nil
}

// Pop blocks up to timeout for the oldest alert. It returns nil, nil when
// the queue stayed empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*domain.SideEffectAlert, error) {
	res, err := q.client.BRPop(ctx, timeout, PendingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value]
	var a domain.SideEffectAlert
	if err := json.Unmarshal([]byte(res[1]), &a); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}
	return &a, nil
}

// Requeue records a failed attempt. Alerts out of attempts go to the
// dead-letter list; it reports whether the alert was dead-lettered.
func (q *Queue) Requeue(ctx context.Context, a *domain.SideEffectAlert, cause error) (bool, error) {
	a.Attempts++
	a.Reason = cause.Error()
	key := PendingKey
	dead := a.Attempts >= q.maxAttempts
	if dead {
		key = DeadKey
	}
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal alert: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return false, fmt.Errorf("requeue alert %s: %w", a.ExternalID, err)
	}
	return dead, nil
}

// Len returns the number of pending and dead-lettered alerts.
func (q *Queue) Len(ctx context.Context) (pending, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, PendingKey)
	d := pipe.LLen(ctx, DeadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return p.Val(), d.Val(), nil
}

// Drain retries alerts until ctx is cancelled. Between retries of a failing
// alert it waits backoff so a broken store is not hammered.
func (q *Queue) Drain(ctx context.Context, retry RetryFunc, poll, backoff time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		a, err := q.Pop(ctx, poll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("Failed to pop alert", zap.Error(err))
			sleep(ctx, backoff)
			continue
		}
		if a == nil {
			continue
		}

		log := q.logger.With(
			zap.String("effect", a.Effect),
			zap.String("external_id", a.ExternalID),
			zap.Int("attempts", a.Attempts),
		)
		if err := retry(ctx, a); err != nil {
			dead, rerr := q.Requeue(ctx, a, err)
			switch {
			case rerr != nil:
				log.Error("Failed to requeue alert, alert lost", zap.Error(err), zap.NamedError("requeue_error", rerr))
			case dead:
				log.Error("Side effect dead-lettered", zap.Error(err))
			default:
				log.Warn("Side effect retry failed", zap.Error(err))
			}
			sleep(ctx, backoff)
			continue
		}
		log.Info("Side effect alert resolved")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
