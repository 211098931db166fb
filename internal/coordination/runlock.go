// Package coordination serializes runs across processes. The on-disk JSON
// state has no cross-process locking of its own, so two instances sharing
// a data directory would corrupt each other's bookkeeping; the Redis run
// lock refuses the second instance up front.
package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

const (
	lockKey   = "uploadflow:run_lock"
	statusKey = "uploadflow:instance_status"
)

// releaseScript deletes the lock only when this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RunLock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
	log    logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRunLock(addr, password string, db int, ttl time.Duration, log logger.Logger) (*RunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Connected to Redis", logger.Field{Key: "addr", Value: addr})

	return &RunLock{
		client: client,
		token:  uuid.New().String(),
		ttl:    ttl,
		log:    log,
		stopCh: make(chan struct{}),
	}, nil
}

// Acquire takes the run lock or reports that another instance holds it.
// On success a background refresher keeps the lock alive until Release.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, lockKey, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, lockKey).Result()
		return fmt.Errorf("%w (held by %s)", models.ErrAlreadyRunning, holder)
	}

	l.wg.Add(1)
	go l.refresh()

	l.log.Info("Run lock acquired", logger.Field{Key: "token", Value: l.token})
	return nil
}

func (l *RunLock) refresh() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := l.client.Expire(ctx, lockKey, l.ttl).Err()
			cancel()
			if err != nil {
				l.log.Warn("Failed to refresh run lock",
					logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// Release drops the lock if this instance still owns it and stops the
// refresher.
func (l *RunLock) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()

	deleted, err := releaseScript.Run(ctx, l.client, []string{lockKey}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	if deleted == 0 {
		l.log.Warn("Run lock was no longer held at release")
	}
	return nil
}

// PublishStatus advertises what this instance is doing. The key expires
// on its own, so a crashed instance stops reporting stale state.
func (l *RunLock) PublishStatus(ctx context.Context, status string) {
	payload := fmt.Sprintf(`{"token":%q,"status":%q,"updated_at":%q}`,
		l.token, status, time.Now().UTC().Format(time.RFC3339))
	if err := l.client.Set(ctx, statusKey, payload, 2*l.ttl).Err(); err != nil {
		l.log.Warn("Failed to publish instance status",
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (l *RunLock) Close() error {
	return l.client.Close()
}
