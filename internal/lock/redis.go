package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPollInterval = 25 * time.Millisecond

type RedisConfig struct {
	// TTL bounds how long a crashed holder can block an owner.
	TTL time.Duration
	// Wait is how long a caller queues for the lease before giving up.
	Wait time.Duration
	// PollInterval is the retry cadence while waiting.
	PollInterval time.Duration
}

type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Redis{client: client, cfg: cfg}
}

func ownerKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("leadcal:lock:owner:%s", ownerID.String())
}

func (l *Redis) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := ownerKey(ownerID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.cfg.TTL)
	defer cancel()

	return fn(lockCtx)
}

func (l *Redis) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.cfg.Wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire owner lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}

		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Redis) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release owner lock: %w", err)
	}
	return nil
}

// NewRedisClient dials and pings Redis from a redis:// URL.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 1

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
