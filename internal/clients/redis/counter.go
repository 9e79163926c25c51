package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
)

// CounterStore is the shared atomic counter surface backing the quota ledger.
// Increments must be atomic across processes; there is no read-then-write.
type CounterStore interface {
	// IncrBy atomically adds delta to key and returns the new value. The
	// expiry is applied when the key is first created.
	IncrBy(ctx context.Context, key string, delta int64, expiry time.Duration) (int64, error)
	IncrByFloat(ctx context.Context, key string, delta float64, expiry time.Duration) (float64, error)
	Get(ctx context.Context, key string) (int64, error)
	Close() error
}

type counterStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewCounterStore(log *logger.Logger) (CounterStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &counterStore{
		log: log.With("client", "RedisCounterStore"),
		rdb: rdb,
	}, nil
}

func (s *counterStore) IncrBy(ctx context.Context, key string, delta int64, expiry time.Duration) (int64, error) {
	if s == nil || s.rdb == nil {
		return 0, fmt.Errorf("redis counter store not initialized")
	}
	val, err := s.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, err
	}
	if expiry > 0 {
		// NX keeps the original window; re-increments never extend it.
		_ = s.rdb.ExpireNX(ctx, key, expiry).Err()
	}
	return val, nil
}

func (s *counterStore) IncrByFloat(ctx context.Context, key string, delta float64, expiry time.Duration) (float64, error) {
	if s == nil || s.rdb == nil {
		return 0, fmt.Errorf("redis counter store not initialized")
	}
	val, err := s.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, err
	}
	if expiry > 0 {
		_ = s.rdb.ExpireNX(ctx, key, expiry).Err()
	}
	return val, nil
}

func (s *counterStore) Get(ctx context.Context, key string) (int64, error) {
	if s == nil || s.rdb == nil {
		return 0, fmt.Errorf("redis counter store not initialized")
	}
	val, err := s.rdb.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return val, err
}

func (s *counterStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
