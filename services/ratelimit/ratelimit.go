package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
)

// Result is the outcome of a hit against a limit.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// window returns the index of the window containing `now` & the time left in it.
func window(now time.Time, size time.Duration) (int64, time.Duration) {
	n := now.UnixNano()
	return n / int64(size), size - time.Duration(n%int64(size))
}

func result(count int64, limit int, resetIn time.Duration) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= int64(limit), Limit: limit, Remaining: remaining, ResetIn: resetIn}
}

// RedisLimiter shares counters between instances of the API through redis.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	size    time.Duration
	prefix  string
	nowFunc func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, limit int, size time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		size:    size,
		prefix:  "ratelimit:",
		nowFunc: time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	idx, resetIn := window(l.nowFunc(), l.size)
	k := l.prefix + key + ":" + strconv.FormatInt(idx, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.size)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, errors.Wrap(err, "counting hit")
	}
	return result(incr.Val(), l.limit, resetIn), nil
}

// MemoryLimiter keeps counters in process; used without redis.
type MemoryLimiter struct {
	limit   int
	size    time.Duration
	nowFunc func() time.Time

	mu     sync.Mutex
	idx    int64
	counts map[string]int64
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(limit int, size time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		size:    size,
		nowFunc: time.Now,
		counts:  make(map[string]int64),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	idx, resetIn := window(l.nowFunc(), l.size)

	l.mu.Lock()
	defer l.mu.Unlock()
	if idx != l.idx { // new window
		l.idx = idx
		l.counts = make(map[string]int64)
	}
	l.counts[key]++
	return result(l.counts[key], l.limit, resetIn), nil
}

// New returns a redis limiter when a redis URL is configured, an in-memory one otherwise.
func New(conf *core.Config) (Limiter, error) {
	limit, size := conf.RateLimit.Requests, conf.RateLimit.Window
	if limit <= 0 {
		limit = 10
	}
	if size <= 0 {
		size = time.Minute
	}
	if conf.RedisURL == "" {
		return NewMemoryLimiter(limit, size), nil
	}

	opts, err := redis.ParseURL(conf.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	return NewRedisLimiter(redis.NewClient(opts), limit, size), nil
}
