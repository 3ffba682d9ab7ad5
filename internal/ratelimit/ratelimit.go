package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ladiesman540/crane-platform/internal/apperr"
)

type LimiterConfig struct {
	RPS   int
	Burst int
}

// Limiter decides whether one more request for key fits the bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware rejects requests over the limit with 429. An empty key skips
// limiting. Limiter errors fail open so a redis outage never blocks ingest.
func Middleware(l Limiter, prefix string, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := keyFunc(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := l.Allow(r.Context(), prefix+":"+k)
			if err != nil {
				slog.Warn("rate limiter unavailable", "prefix", prefix, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				apperr.WriteError(w, apperr.TooManyRequests("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedisLimiter shares buckets across replicas.
type RedisLimiter struct {
	Redis  *redis.Client
	Config LimiterConfig
}

func NewRedis(client *redis.Client, cfg LimiterConfig) *RedisLimiter {
	return &RedisLimiter{Redis: client, Config: cfg}
}

// KEYS[1] = bucket, ARGV = burst, refill per second, now in ms.
var tokenBucket = redis.NewScript(`
local tokens_key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local bucket = redis.call('HMGET', tokens_key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or max_tokens
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last) / 1000
local refill = math.floor(delta * refill_rate)
tokens = math.min(max_tokens, tokens + refill)
if refill > 0 then
  last = now
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', tokens_key, 'tokens', tokens, 'last', last)
redis.call('EXPIRE', tokens_key, 60)
return allowed
`)

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := tokenBucket.Run(ctx, rl.Redis, []string{key}, rl.Config.Burst, rl.Config.RPS, now).Int64()
	if err != nil {
		return false, err
	}
	slog.Debug("token bucket", "key", key, "allowed", res, "max", rl.Config.Burst, "rps", rl.Config.RPS)
	return res == 1, nil
}

// LocalLimiter keeps one x/time/rate bucket per key in process memory.
type LocalLimiter struct {
	cfg LimiterConfig

	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLocal(cfg LimiterConfig) *LocalLimiter {
	return &LocalLimiter{cfg: cfg, buckets: map[string]*localBucket{}}
}

const idleBucket = 10 * time.Minute

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) > 1024 {
			for k, old := range l.buckets {
				if now.Sub(old.seen) > idleBucket {
					delete(l.buckets, k)
				}
			}
		}
		b = &localBucket{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

// KeyByIP keys on the client address; run chi's RealIP first behind a proxy.
func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyByHeader keys on a request header such as X-API-Key.
func KeyByHeader(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}
