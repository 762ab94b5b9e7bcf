package services

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local info = redis.call("HMGET", key, "tokens", "last_refill")
	local tokens = tonumber(info[1])
	local last_refill = tonumber(info[2])

	if tokens == nil then
		tokens = capacity
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local filled = math.min(capacity, tokens + (delta / 1000 * rate))

	local allowed = 0
	if filled >= requested then
		filled = filled - requested
		allowed = 1
	end
	redis.call("HMSET", key, "tokens", filled, "last_refill", now)
	redis.call("EXPIRE", key, math.ceil(capacity / rate) * 2)

	return allowed
`)

// RateLimiter is a Redis token bucket shared by every API instance. Redis calls
// go through a circuit breaker; an open breaker surfaces as an Allow error.
type RateLimiter struct {
	client   *redis.Client
	cb       *gobreaker.CircuitBreaker
	rate     float64
	capacity int
	now      func() time.Time
}

// NewRateLimiter connects to Redis at addr. It returns nil when Redis cannot be
// reached; callers treat a nil limiter as "no limit".
func NewRateLimiter(addr string, rate float64, capacity int, log logrus.FieldLogger) *RateLimiter {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("redis at %s unreachable, rate limiting disabled: %v", addr, err)
		_ = client.Close()
		return nil
	}

	st := gobreaker.Settings{
		Name:        "RateLimitRedis",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	log.Infof("rate limiting auth endpoints via redis at %s", addr)
	return &RateLimiter{
		client:   client,
		cb:       gobreaker.NewCircuitBreaker(st),
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
	}
}

// Allow takes one token from the bucket named key.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	keys := []string{fmt.Sprintf("rate_limit:%s", key)}
	args := []interface{}{l.capacity, l.rate, l.now().UnixMilli(), 1}

	res, err := l.cb.Execute(func() (interface{}, error) {
		return tokenBucketScript.Run(ctx, l.client, keys, args...).Int64()
	})
	if err != nil {
		return false, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	return res.(int64) == 1, nil
}

func (l *RateLimiter) Close() error {
	return l.client.Close()
}
