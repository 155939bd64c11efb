package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces lease keys; the credential fingerprint is appended.
const RedisKeyPrefix = "audisto:gate:"

// Defaults for the redis lease.
const (
	// DefaultLeaseTTL outlives one request attempt (120s timeout) with margin.
	// The lease is renewed while held, so long retry sequences keep it.
	DefaultLeaseTTL = 150 * time.Second

	// DefaultPollInterval is how often a waiter retries SET NX.
	DefaultPollInterval = 100 * time.Millisecond
)

// releaseScript deletes the lease only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if the caller still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLeaseLost is logged when a held lease expired or was taken over.
var ErrLeaseLost = errors.New("redis lease lost")

// RedisConfig holds redis gate configuration.
type RedisConfig struct {
	// Fingerprint identifies the credential (never the raw key).
	Fingerprint string

	// LeaseTTL bounds how long a crashed holder blocks others.
	LeaseTTL time.Duration

	// PollInterval between acquisition attempts.
	PollInterval time.Duration
}

// Redis is a gate shared by every process using the same redis and credential.
// It covers several adapter instances running with one API key, which an
// in-process gate cannot.
type Redis struct {
	redis  *redis.Client
	key    string
	config RedisConfig
	logger zerolog.Logger
}

// NewRedis creates a redis-backed gate.
func NewRedis(redisClient *redis.Client, cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Fingerprint == "" {
		return nil, fmt.Errorf("credential fingerprint is required")
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Redis{
		redis:  redisClient,
		key:    RedisKeyPrefix + cfg.Fingerprint,
		config: cfg,
		logger: logger,
	}, nil
}

// Key returns the redis key guarding this gate.
func (g *Redis) Key() string {
	return g.key
}

// Acquire implements Gate by polling SET NX PX until the lease is taken.
func (g *Redis) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	token := uuid.NewString()

	for {
		ok, err := g.redis.SetNX(ctx, g.key, token, g.config.LeaseTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire redis lease: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(g.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	waited := time.Since(start)
	gateWaitSeconds.WithLabelValues("redis").Observe(waited.Seconds())
	gateInFlight.WithLabelValues("redis").Inc()
	g.logger.Debug().Dur("waited", waited).Msg("Acquired redis lease")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.renew(token, stop)
	}()

	return sync.OnceFunc(func() {
		close(stop)
		wg.Wait()
		gateInFlight.WithLabelValues("redis").Dec()

		// Release must succeed even when the request context is already done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.redis, []string{g.key}, token).Err(); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to release redis lease")
		}
	}), nil
}

// renew keeps the lease alive at a third of its TTL until stop is closed.
func (g *Redis) renew(token string, stop <-chan struct{}) {
	ticker := time.NewTicker(g.config.LeaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := renewScript.Run(ctx, g.redis, []string{g.key}, token, g.config.LeaseTTL.Milliseconds()).Int64()
			cancel()
			if err != nil {
				g.logger.Warn().Err(err).Msg("Failed to renew redis lease")
				continue
			}
			if n == 0 {
				g.logger.Error().Err(ErrLeaseLost).Msg("Redis lease expired while held")
				return
			}
		}
	}
}
