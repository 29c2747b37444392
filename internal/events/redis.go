package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ChannelPrefix prefixes every pub/sub channel.
const ChannelPrefix = "splitledger"

// Channel returns the pub/sub channel for a target, e.g. "splitledger:member:42".
func Channel(t Target) string {
	return ChannelPrefix + ":" + string(t.Kind) + ":" + t.ID
}

// BreakerSettings tunes the circuit breaker around publishing.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// DefaultBreakerSettings opens after 5 straight failures for 30 seconds.
var DefaultBreakerSettings = BreakerSettings{ConsecutiveFailures: 5, Timeout: 30 * time.Second}

// RedisPublisher publishes envelopes as JSON on per-target channels so that
// connected clients (websocket gateways, mobile push workers) can subscribe.
type RedisPublisher struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
}

// NewRedisPublisher wraps client with a circuit breaker so a Redis outage does
// not stall the dispatcher on every event.
func NewRedisPublisher(client redis.UniversalClient, settings BreakerSettings, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings.ConsecutiveFailures
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-publisher",
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &RedisPublisher{client: client, breaker: cb}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.client.Publish(ctx, Channel(env.Target), data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Type, err)
	}
	return nil
}

// State reports the breaker state, e.g. for health checks.
func (p *RedisPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
