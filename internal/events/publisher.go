// Package events publishes signal lifecycle events to Redis so dashboards
// and other consumers can follow emissions and resolutions live. Each event
// is written to a latest-value key and fanned out over pub/sub. Publishing
// is best-effort: failures are logged, counted, and shielded by a circuit
// breaker, but never fail the signal pipeline.
package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const latestTTL = 30 * time.Minute

// Publisher writes signal events to Redis behind a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	breaker *Breaker
}

// NewPublisher connects to Redis and pings it.
func NewPublisher(addr, password string) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[events] connected to redis at %s", addr)
	return &Publisher{
		client:  client,
		breaker: NewBreaker(5, 10*time.Second),
	}, nil
}

// Breaker exposes the circuit breaker for metrics wiring.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// Client exposes the underlying Redis client for liveness checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishSignal publishes the signal's current state. Called on emission
// and again on resolution; consumers distinguish the two by the result
// field. Errors are swallowed after logging.
func (p *Publisher) PublishSignal(ctx context.Context, sig *model.Signal) {
	payload := string(sig.JSON())
	latestKey := "signal:latest:" + sig.Pair
	channel := "pub:signal:" + sig.Pair

	err := p.breaker.Do(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, latestKey, payload, latestTTL)
		pipe.Publish(ctx, channel, payload)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrBreakerOpen {
		log.Printf("[events] publish signal %s: %v", sig.ID, err)
	}
}

// Close closes the Redis connection.
func (p *Publisher) Close() error { return p.client.Close() }
