// Package publish pushes the quotes of each scrape cycle to Redis so other
// processes can read the latest price or subscribe to updates.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockwatch/models"

	"github.com/redis/go-redis/v9"
)

// Key holds the latest quote of symbol as JSON.
func Key(symbol string) string { return "stock:" + symbol }

// Channel receives every new quote of symbol as JSON.
func Channel(symbol string) string { return "prices." + symbol }

type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedis publishes through client. Keys expire after ttl; zero keeps them.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Name() string { return "redis" }

// Publish writes all quotes in one round trip.
func (r *Redis) Publish(ctx context.Context, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode %s: %w", q.Symbol, err)
		}
		pipe.Set(ctx, Key(q.Symbol), payload, r.ttl)
		pipe.Publish(ctx, Channel(q.Symbol), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}
