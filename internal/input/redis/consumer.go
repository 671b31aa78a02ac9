package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"soctrace/internal/ingest"
	"soctrace/internal/metrics"
	"soctrace/pkg/models"
)

// Config configures the Redis raw-log source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxDrain int
}

// Consumer drains raw JSON log lines from a Redis list.
type Consumer struct {
	client   *redis.Client
	key      string
	maxDrain int
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.MaxDrain <= 0 {
		cfg.MaxDrain = 100000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:   client,
		key:      cfg.Key,
		maxDrain: cfg.MaxDrain,
	}, nil
}

// DrainEvents pops every pending line from the list (up to the configured
// limit) and normalizes it. The engine operates on finished batches, so the
// drain stops as soon as the list is empty; lines that fail to normalize are
// dropped.
func (c *Consumer) DrainEvents(ctx context.Context) ([]models.Event, error) {
	events := make([]models.Event, 0, 256)
	for len(events) < c.maxDrain {
		line, err := c.client.LPop(ctx, c.key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pop %s: %w", c.key, err)
		}
		if event, ok := ingest.ParseJSONLine(line, "redis:"+c.key); ok {
			events = append(events, event)
		}
	}
	ingest.SortEvents(events)
	metrics.EventsIngested.WithLabelValues("redis").Add(float64(len(events)))
	return events, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
