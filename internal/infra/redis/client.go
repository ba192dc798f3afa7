package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Client wraps the Redis connection used for failed-outcome queues.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewClient creates a new Redis client and waits for it to answer a ping.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	backoff := retry.WithMaxRetries(4, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "batchfetch"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) failedKey(batchID string) string {
	return fmt.Sprintf("%s:failed_outcomes:%s", c.prefix, batchID)
}

func (c *Client) batchesKey() string {
	return fmt.Sprintf("%s:failed_batches", c.prefix)
}
