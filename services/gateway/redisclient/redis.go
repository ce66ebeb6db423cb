// Package redisclient wraps the Redis client that backs the identity
// service's nonce replay ledger. The rate limiter and the quota tracker
// keep their state in process and do not use it.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/latticegw/mcp-gateway/services/gateway/config"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	C *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{C: redis.NewClient(opt)}, nil
}

func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.C.Ping(ctx).Err()
}

func (r *Client) Close() error {
	return r.C.Close()
}
