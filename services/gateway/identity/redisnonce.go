package identity

import (
	"context"
	"time"

	"github.com/latticegw/mcp-gateway/services/gateway/redisclient"
)

// RedisNonceStore implements nonceStore against the shared Redis client.
// SETNX gives atomic check-and-set semantics: the first caller to see a
// given (token_hash, nonce) pair wins, every subsequent caller within the
// window observes a replay.
type RedisNonceStore struct {
	client *redisclient.Client
}

func NewRedisNonceStore(client *redisclient.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (r *RedisNonceStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.C.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true when the key was newly set (not seen before).
	return !ok, nil
}
