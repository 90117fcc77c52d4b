// Package redisstore keeps the session in Redis so that several terminals of
// one shop counter can share a login.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Client *redis.Client

	// KeyPrefix is prepended to every session key.
	// Default: "laundry:session:"
	KeyPrefix string
}

type Backend struct {
	client    *redis.Client
	keyPrefix string
}

func New(config Config) (*Backend, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "laundry:session:"
	}
	return &Backend{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

func (b *Backend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	vals, err := b.client.MGet(ctx, b.redisKeys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session keys: %w", err)
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (b *Backend) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, b.keyPrefix+k, v)
	}
	if err := b.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("failed to set session keys: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, b.redisKeys(keys)...).Err(); err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) redisKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = b.keyPrefix + k
	}
	return out
}
