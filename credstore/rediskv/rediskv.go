// Package rediskv backs the credential store with Redis, for deployments
// where sessions are shared across hosts (kiosks, embedded fleets).
package rediskv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/orbitlabs/go-session-client/credstore"
)

var _ credstore.KV = (*KV)(nil)

// KV stores values under a configurable key prefix.
type KV struct {
	client *redis.Client
	prefix string
}

// New creates a Redis KV from a redis URL (redis://... or rediss://...).
func New(redisURL, prefix string) (*KV, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[rediskv.New] parse redis URL")
	}
	return &KV{client: redis.NewClient(opt), prefix: prefix}, nil
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *redis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	value, err := kv.client.Get(ctx, kv.prefix+key).Result()
	if err == redis.Nil {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[rediskv.Get]")
	}
	return value, nil
}

func (kv *KV) Set(ctx context.Context, key, value string) error {
	if err := kv.client.Set(ctx, kv.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "[rediskv.Set]")
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := kv.client.Del(ctx, kv.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "[rediskv.Delete]")
	}
	return nil
}

// Close releases the underlying client.
func (kv *KV) Close() error {
	return kv.client.Close()
}
