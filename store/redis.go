package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Store] backed by a Redis key pair.
//
//	Performance: Get is one MGET, Set one MULTI/EXEC, Clear one DEL.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	keys   Keys
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store. prefix namespaces both keys
// ("<prefix>:<key>"); a ttl of zero keeps tokens until cleared.
func NewRedis(client redis.UniversalClient, prefix string, keys Keys, ttl time.Duration) *Redis {
	return &Redis{
		redis:  client,
		prefix: prefix,
		keys:   keys.normalize(),
		ttl:    ttl,
	}
}

func (s *Redis) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

func (s *Redis) Get(ctx context.Context) (Pair, error) {
	values, err := s.redis.MGet(ctx, s.key(s.keys.Access), s.key(s.keys.Refresh)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var pair Pair
	if len(values) > 0 {
		pair.Access, _ = values[0].(string)
	}
	if len(values) > 1 {
		pair.Refresh, _ = values[1].(string)
	}
	return pair, nil
}

func (s *Redis) Set(ctx context.Context, pair Pair) error {
	accessKey := s.key(s.keys.Access)
	refreshKey := s.key(s.keys.Refresh)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if pair.Access == "" {
			pipe.Del(ctx, accessKey)
		} else {
			pipe.Set(ctx, accessKey, pair.Access, s.ttl)
		}
		if pair.Refresh == "" {
			pipe.Del(ctx, refreshKey)
		} else {
			pipe.Set(ctx, refreshKey, pair.Refresh, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key(s.keys.Access), s.key(s.keys.Refresh)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping measures round-trip latency to Redis.
func (s *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
