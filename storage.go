package goAuthClient

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goAuthClient/store"
	"github.com/redis/go-redis/v9"
)

// OpenStore builds the token store selected by cfg.Driver. The returned
// close function releases the Redis client and is a no-op for the other
// drivers. A Redis store is pinged before it is returned.
func OpenStore(ctx context.Context, cfg StorageConfig) (store.Store, func() error, error) {
	keys := store.Keys{Access: cfg.AccessKey, Refresh: cfg.RefreshKey}
	noop := func() error { return nil }

	switch cfg.Driver {
	case "memory":
		return store.NewMemory(keys), noop, nil
	case "file":
		return store.NewFile(cfg.FilePath, keys), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s := store.NewRedis(client, cfg.RedisPrefix, keys, cfg.RedisTTL)
		if _, err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, storageError("open redis store", err)
		}
		return s, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
