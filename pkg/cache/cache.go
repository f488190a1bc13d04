package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// GetOrLoad returns the cached value at key, or calls load and caches its
// result for ttl. Cache failures fall through to load; only load errors are
// returned.
func GetOrLoad[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var v T
	if c != nil {
		if err := c.Get(ctx, key, &v); err == nil {
			return v, true, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, false, err
	}
	if c != nil {
		_ = c.Set(ctx, key, v, ttl)
	}
	return v, false, nil
}
