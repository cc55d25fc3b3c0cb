package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Skotchmaster/online_catalog/internal/logging"
)

// Fetch returns the cached value under key, or loads it and fills the cache.
// The cache is never a dependency: read or write failures are logged and the
// loader's result is returned. Loader errors are returned as-is and never cached.
//
// There is no single-flight and no versioning: a miss that loads just before a
// concurrent mutation commits may write its older snapshot after the
// Invalidator has already dropped the key. That stale entry lives at most ttl.
func Fetch[T any](ctx context.Context, s Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	l := logging.FromContext(ctx).With("component", "cache", "key", key)

	raw, err := s.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal(raw, &v)
		if uerr == nil {
			return v, nil
		}
		l.Warn("cache_decode_failed", "error", uerr)
	case !errors.Is(err, ErrMiss):
		l.Warn("cache_get_failed", "error", err)
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		l.Warn("cache_encode_failed", "error", err)
		return v, nil
	}
	if err := s.Set(ctx, key, b, ttl); err != nil {
		l.Warn("cache_set_failed", "error", err)
	}
	return v, nil
}
