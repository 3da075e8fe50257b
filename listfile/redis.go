package listfile

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// RedisBacked wraps a Cache with a shared-cache tier so multiple worker
// processes don't each cold-start a multi-megabyte listfile fetch.
// Resolve asks redis first and falls back to the in-process Cache only on
// a redis miss or error.
type RedisBacked struct {
	*Cache
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBacked wraps cache with a redis-backed negative/positive lookup
// tier at addr, namespaced by keyPrefix (e.g. the product name), so a
// resolved id found by one worker is visible to siblings without a
// refetch.
func NewRedisBacked(cache *Cache, addr, keyPrefix string) *RedisBacked {
	return &RedisBacked{
		Cache:     cache,
		rdb:       redis.NewClient(&redis.Options{Addr: addr}),
		keyPrefix: keyPrefix,
		ttl:       NegativeCooldown,
	}
}

// Resolve consults the shared redis tier before falling back to the
// wrapped in-process Cache, and populates redis on a fresh resolution so
// sibling workers benefit.
func (r *RedisBacked) Resolve(ctx context.Context, path string) (uint32, bool, error) {
	cacheKey := r.keyPrefix + ":" + path

	if v, err := r.rdb.Get(ctx, cacheKey).Result(); err == nil {
		if v == "" {
			return 0, false, nil
		}
		if id, parseErr := strconv.ParseUint(v, 10, 32); parseErr == nil {
			return uint32(id), true, nil
		}
	}

	id, ok, err := r.Cache.Resolve(ctx, path)
	if err != nil {
		return 0, false, errs.WrapFmt(err, "listfile: redis-backed resolve fallback for %s", path)
	}

	if ok {
		_ = r.rdb.Set(ctx, cacheKey, strconv.FormatUint(uint64(id), 10), r.ttl).Err()
	} else {
		_ = r.rdb.Set(ctx, cacheKey, "", r.ttl).Err()
	}
	return id, ok, nil
}
