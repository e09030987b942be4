package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Cache is an expiring key/value store keyed by call signature. Entries
// expire lazily: an expired entry is dropped the next time it is read, and
// nothing sweeps in the background. There is no size bound; the key space is
// a handful of operation families times a modest set of arguments.
type Cache struct {
	items  *ttlcache.Cache[string, any]
	flight singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		items: ttlcache.New[string, any](
			ttlcache.WithDisableTouchOnHit[string, any](),
		),
	}
}

// Key builds a cache key from an operation name and its arguments.
// Strings are trimmed and lower-cased so equivalent searches share entries.
func Key(op string, args ...any) string {
	var sb strings.Builder
	sb.WriteString(op)
	for _, a := range args {
		sb.WriteByte('|')
		switch v := a.(type) {
		case nil:
			sb.WriteString("-")
		case string:
			sb.WriteString(strings.ToLower(strings.TrimSpace(v)))
		case *int64:
			if v == nil {
				sb.WriteString("-")
			} else {
				fmt.Fprintf(&sb, "%d", *v)
			}
		default:
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	return sb.String()
}

// Get returns the value for key. Absent and expired entries are misses;
// an expired entry is evicted on the way out.
func (c *Cache) Get(key string) (any, bool) {
	item := c.items.Get(key)
	if item == nil {
		c.items.Delete(key)
		return nil, false
	}
	if !time.Now().Before(item.ExpiresAt()) {
		c.items.Delete(key)
		return nil, false
	}
	return item.Value(), true
}

// Set stores value for ttl. A ttl of zero or less removes the key instead,
// which lets configuration switch caching off for a resource family.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		c.items.Delete(key)
		return
	}
	c.items.Set(key, value, ttl)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.items.DeleteAll()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	return c.items.Len()
}

// GetOrLoad returns the cached value for key or calls load. Concurrent
// misses on the same key share one load, which runs without the caller's
// cancellation; a caller that gives up returns early and the others keep
// waiting. Errors are never cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	var zero T
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		value, err := load(detached)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, ttl)
		return value, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
