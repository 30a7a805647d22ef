package earnings

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// =============================================================================
// CACHED REFERENCE FEEDS
// =============================================================================
// The reason list and the day's pay rates change rarely but are read on
// every board evaluation. Writers must Invalidate after changing them.

const reasonsCacheKey = "downtime-reasons"

type CachedReasonFeed struct {
	next  ReasonFeed
	cache *cache.Cache
}

var _ ReasonFeed = (*CachedReasonFeed)(nil)

func NewCachedReasonFeed(next ReasonFeed, ttl time.Duration) *CachedReasonFeed {
	return &CachedReasonFeed{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedReasonFeed) DowntimeReasons(ctx context.Context) ([]DowntimeReason, error) {
	if v, ok := c.cache.Get(reasonsCacheKey); ok {
		return cloneReasons(v.([]DowntimeReason)), nil
	}
	reasons, err := c.next.DowntimeReasons(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(reasonsCacheKey, cloneReasons(reasons))
	return reasons, nil
}

// Callers get their own slice; the cached one is never handed out.
func cloneReasons(reasons []DowntimeReason) []DowntimeReason {
	return append([]DowntimeReason(nil), reasons...)
}

func (c *CachedReasonFeed) Invalidate() { c.cache.Delete(reasonsCacheKey) }

// CachedDefaultsFeed caches found parameters per date. Misses are not
// cached so newly entered rates show up immediately.
type CachedDefaultsFeed struct {
	next  DefaultsFeed
	cache *cache.Cache
}

var _ DefaultsFeed = (*CachedDefaultsFeed)(nil)

func NewCachedDefaultsFeed(next DefaultsFeed, ttl time.Duration) *CachedDefaultsFeed {
	return &CachedDefaultsFeed{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedDefaultsFeed) DefaultsForDate(ctx context.Context, date Date) (*DefaultParameters, error) {
	key := date.String()
	if v, ok := c.cache.Get(key); ok {
		d := v.(DefaultParameters)
		return &d, nil
	}
	d, err := c.next.DefaultsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDefaultsNotFound
	}
	c.cache.SetDefault(key, *d)
	return d, nil
}

func (c *CachedDefaultsFeed) Invalidate(date Date) { c.cache.Delete(date.String()) }

func (c *CachedDefaultsFeed) Flush() { c.cache.Flush() }
