package engine

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 30 * time.Minute

// cacheKey joins the lookup name and its arguments verbatim. Identifiers in share URLs are case-sensitive.
func cacheKey(lookup string, parts ...string) string {
	return lookup + "|" + strings.Join(parts, "|")
}

// responseCache holds engine responses for idempotent lookups, keyed by [cacheKey].
type responseCache[V any] struct {
	useCase string
	cache   *gocache.Cache
	logger  *log.Logger
}

func newResponseCache[V any](useCase string, ttl, cleanup time.Duration, logger *log.Logger) *responseCache[V] {
	return &responseCache[V]{
		useCase: useCase,
		cache:   gocache.New(ttl, cleanup),
		logger:  logger,
	}
}

func (c *responseCache[V]) Get(key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		c.logger.Error("wrong type in cache", "cache", c.useCase, "key", key)
		return zero, false
	}

	c.logger.Debug("cache hit", "cache", c.useCase, "key", key)
	return v, true
}

func (c *responseCache[V]) Set(key string, value V) {
	c.cache.Set(key, value, gocache.DefaultExpiration)
}

func (c *responseCache[V]) Len() int {
	return c.cache.ItemCount()
}

func (c *responseCache[V]) Flush() {
	c.cache.Flush()
}
