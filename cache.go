package permit

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ============================================================================
// DECISION CACHE
// ============================================================================

const (
	defaultCacheTTL         = 5 * time.Minute
	defaultCacheNumCounters = 100_000
	defaultCacheMaxCost     = 10_000
	defaultCacheBuffer      = 64
)

// DecisionCache memoizes recent decisions in a ristretto cache. Entries
// expire on a short TTL (subscription and feature attributes change) and the
// whole cache is cleared on any policy mutation; selective invalidation is
// not worth the complexity at policy write rates.
type DecisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*DecisionCache, error) {
	if numCounters <= 0 {
		numCounters = defaultCacheNumCounters
	}
	if maxCost <= 0 {
		maxCost = defaultCacheMaxCost
	}
	if bufferItems <= 0 {
		bufferItems = defaultCacheBuffer
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &DecisionCache{cache: c, ttl: ttl}, nil
}

func (c *DecisionCache) Get(key string) (*Decision, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Decision), true
}

func (c *DecisionCache) Set(key string, d *Decision) {
	c.cache.SetWithTTL(key, d, 1, c.ttl)
}

// Invalidate drops every cached decision.
func (c *DecisionCache) Invalidate() {
	c.cache.Clear()
}

// Wait flushes ristretto's set buffers. Tests use it to observe writes
// deterministically.
func (c *DecisionCache) Wait() {
	c.cache.Wait()
}

// CacheKey builds the normalized request signature. Beyond subject, tenant,
// resource and action it includes only the values of attributes some loaded
// rule for this action actually references, keeping cardinality bounded.
func CacheKey(req *Request, relevantAttrs []string) string {
	var b strings.Builder
	b.Grow(len(req.SubjectID) + len(req.TenantID) + len(req.Resource) + len(req.Action) + 16)
	b.WriteString(req.SubjectID)
	b.WriteByte('|')
	b.WriteString(req.TenantID)
	b.WriteByte('|')
	b.WriteString(req.Resource)
	b.WriteByte('|')
	b.WriteString(req.Action)
	for _, name := range relevantAttrs {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(req.Attrs[name])
	}
	return b.String()
}
