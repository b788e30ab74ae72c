package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const DefaultAlertsTTL = 5 * time.Minute

// CachedAlerts memoizes alert analyses per number of days. Failures are
// never cached.
type CachedAlerts struct {
	next  AlertAnalyzer
	cache *cache.Cache
}

var _ AlertAnalyzer = &CachedAlerts{}

func NewCachedAlerts(next AlertAnalyzer, ttl time.Duration) *CachedAlerts {
	if ttl <= 0 {
		ttl = DefaultAlertsTTL
	}
	return &CachedAlerts{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedAlerts) AnalyzeAlerts(ctx context.Context, days int) (*AlertAnalysis, error) {
	key := strconv.Itoa(days)
	if v, found := c.cache.Get(key); found {
		if a, ok := v.(*AlertAnalysis); ok {
			log.Debug().Int("dias", days).Msg("alert analysis served from cache")
			cp := *a
			return &cp, nil
		}
	}

	a, err := c.next.AnalyzeAlerts(ctx, days)
	if err != nil {
		return nil, err
	}
	cp := *a
	c.cache.Set(key, &cp, cache.DefaultExpiration)
	return a, nil
}

// Invalidate drops every cached analysis.
func (c *CachedAlerts) Invalidate() {
	c.cache.Flush()
}
