package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// CachedProvider wraps another provider with a Redis read-through cache.
// Only successful lookups are cached; unknown symbols and provider failures
// always go back to the source. A nil client makes the cache a passthrough
// so deployments without Redis keep working.
type CachedProvider struct {
	next Provider
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedProvider wraps next with a Redis cache using the given TTL.
func NewCachedProvider(next Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
	}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("quote:%s", strings.ToUpper(symbol))
}

func (p *CachedProvider) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	if p.rdb == nil {
		return p.next.Lookup(ctx, symbol)
	}

	if cached, err := p.rdb.Get(ctx, cacheKey(symbol)).Result(); err == nil {
		var q Quote
		if err := json.Unmarshal([]byte(cached), &q); err == nil {
			return &q, nil
		}
		// Unreadable entry, fall through to the source
	}

	q, err := p.next.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(q)
	if err == nil {
		if err := p.rdb.Set(ctx, cacheKey(symbol), payload, p.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache quote")
		}
	}

	return q, nil
}
