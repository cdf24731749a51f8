package data

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// CachedProvider memoizes another provider by source for ttl, so batch
// backtests over the same file parse it once.
type CachedProvider struct {
	provider Provider
	cache    *cache.Cache
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps provider; ttl <= 0 keeps entries until Clear
func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &CachedProvider{provider: provider, cache: cache.New(ttl, 10*time.Minute)}
}

func (p *CachedProvider) Name() string { return "cached " + p.provider.Name() }

// Load returns a copy of the cached candles, loading them on a miss
func (p *CachedProvider) Load(source string) ([]types.OHLCV, error) {
	if v, ok := p.cache.Get(source); ok {
		return clone(v.([]types.OHLCV)), nil
	}
	candles, err := p.provider.Load(source)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(source, clone(candles))
	return candles, nil
}

// Size is the number of cached sources
func (p *CachedProvider) Size() int { return p.cache.ItemCount() }

// Clear drops every cached source
func (p *CachedProvider) Clear() { p.cache.Flush() }

func clone(in []types.OHLCV) []types.OHLCV {
	out := make([]types.OHLCV, len(in))
	copy(out, in)
	return out
}
