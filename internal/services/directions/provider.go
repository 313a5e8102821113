package directions

import (
	"context"
	"log"

	"medwaste-backend/internal/routing"
)

// CachedProvider answers repeated requests from a cache. Cache failures are
// logged and fall through to the wrapped provider.
type CachedProvider struct {
	provider routing.Provider
	cache    Cache
}

func NewCachedProvider(provider routing.Provider, cache Cache) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache}
}

func (p *CachedProvider) Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.Directions, error) {
	key := Signature(req)

	if d, ok, err := p.cache.Get(ctx, key); err != nil {
		log.Printf("⚠️  Directions cache read failed: %v", err)
	} else if ok {
		return d, nil
	}

	d, err := p.provider.Directions(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, d); err != nil {
		log.Printf("⚠️  Directions cache write failed: %v", err)
	}
	return d, nil
}
