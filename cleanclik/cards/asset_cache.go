package cards

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// DefaultAssetCacheSize holds every kind x platform combination at once, so
// eviction only kicks in if the combination space grows.
const DefaultAssetCacheSize = 9

// AssetCache is a bounded LRU of template assets with single-flight
// construction: concurrent misses for the same key share one build instead
// of racing it.
type AssetCache struct {
	cache  *lru.Cache
	group  singleflight.Group
	build  func(TemplateKind, PlatformTarget) (*TemplateAsset, error)
	logger *slog.Logger
}

func NewAssetCache(capacity int) (*AssetCache, error) {
	if capacity <= 0 {
		capacity = DefaultAssetCacheSize
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}
	return &AssetCache{
		cache:  cache,
		build:  buildTemplateAsset,
		logger: slog.With(slog.String("service", "asset_cache")),
	}, nil
}

func (c *AssetCache) Get(ctx context.Context, kind TemplateKind, platform PlatformTarget) (*TemplateAsset, error) {
	key := string(kind) + ":" + string(platform)

	if v, ok := c.cache.Get(key); ok {
		return v.(*TemplateAsset), nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another flight may have inserted between the miss and
		// this call being the one elected to build.
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}

		asset, err := c.build(kind, platform)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, asset)

		c.logger.Debug("Template asset constructed",
			slog.String("template", string(kind)),
			slog.String("platform", string(platform)))
		return asset, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to build template asset %s: %w", key, err)
	}
	if shared {
		c.logger.Debug("Template asset construction shared",
			slog.String("key", key))
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return v.(*TemplateAsset), nil
}

// Len returns the number of cached assets.
func (c *AssetCache) Len() int {
	return c.cache.Len()
}
