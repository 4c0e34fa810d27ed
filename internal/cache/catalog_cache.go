package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// CatalogLoader builds a fresh currency mapping from the exchange.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (schema.CurrencyMapping, error)
}

type catalogEntry struct {
	mapping   schema.CurrencyMapping
	updatedAt time.Time
}

// CatalogCache 管理币种映射的内存缓存
type CatalogCache struct {
	mu    sync.RWMutex
	cache map[schema.ExchangeName]catalogEntry
}

// NewCatalogCache 创建新的币种映射缓存
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{
		cache: make(map[schema.ExchangeName]catalogEntry),
	}
}

// Set 设置币种映射到缓存
func (c *CatalogCache) Set(exchange schema.ExchangeName, mapping schema.CurrencyMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.cache[exchange]
	c.cache[exchange] = catalogEntry{mapping: mapping, updatedAt: time.Now()}
	if !had || !prev.mapping.Equal(mapping) {
		logger.Info("币种映射已缓存: %s, 币种数量: %d", exchange, mapping.Len())
	}
}

// Get 从缓存获取币种映射
func (c *CatalogCache) Get(exchange schema.ExchangeName) (schema.CurrencyMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[exchange]
	return e.mapping, ok
}

// IsExpired 检查缓存是否过期（默认24小时）
func (c *CatalogCache) IsExpired(exchange schema.ExchangeName, expireDuration time.Duration) bool {
	if expireDuration == 0 {
		expireDuration = 24 * time.Hour
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[exchange]
	if !ok {
		return true
	}
	return time.Since(e.updatedAt) > expireDuration
}

// Refresh 通过 loader 刷新币种映射
func (c *CatalogCache) Refresh(ctx context.Context, exchange schema.ExchangeName, loader CatalogLoader) (schema.CurrencyMapping, error) {
	mapping, err := loader.LoadCatalog(ctx)
	if err != nil {
		return schema.CurrencyMapping{}, fmt.Errorf("failed to refresh currency catalog: %w", err)
	}
	c.Set(exchange, mapping)
	return mapping, nil
}

// RefreshIfExpired 如果缓存过期则刷新，否则返回缓存值
func (c *CatalogCache) RefreshIfExpired(ctx context.Context, exchange schema.ExchangeName, loader CatalogLoader, expireDuration time.Duration) (schema.CurrencyMapping, error) {
	if !c.IsExpired(exchange, expireDuration) {
		if m, ok := c.Get(exchange); ok {
			return m, nil
		}
	}
	return c.Refresh(ctx, exchange, loader)
}
