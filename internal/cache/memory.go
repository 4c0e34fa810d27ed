package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// MemoryCache is a threadsafe in-memory store for the latest market data.
// 快照整体替换，读写均为原子指针操作
type MemoryCache struct {
	depths sync.Map // map[string]*atomic.Pointer[schema.Depth]
	trades sync.Map // map[string]*atomic.Pointer[schema.MarketTrade]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// cacheKey generates a cache key for exchange-specific data
func cacheKey(exchange schema.ExchangeName, pair schema.CurrencyPair) string {
	return fmt.Sprintf("%s:%s", exchange, pair)
}

func (m *MemoryCache) SetDepth(d schema.Depth) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	ptr, _ := m.depths.LoadOrStore(cacheKey(d.Exchange, d.Pair), new(atomic.Pointer[schema.Depth]))
	ptr.(*atomic.Pointer[schema.Depth]).Store(&d)
}

func (m *MemoryCache) GetDepth(exchange schema.ExchangeName, pair schema.CurrencyPair) (schema.Depth, bool) {
	if ptr, ok := m.depths.Load(cacheKey(exchange, pair)); ok {
		if d := ptr.(*atomic.Pointer[schema.Depth]).Load(); d != nil {
			return *d, true
		}
	}
	return schema.Depth{}, false
}

// SetLastTrade 记录最新一笔成交（历史回补不覆盖实时成交）
func (m *MemoryCache) SetLastTrade(t schema.MarketTrade) {
	ptr, _ := m.trades.LoadOrStore(cacheKey(t.Exchange, t.Pair), new(atomic.Pointer[schema.MarketTrade]))
	p := ptr.(*atomic.Pointer[schema.MarketTrade])
	for {
		cur := p.Load()
		if cur != nil && t.IsHistorical && !cur.IsHistorical {
			return
		}
		if p.CompareAndSwap(cur, &t) {
			return
		}
	}
}

func (m *MemoryCache) GetLastTrade(exchange schema.ExchangeName, pair schema.CurrencyPair) (schema.MarketTrade, bool) {
	if ptr, ok := m.trades.Load(cacheKey(exchange, pair)); ok {
		if t := ptr.(*atomic.Pointer[schema.MarketTrade]).Load(); t != nil {
			return *t, true
		}
	}
	return schema.MarketTrade{}, false
}
