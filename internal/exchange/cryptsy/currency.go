package cryptsy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kingsmao/exchange-gateway/internal/cache"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// CurrencyDirectory maps exchange currency ids to the supported engine currencies.
type CurrencyDirectory struct {
	rest      interfaces.RESTClient
	supported map[schema.Currency]struct{}
	cache     *cache.CatalogCache
}

func NewCurrencyDirectory(rest interfaces.RESTClient, supported []schema.Currency, c *cache.CatalogCache) *CurrencyDirectory {
	if c == nil {
		c = cache.NewCatalogCache()
	}
	set := make(map[schema.Currency]struct{}, len(supported))
	for _, cur := range supported {
		set[cur] = struct{}{}
	}
	return &CurrencyDirectory{rest: rest, supported: set, cache: c}
}

// LoadCatalog fetches the catalog and builds a mapping restricted to the
// supported currencies. It does not touch the cache.
func (d *CurrencyDirectory) LoadCatalog(ctx context.Context) (schema.CurrencyMapping, error) {
	list, err := d.rest.GetCurrencies(ctx)
	if err != nil {
		return schema.CurrencyMapping{}, err
	}

	entries := make(map[string]schema.Currency)
	for i, item := range list {
		id := strings.TrimSpace(item.ID.String())
		code := schema.Currency(strings.ToUpper(strings.TrimSpace(item.Code)))
		if id == "" || code == "" {
			return schema.CurrencyMapping{}, &schema.CatalogParseError{
				Reason: fmt.Sprintf("entry %d missing id or code", i),
			}
		}
		if _, ok := d.supported[code]; !ok {
			continue
		}
		entries[id] = code
	}
	return schema.NewCurrencyMapping(entries), nil
}

// Refresh fetches a fresh mapping and stores it as the current one.
func (d *CurrencyDirectory) Refresh(ctx context.Context) (schema.CurrencyMapping, error) {
	return d.cache.Refresh(ctx, schema.CRYPTSY, d)
}

// Cached returns the current mapping while it is younger than ttl and
// refreshes it otherwise.
func (d *CurrencyDirectory) Cached(ctx context.Context, ttl time.Duration) (schema.CurrencyMapping, error) {
	return d.cache.RefreshIfExpired(ctx, schema.CRYPTSY, d, ttl)
}

// Current returns the last successfully refreshed mapping.
func (d *CurrencyDirectory) Current() (schema.CurrencyMapping, bool) {
	return d.cache.Get(schema.CRYPTSY)
}

// IDFor resolves c against the current mapping.
func (d *CurrencyDirectory) IDFor(c schema.Currency) (string, bool) {
	m, ok := d.Current()
	if !ok {
		return "", false
	}
	return m.IDFor(c)
}

// Supported returns whether c is in the configured currency set.
func (d *CurrencyDirectory) Supported(c schema.Currency) bool {
	_, ok := d.supported[c]
	return ok
}
