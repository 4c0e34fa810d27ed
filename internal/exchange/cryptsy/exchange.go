package cryptsy

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingsmao/exchange-gateway/internal/cache"
	"github.com/kingsmao/exchange-gateway/internal/manager"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// Gateway bundles the Cryptsy components behind the capability interfaces.
type Gateway struct {
	cfg       Config
	rest      interfaces.RESTClient
	directory *CurrencyDirectory
	positions *PositionSync
	market    *MarketDataSync
	orders    *OrderLifecycle
	manager   *manager.Manager
}

var _ interfaces.CombinedGateway = (*Gateway)(nil)

// NewGateway wires a gateway that talks to the exchange configured in cfg.
func NewGateway(cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	api := NewAPIClient(cfg.Credentials, cfg.RequestTimeout)
	return NewGatewayWithREST(NewREST(api), cfg)
}

// NewGatewayWithREST wires a gateway on top of an existing REST client.
func NewGatewayWithREST(rest interfaces.RESTClient, cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	mgr := manager.NewManager(nil)
	dir := NewCurrencyDirectory(rest, cfg.Currencies, cache.NewCatalogCache())

	g := &Gateway{
		cfg:       cfg,
		rest:      rest,
		directory: dir,
		positions: NewPositionSync(rest, dir, cfg.Currencies, cfg.PositionInterval),
		market:    NewMarketDataSync(rest, mgr.Cache(), cfg),
		orders:    NewOrderLifecycle(rest, cfg),
		manager:   mgr,
	}
	g.manager.AddComponent(g.positions)
	g.manager.AddComponent(g.market)
	g.manager.AddComponent(g.orders)
	return g
}

// NewFromProvider reads the configuration from p and builds a gateway.
func NewFromProvider(p interfaces.ConfigProvider) (*Gateway, error) {
	cfg, err := ConfigFromProvider(p)
	if err != nil {
		return nil, err
	}
	return NewGateway(cfg), nil
}

// Start resolves the market id and starts every component. When the market
// cannot be resolved, market data is unregistered; positions still run and
// orders are rejected.
func (g *Gateway) Start(ctx context.Context) error {
	marketID, err := g.ResolveMarketID(ctx)
	if err != nil {
		logger.Error("Cryptsy 市场ID解析失败，停用行情同步: %v", err)
		_ = g.manager.RemoveComponent(g.market.Name())
	} else {
		g.market.SetMarketID(marketID)
		g.orders.SetMarketID(marketID)
		logger.Info("Cryptsy 交易对 %s 对应市场ID %s", g.cfg.Pair, marketID)
	}
	return g.manager.StartAll(ctx)
}

// ResolveMarketID returns the configured market id, or looks the pair up
// in the market list by label and then by currency ids.
func (g *Gateway) ResolveMarketID(ctx context.Context) (string, error) {
	if g.cfg.MarketID != "" {
		return g.cfg.MarketID, nil
	}

	markets, err := g.rest.GetMarkets(ctx)
	if err != nil {
		return "", fmt.Errorf("list markets: %w", err)
	}
	label := g.cfg.Pair.String()
	for _, m := range markets {
		if strings.EqualFold(strings.TrimSpace(m.Label), label) {
			return m.ID.String(), nil
		}
	}

	mapping, err := g.directory.Cached(ctx, g.cfg.CatalogTTL)
	if err != nil {
		return "", fmt.Errorf("market %s not listed by label: %w", label, err)
	}
	baseID, okBase := mapping.IDFor(g.cfg.Pair.Base)
	quoteID, okQuote := mapping.IDFor(g.cfg.Pair.Quote)
	if okBase && okQuote {
		for _, m := range markets {
			if m.CoinCurrencyID.String() == baseID && m.MarketCurrencyID.String() == quoteID {
				return m.ID.String(), nil
			}
		}
	}
	return "", fmt.Errorf("market %s not found", label)
}

// Close stops the live trade feed if market data was started.
func (g *Gateway) Close() error {
	feed := g.market.Feed()
	if feed == nil {
		return nil
	}
	if info, ok := g.manager.GetComponent(g.market.Name()); !ok || !info.Started {
		return nil
	}
	return feed.Close()
}

func (g *Gateway) MarketDataGateway() interfaces.MarketDataGateway { return g.market }
func (g *Gateway) OrderEntryGateway() interfaces.OrderEntryGateway { return g.orders }
func (g *Gateway) PositionGateway() interfaces.PositionGateway     { return g.positions }
func (g *Gateway) Details() interfaces.ExchangeDetailsGateway      { return Details{} }

func (g *Gateway) Config() Config                { return g.cfg }
func (g *Gateway) Directory() *CurrencyDirectory { return g.directory }
func (g *Gateway) MarketData() *MarketDataSync   { return g.market }
func (g *Gateway) Orders() *OrderLifecycle       { return g.orders }
func (g *Gateway) Positions() *PositionSync      { return g.positions }
func (g *Gateway) Components() []string          { return g.manager.Names() }

// OpenOrders lists every open order on the account.
func (g *Gateway) OpenOrders(ctx context.Context) ([]schema.OrderStatusReport, error) {
	return g.orders.OpenOrders(ctx)
}

// TradeHistory returns the account's own trades across all markets.
func (g *Gateway) TradeHistory(ctx context.Context) ([]schema.MarketTrade, error) {
	list, err := g.rest.GetAllTradeHistory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.MarketTrade, 0, len(list))
	for _, tr := range list {
		side, err := SideFromInitiator(tr.InitiateOrderType)
		if err != nil {
			logger.Debug("Cryptsy 账户成交 %s 跳过: %v", tr.TradeID, err)
			continue
		}
		out = append(out, schema.MarketTrade{
			Exchange:     schema.CRYPTSY,
			Pair:         g.cfg.Pair,
			Price:        tr.TradePrice,
			Quantity:     tr.Quantity,
			Time:         tradeTime(tr.UnixSeconds(), tr.Datetime),
			IsHistorical: true,
			Side:         side,
		})
	}
	return out, nil
}

// LatestBook returns the last order book snapshot.
func (g *Gateway) LatestBook() (schema.Depth, bool) {
	return g.market.LatestBook()
}
