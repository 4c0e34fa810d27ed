package cryptsy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingsmao/exchange-gateway/internal/cache"
	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const cryptsyDatetimeLayout = "2006-01-02 15:04:05"

// errNoMarket is returned when market data is started before the market id is known.
var errNoMarket = errors.New("cryptsy market id not resolved")

// MarketDataSync publishes order book snapshots and trade prints for one market.
type MarketDataSync struct {
	rest       interfaces.RESTClient
	cache      *cache.MemoryCache
	feed       *TradeFeed
	pair       schema.CurrencyPair
	depthLimit int
	interval   time.Duration

	mu       sync.RWMutex
	marketID string

	statusMu   sync.Mutex
	lastStatus *schema.ConnectivityStatus

	depth   *event.Topic[schema.Depth]
	trades  *event.Topic[schema.MarketTrade]
	connect *event.Topic[schema.ConnectivityStatus]
}

func NewMarketDataSync(rest interfaces.RESTClient, c *cache.MemoryCache, cfg Config) *MarketDataSync {
	cfg = cfg.withDefaults()
	if c == nil {
		c = cache.NewMemoryCache()
	}
	m := &MarketDataSync{
		rest:       rest,
		cache:      c,
		pair:       cfg.Pair,
		depthLimit: cfg.DepthLimit,
		interval:   cfg.SnapshotInterval,
		marketID:   cfg.MarketID,
		depth:      event.NewTopic[schema.Depth](),
		trades:     event.NewTopic[schema.MarketTrade](),
		connect:    event.NewTopic[schema.ConnectivityStatus](),
	}
	if cfg.WsURL != "" {
		m.feed = NewTradeFeed(cfg.WsURL, cfg.ReconnectBase, cfg.ReconnectMax, m.onFeedTrade, m.onFeedState)
		m.feed.SetStaleAfter(cfg.FeedStaleAfter)
	}
	return m
}

func (m *MarketDataSync) Name() string { return "cryptsy-market-data" }

func (m *MarketDataSync) MarketData() *event.Topic[schema.Depth]        { return m.depth }
func (m *MarketDataSync) MarketTrade() *event.Topic[schema.MarketTrade] { return m.trades }
func (m *MarketDataSync) ConnectChanged() *event.Topic[schema.ConnectivityStatus] {
	return m.connect
}

// Feed returns the live trade feed, or nil when no feed URL is configured.
func (m *MarketDataSync) Feed() *TradeFeed { return m.feed }

// SetMarketID switches the market. The live feed drops the previous
// market's channel and tracks the new one.
func (m *MarketDataSync) SetMarketID(id string) {
	m.mu.Lock()
	prev := m.marketID
	m.marketID = id
	m.mu.Unlock()

	if m.feed == nil || prev == "" || prev == id {
		return
	}
	ctx := context.Background()
	if err := m.feed.Unsubscribe(ctx, []string{tradeChannel(prev)}); err != nil {
		logger.Warn("Cryptsy WS 取消订阅 %s 失败: %v", prev, err)
	}
	if id != "" {
		if err := m.feed.Subscribe(ctx, []string{tradeChannel(id)}); err != nil {
			logger.Warn("Cryptsy WS 订阅 %s 失败: %v", id, err)
		}
	}
}

func (m *MarketDataSync) MarketID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marketID
}

// LatestBook returns the last published snapshot.
func (m *MarketDataSync) LatestBook() (schema.Depth, bool) {
	return m.cache.GetDepth(schema.CRYPTSY, m.pair)
}

// LatestTrade returns the last trade print, preferring live over historical.
func (m *MarketDataSync) LatestTrade() (schema.MarketTrade, bool) {
	return m.cache.GetLastTrade(schema.CRYPTSY, m.pair)
}

// Start subscribes the live feed, backfills trade history and runs the
// snapshot ticker. It returns once background work is launched.
func (m *MarketDataSync) Start(ctx context.Context) error {
	marketID := m.MarketID()
	if marketID == "" {
		return errNoMarket
	}

	if m.feed != nil {
		if err := m.feed.Subscribe(ctx, []string{tradeChannel(marketID)}); err != nil {
			logger.Warn("Cryptsy WS 订阅失败: %v", err)
		}
		if err := m.feed.Connect(ctx); err != nil {
			logger.Warn("Cryptsy WS 首次连接失败，读取循环将重连: %v", err)
		}
		_ = m.feed.StartReading(ctx)
	} else {
		logger.Warn("Cryptsy 未配置 %s，跳过实时成交订阅", KeyWsURL)
	}

	go func() {
		if err := m.Backfill(ctx); err != nil {
			metrics.PollFailures.WithLabelValues("trade-backfill").Inc()
			logger.Warn("Cryptsy 历史成交回补失败: %v", err)
		}
	}()

	go func() {
		m.snapshotTick(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Cryptsy 深度轮询退出")
				return
			case <-ticker.C:
				m.snapshotTick(ctx)
			}
		}
	}()

	logger.Info("Cryptsy 行情同步启动: market=%s pair=%s 深度=%d 间隔=%s", marketID, m.pair, m.depthLimit, m.interval)
	return nil
}

func (m *MarketDataSync) snapshotTick(ctx context.Context) {
	if _, err := m.Snapshot(ctx); err != nil {
		metrics.PollFailures.WithLabelValues("orderbook").Inc()
		logger.Warn("Cryptsy 深度快照失败: %v", err)
	}
}

// Snapshot fetches the order book, publishes it and stores it in the cache.
// Levels keep the exchange ordering.
func (m *MarketDataSync) Snapshot(ctx context.Context) (schema.Depth, error) {
	marketID := m.MarketID()
	if marketID == "" {
		return schema.Depth{}, errNoMarket
	}

	book, err := m.rest.GetOrderBook(ctx, marketID, m.depthLimit)
	if err != nil {
		m.setConnectivity(schema.Disconnected)
		return schema.Depth{}, err
	}

	d := schema.Depth{
		Exchange:  schema.CRYPTSY,
		Pair:      m.pair,
		Bids:      convertLevels(book.BuyOrders),
		Asks:      convertLevels(book.SellOrders),
		UpdatedAt: time.Now(),
	}
	m.cache.SetDepth(d)
	m.setConnectivity(schema.Connected)
	m.depth.Publish(d)
	return d, nil
}

func convertLevels(levels []schema.CryptsyBookLevel) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		out = append(out, schema.PriceLevel{Price: lv.Price, Quantity: lv.Quantity})
	}
	return out
}

// Backfill publishes the market's trade history in the order returned.
func (m *MarketDataSync) Backfill(ctx context.Context) error {
	marketID := m.MarketID()
	if marketID == "" {
		return errNoMarket
	}

	history, err := m.rest.GetTradeHistory(ctx, marketID)
	if err != nil {
		return err
	}

	published := 0
	for _, tr := range history {
		side, err := SideFromInitiator(tr.InitiateOrderType)
		if err != nil {
			logger.Warn("Cryptsy 历史成交 %s 跳过: %v", tr.TradeID, err)
			continue
		}
		m.publishTrade(schema.MarketTrade{
			Exchange:     schema.CRYPTSY,
			Pair:         m.pair,
			Price:        tr.TradePrice,
			Quantity:     tr.Quantity,
			Time:         tradeTime(tr.UnixSeconds(), tr.Datetime),
			IsHistorical: true,
			Side:         side,
		})
		published++
	}
	logger.Info("Cryptsy 历史成交回补完成: %d 条", published)
	return nil
}

func (m *MarketDataSync) onFeedTrade(channel string, ft schema.CryptsyFeedTrade) {
	if channel != tradeChannel(m.MarketID()) {
		logger.Debug("Cryptsy WS 忽略其他市场成交: %s", channel)
		return
	}
	side, err := SideFromInitiator(ft.Type)
	if err != nil {
		logger.Warn("Cryptsy WS 成交跳过: %v", err)
		return
	}
	secs, _ := strconv.ParseInt(strings.SplitN(ft.Timestamp.String(), ".", 2)[0], 10, 64)
	m.publishTrade(schema.MarketTrade{
		Exchange:     schema.CRYPTSY,
		Pair:         m.pair,
		Price:        ft.Price,
		Quantity:     ft.Quantity,
		Time:         tradeTime(secs, ""),
		IsHistorical: false,
		Side:         side,
	})
}

func (m *MarketDataSync) onFeedState(s schema.FeedState) {
	switch s {
	case schema.FeedSubscribed:
		m.setConnectivity(schema.Connected)
	case schema.FeedDisconnected:
		m.setConnectivity(schema.Disconnected)
	}
}

func (m *MarketDataSync) publishTrade(t schema.MarketTrade) {
	source := "live"
	if t.IsHistorical {
		source = "historical"
	}
	metrics.TradeEvents.WithLabelValues(source).Inc()
	m.cache.SetLastTrade(t)
	m.trades.Publish(t)
}

// setConnectivity publishes s when it differs from the last published status.
// The event is queued under statusMu so delivery order matches lastStatus.
func (m *MarketDataSync) setConnectivity(s schema.ConnectivityStatus) {
	m.statusMu.Lock()
	if m.lastStatus != nil && *m.lastStatus == s {
		m.statusMu.Unlock()
		return
	}
	m.lastStatus = &s
	m.connect.Enqueue(s)
	m.statusMu.Unlock()
	m.connect.Drain()
}

// SideFromInitiator maps the initiating order type to the resting book side:
// a Buy initiator lifted an ask, a Sell initiator hit a bid.
func SideFromInitiator(orderType string) (schema.Side, error) {
	switch strings.ToLower(strings.TrimSpace(orderType)) {
	case "buy":
		return schema.Ask, nil
	case "sell":
		return schema.Bid, nil
	default:
		return "", fmt.Errorf("unknown initiator order type %q", orderType)
	}
}

// InitiatorFromSide is the inverse of SideFromInitiator.
func InitiatorFromSide(side schema.Side) (string, error) {
	switch side {
	case schema.Ask:
		return "Buy", nil
	case schema.Bid:
		return "Sell", nil
	default:
		return "", fmt.Errorf("unknown side %q", side)
	}
}

func tradeTime(unixSeconds int64, datetime string) time.Time {
	if unixSeconds > 0 {
		return time.Unix(unixSeconds, 0)
	}
	if datetime != "" {
		if t, err := time.ParseInLocation(cryptsyDatetimeLayout, datetime, time.UTC); err == nil {
			return t
		}
	}
	return time.Now()
}
