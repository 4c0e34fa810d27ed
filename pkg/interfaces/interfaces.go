package interfaces

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// ConfigProvider supplies string configuration values. Missing keys yield "".
type ConfigProvider interface {
	GetString(key string) string
}

// SubscriptionManager tracks live feed channels so they can be replayed after a reconnect.
type SubscriptionManager interface {
	// Subscribe adds channels, returns the newly added ones
	Subscribe(channels []string) []string

	// Unsubscribe removes channels, returns the actually removed ones
	Unsubscribe(channels []string) []string

	// Channels returns all currently subscribed channels, sorted
	Channels() []string

	// ClearAll clears all subscriptions
	ClearAll()
}

// WSConn abstracts websocket Conn for testability.
type WSConn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
	// Pong sends a pong frame to server
	Pong(data []byte) error
	// SetPingHandler sets the handler for received ping frames
	SetPingHandler(h func(appData string) error)
}

// FeedConnector defines live trade feed behaviors.
type FeedConnector interface {
	Connect(ctx context.Context) error
	Close() error

	// Subscribe records channels and sends subscribe frames when connected.
	Subscribe(ctx context.Context, channels []string) error
	// Unsubscribe forgets channels and sends unsubscribe frames when connected.
	Unsubscribe(ctx context.Context, channels []string) error

	// StartReading starts the read loop, handling reconnection internally.
	StartReading(ctx context.Context) error

	State() schema.FeedState
}

// RESTClient defines the typed Cryptsy v2 endpoints.
type RESTClient interface {
	GetCurrencies(ctx context.Context) ([]schema.CryptsyCurrency, error)
	GetBalances(ctx context.Context) (schema.CryptsyBalances, error)
	GetMarkets(ctx context.Context) ([]schema.CryptsyMarket, error)
	GetMarket(ctx context.Context, marketID string) (schema.CryptsyMarket, error)
	GetOrderBook(ctx context.Context, marketID string, limit int) (schema.CryptsyOrderBook, error)
	GetTradeHistory(ctx context.Context, marketID string) ([]schema.CryptsyTrade, error)

	CreateOrder(ctx context.Context, req schema.CryptsyOrderRequest) (string, error)
	GetOrder(ctx context.Context, orderID string) (schema.CryptsyOrderDetail, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOpenOrders(ctx context.Context) ([]schema.CryptsyOrder, error)
	GetAllTradeHistory(ctx context.Context) ([]schema.CryptsyTrade, error)
}

// MarketDataGateway publishes book snapshots and trade prints.
type MarketDataGateway interface {
	MarketData() *event.Topic[schema.Depth]
	MarketTrade() *event.Topic[schema.MarketTrade]
	ConnectChanged() *event.Topic[schema.ConnectivityStatus]
}

// OrderEntryGateway accepts order commands and publishes their lifecycle.
type OrderEntryGateway interface {
	SendOrder(order schema.Order) schema.ActionReport
	CancelOrder(cancel schema.Cancel) schema.ActionReport
	ReplaceOrder(replace schema.Replace) schema.ActionReport

	GenerateClientOrderID() string
	CancelsByClientOrderID() bool

	OrderUpdate() *event.Topic[schema.OrderStatusReport]
	ReplaceUpdate() *event.Topic[schema.ReplaceReport]
	ConnectChanged() *event.Topic[schema.ConnectivityStatus]
}

// PositionGateway publishes currency balances.
type PositionGateway interface {
	PositionUpdate() *event.Topic[schema.Position]
}

// ExchangeDetailsGateway describes static exchange properties.
type ExchangeDetailsGateway interface {
	Name() string
	MakeFee() decimal.Decimal
	TakeFee() decimal.Decimal
	Exchange() schema.ExchangeName
	SupportedCurrencyPairs() []schema.CurrencyPair
	HasSelfTradePrevention() bool
}

// CombinedGateway bundles the four capabilities of one exchange.
type CombinedGateway interface {
	MarketDataGateway() MarketDataGateway
	OrderEntryGateway() OrderEntryGateway
	PositionGateway() PositionGateway
	Details() ExchangeDetailsGateway
}

// Component is a long-running gateway part driven by the manager.
type Component interface {
	Name() string
	// Start launches background work and returns once it is running.
	Start(ctx context.Context) error
}

// WSShim adapts real *websocket.Conn to WSConn.
type WSShim struct{ *websocket.Conn }

func (w WSShim) WriteJSON(v any) error                       { return w.Conn.WriteJSON(v) }
func (w WSShim) ReadJSON(v any) error                        { return w.Conn.ReadJSON(v) }
func (w WSShim) Close() error                                { return w.Conn.Close() }
func (w WSShim) Pong(data []byte) error                      { return w.WriteMessage(websocket.PongMessage, data) }
func (w WSShim) SetPingHandler(h func(appData string) error) { w.Conn.SetPingHandler(h) }
