package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeName defines supported exchange.
type ExchangeName string

const (
	CRYPTSY ExchangeName = "cryptsy"
)

// Currency is the engine-side currency code.
type Currency string

const (
	BTC  Currency = "BTC"
	USD  Currency = "USD"
	EUR  Currency = "EUR"
	GBP  Currency = "GBP"
	CAD  Currency = "CAD"
	LTC  Currency = "LTC"
	ETH  Currency = "ETH"
	DOGE Currency = "DOGE"
)

// DefaultCurrencies 默认关注的币种集合，可通过配置覆盖
var DefaultCurrencies = []Currency{BTC, USD, EUR, GBP, CAD, LTC, ETH, DOGE}

// Side is the engine's book side.
type Side string

const (
	Bid Side = "bid" // 买盘
	Ask Side = "ask" // 卖盘
)

// OrderType defines the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market" // 市价单
	OrderTypeLimit  OrderType = "limit"  // 限价单
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderStatus defines the status of an order as reported to the engine.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"       // 已提交，尚未确认
	OrderStatusWorking   OrderStatus = "working"   // 挂单中（含部分成交）
	OrderStatusCancelled OrderStatus = "cancelled" // 已撤销
	OrderStatusComplete  OrderStatus = "complete"  // 完全成交
	OrderStatusRejected  OrderStatus = "rejected"  // 已拒绝
	OrderStatusUnknown   OrderStatus = "unknown"   // 对账次数耗尽，状态未知
)

// IsTerminal reports whether no further transitions follow s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusComplete, OrderStatusRejected, OrderStatusUnknown:
		return true
	default:
		return false
	}
}

// ConnectivityStatus 连接状态
type ConnectivityStatus string

const (
	Disconnected ConnectivityStatus = "disconnected"
	Connected    ConnectivityStatus = "connected"
)

// FeedState is the live trade feed connection state.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedSubscribed   FeedState = "subscribed"
)

// Credentials 交易所 API 凭证，构造后不可变
type Credentials struct {
	APIHost    string
	BasePath   string
	PublicKey  string
	PrivateKey string
}

// PriceLevel represents a single order book level.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Depth represents order book snapshot.
type Depth struct {
	Exchange  ExchangeName `json:"exchange"`
	Pair      CurrencyPair `json:"pair"`
	Bids      []PriceLevel `json:"bids"` // 买盘,交易所原始顺序（最优价在前）
	Asks      []PriceLevel `json:"asks"` // 卖盘,交易所原始顺序（最优价在前）
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MarketTrade is a single trade print.
type MarketTrade struct {
	Exchange     ExchangeName    `json:"exchange"`
	Pair         CurrencyPair    `json:"pair"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Time         time.Time       `json:"time"`
	IsHistorical bool            `json:"isHistorical"` // 启动回补为 true，实时推送为 false
	Side         Side            `json:"side"`
}

// Position is one currency balance. Amount is invalid when the exchange did
// not report a balance for the currency.
type Position struct {
	Exchange   ExchangeName        `json:"exchange"`
	Currency   Currency            `json:"currency"`
	Amount     decimal.NullDecimal `json:"amount"`
	HeldAmount decimal.Decimal     `json:"heldAmount"`
	Time       time.Time           `json:"time"`
}

// Order is a brokered order submitted by the engine.
type Order struct {
	OrderID     string          `json:"orderId"`    // 引擎分配的客户端订单ID
	ExchangeID  string          `json:"exchangeId"` // 交易所订单ID，确认后才有
	Pair        CurrencyPair    `json:"pair"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	TimeInForce TimeInForce     `json:"timeInForce"`
}

// Cancel requests cancellation of a previously sent order.
type Cancel struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          Side   `json:"side"`
	ExchangeID    string `json:"exchangeId"`
}

// Replace is a new order that supersedes OrigOrderID.
type Replace struct {
	Order
	OrigOrderID    string `json:"origOrderId"`
	OrigExchangeID string `json:"origExchangeId"`
}

// OrderStatusReport is emitted on every order state change.
type OrderStatusReport struct {
	OrderID       string              `json:"orderId"`
	ExchangeID    string              `json:"exchangeId,omitempty"`
	Status        OrderStatus         `json:"status"`
	Time          time.Time           `json:"time"`
	LastQuantity  decimal.NullDecimal `json:"lastQuantity"`
	LastPrice     decimal.NullDecimal `json:"lastPrice"`
	RejectMessage string              `json:"rejectMessage,omitempty"`
	Attempt       int                 `json:"attempt"` // 对账轮次，0 表示非轮询事件
}

// ReplaceOutcome 改单时撤单阶段的结果
type ReplaceOutcome string

const (
	ReplaceCancelConfirmed   ReplaceOutcome = "cancel_confirmed"
	ReplaceCancelUnconfirmed ReplaceOutcome = "cancel_unconfirmed"
)

// ReplaceReport tells the engine how the cancel leg of a replace ended. With
// CancelUnconfirmed the original order may still fill alongside the new one.
type ReplaceReport struct {
	OrigOrderID string         `json:"origOrderId"`
	NewOrderID  string         `json:"newOrderId"`
	Outcome     ReplaceOutcome `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	Time        time.Time      `json:"time"`
}

// ActionReport acknowledges receipt of an order-entry call.
type ActionReport struct {
	Time time.Time `json:"time"`
}
