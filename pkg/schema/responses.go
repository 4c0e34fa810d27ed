package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Cryptsy API Response Types

// FlexString decodes a JSON string or number into its textual form.
// Cryptsy returns ids as either depending on the endpoint.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexBool decodes true/false, 1/0 and their quoted forms.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("flex bool: unexpected value %s", string(b))
	}
	return nil
}

// CryptsyEnvelope 所有 Cryptsy v2 响应的外层结构
type CryptsyEnvelope struct {
	Success FlexBool        `json:"success"`
	Error   json.RawMessage `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// ErrorMessage flattens the error field, which may be a string, a list or an object.
func (e CryptsyEnvelope) ErrorMessage() string {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

// CryptsyCurrency represents one entry of the currency catalog.
type CryptsyCurrency struct {
	ID   FlexString `json:"id"`
	Code string     `json:"code"`
	Name string     `json:"name"`
}

// CryptsyBalances represents the /balances payload, keyed by currency id.
type CryptsyBalances struct {
	Available map[string]decimal.Decimal `json:"available"`
	Held      map[string]decimal.Decimal `json:"held"`
}

// CryptsyMarket represents a market entry.
type CryptsyMarket struct {
	ID               FlexString `json:"id"`
	Label            string     `json:"label"` // 例如 "BTC/USD"
	CoinCurrencyID   FlexString `json:"coin_currency_id"`
	MarketCurrencyID FlexString `json:"market_currency_id"`
}

// CryptsyBookLevel 订单簿单档
type CryptsyBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CryptsyOrderBook represents /markets/{id}/orderbook data.
type CryptsyOrderBook struct {
	SellOrders []CryptsyBookLevel `json:"sellorders"`
	BuyOrders  []CryptsyBookLevel `json:"buyorders"`
}

// CryptsyTrade represents a trade history entry (market or account).
type CryptsyTrade struct {
	TradeID           FlexString      `json:"tradeid"`
	MarketID          FlexString      `json:"marketid"`
	Timestamp         FlexString      `json:"timestamp"` // unix 秒
	Datetime          string          `json:"datetime"`  // "2006-01-02 15:04:05"
	InitiateOrderType string          `json:"initiate_ordertype"`
	TradePrice        decimal.Decimal `json:"tradeprice"`
	Quantity          decimal.Decimal `json:"quantity"`
}

// UnixSeconds returns the trade timestamp, or 0 when it is absent or malformed.
func (t CryptsyTrade) UnixSeconds() int64 {
	v, err := strconv.ParseInt(strings.SplitN(string(t.Timestamp), ".", 2)[0], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// CryptsyOrderRequest is the POST /order form.
type CryptsyOrderRequest struct {
	MarketID  string
	OrderType string // Buy / Sell
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

// CryptsyCreateOrderResult represents POST /order data.
type CryptsyCreateOrderResult struct {
	OrderID FlexString `json:"orderid"`
}

// CryptsyOrder represents an order as reported by GET /order/{id} and /orders.
type CryptsyOrder struct {
	OrderID   FlexString      `json:"orderid"`
	MarketID  FlexString      `json:"marketid"`
	OrderType string          `json:"ordertype"` // Buy / Sell
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	RemainQty decimal.Decimal `json:"remainqty"`
	Active    FlexBool        `json:"active"`
	Status    string          `json:"status"` // 部分接口返回 new/working/filled/cancelled
}

// CryptsyFill 订单的单笔成交
type CryptsyFill struct {
	TradeID  FlexString      `json:"tradeid"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CryptsyOrderDetail represents GET /order/{id} data.
type CryptsyOrderDetail struct {
	OrderInfo CryptsyOrder  `json:"orderinfo"`
	TradeInfo []CryptsyFill `json:"tradeinfo"`
}

// CryptsyFeedMessage is a Pusher-style frame on the live trade feed.
type CryptsyFeedMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// CryptsyFeedTrade 实时成交推送内容
type CryptsyFeedTrade struct {
	Type      string          `json:"type"` // Buy / Sell，发起方方向
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp FlexString      `json:"timestamp"`
}
