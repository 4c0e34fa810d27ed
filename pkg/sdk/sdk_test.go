package sdk

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingsmao/exchange-gateway/pkg/config"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const (
	testPublicKey  = "pub-key"
	testPrivateKey = "priv-key"
)

// newFakeCryptsy serves the v2 endpoints the gateway uses and rejects
// requests with a bad signature.
func newFakeCryptsy(t *testing.T) *httptest.Server {
	routes := map[string]string{
		"GET /api/v2/currencies":             `[{"id":"1","code":"BTC","name":"Bitcoin"},{"id":2,"code":"USD","name":"Dollar"},{"id":"9","code":"XYZ"}]`,
		"GET /api/v2/balances":               `{"available":{"1":"0.5"},"held":{"1":"0.1"}}`,
		"GET /api/v2/markets":                `[{"id":"3","label":"LTC/BTC"},{"id":"5","label":"BTC/USD","coin_currency_id":"1","market_currency_id":"2"}]`,
		"GET /api/v2/markets/5/orderbook":    `{"sellorders":[{"price":"105","quantity":"2"}],"buyorders":[{"price":"100","quantity":"3"}]}`,
		"GET /api/v2/markets/5/tradehistory": `[{"tradeid":"1","timestamp":"1420070400","initiate_ordertype":"Buy","tradeprice":"104","quantity":"0.1"}]`,
		"POST /api/v2/order":                 `{"orderid":"42"}`,
		"GET /api/v2/order/42":               `{"orderinfo":{"orderid":"42","active":0,"remainqty":"0"},"tradeinfo":[{"tradeid":"7","price":"101","quantity":"1"}]}`,
		"GET /api/v2/orders":                 `[{"orderid":"77","marketid":"5","ordertype":"Sell","price":"110","quantity":"1","remainqty":"1","active":1}]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mac := hmac.New(sha512.New, []byte(testPrivateKey))
		mac.Write([]byte(r.URL.RawQuery))
		if r.Header.Get("Key") != testPublicKey || r.Header.Get("Sign") != hex.EncodeToString(mac.Sum(nil)) {
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid signature"}`))
			return
		}
		data, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, `{"success":true,"data":%s}`, data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSDK(t *testing.T, apiURL string) *SDK {
	s, err := NewSDK(config.FromMap(map[string]string{
		"ApiURL":           apiURL,
		"ApiPublicKey":     testPublicKey,
		"ApiPrivateKey":    testPrivateKey,
		"Pair":             "BTC/USD",
		"PollDelay":        "5ms",
		"PositionInterval": "20ms",
		"SnapshotInterval": "20ms",
	}))
	require.NoError(t, err)
	return s
}

func TestNewSDKMissingCredentials(t *testing.T) {
	_, err := NewSDK(config.FromMap(map[string]string{"ApiURL": "https://api.cryptsy.com"}))
	var missing *config.MissingKeysError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"ApiPrivateKey", "ApiPublicKey"}, missing.Keys)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cryptsy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ApiURL: https://api.cryptsy.com\nDepthLimit: 20\nCurrencies: [BTC, LTC]\n"), 0o600))

	p, err := LoadConfig(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.cryptsy.com", p.GetString("ApiURL"))
	assert.Equal(t, "20", p.GetString("DepthLimit"))
	assert.Equal(t, "BTC,LTC", p.GetString("Currencies"))
}

func TestSDKEndToEnd(t *testing.T) {
	srv := newFakeCryptsy(t)
	s := newTestSDK(t, srv.URL)

	var mu sync.Mutex
	var depths []schema.Depth
	var trades []schema.MarketTrade
	var positions []schema.Position
	var orders []schema.OrderStatusReport
	s.OnDepth(func(d schema.Depth) {
		mu.Lock()
		depths = append(depths, d)
		mu.Unlock()
	})
	s.OnTrade(func(tr schema.MarketTrade) {
		mu.Lock()
		trades = append(trades, tr)
		mu.Unlock()
	})
	s.OnPosition(func(p schema.Position) {
		mu.Lock()
		positions = append(positions, p)
		mu.Unlock()
	})
	s.OnOrderUpdate(func(r schema.OrderStatusReport) {
		mu.Lock()
		orders = append(orders, r)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(depths) > 0 && len(trades) > 0 && len(positions) > 0
	}, 3*time.Second, 5*time.Millisecond)

	mu.Lock()
	d, tr, pos := depths[0], trades[0], positions[0]
	mu.Unlock()

	require.Len(t, d.Asks, 1)
	require.Len(t, d.Bids, 1)
	assert.True(t, d.Asks[0].Price.Equal(decimal.NewFromInt(105)))
	assert.True(t, d.Bids[0].Quantity.Equal(decimal.NewFromInt(3)))

	assert.Equal(t, schema.Ask, tr.Side)
	assert.True(t, tr.IsHistorical)

	assert.Equal(t, schema.BTC, pos.Currency)
	require.True(t, pos.Amount.Valid)
	assert.Equal(t, "0.5", pos.Amount.Decimal.String())

	id, ack := s.SendOrder(schema.Order{
		Side:     schema.Bid,
		Type:     schema.OrderTypeLimit,
		Price:    decimal.NewFromInt(101),
		Quantity: decimal.NewFromInt(1),
	})
	assert.NotEmpty(t, id)
	assert.False(t, ack.Time.IsZero())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(orders) == 2
	}, 3*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, schema.OrderStatusWorking, orders[0].Status)
	assert.Equal(t, schema.OrderStatusComplete, orders[1].Status)
	assert.Equal(t, id, orders[1].OrderID)
	mu.Unlock()

	book, ok := s.WatchDepth()
	require.True(t, ok)
	assert.Equal(t, schema.CRYPTSY, book.Exchange)

	last, ok := s.WatchTrade()
	require.True(t, ok)
	assert.True(t, last.Price.Equal(decimal.NewFromInt(104)))

	open, err := s.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "77", open[0].ExchangeID)
}

func TestSDKBadSignatureIsRejected(t *testing.T) {
	srv := newFakeCryptsy(t)
	s, err := NewSDK(config.FromMap(map[string]string{
		"ApiURL":        srv.URL,
		"ApiPublicKey":  testPublicKey,
		"ApiPrivateKey": "wrong",
	}))
	require.NoError(t, err)

	_, err = s.FetchDepth(context.Background())
	assert.Error(t, err)

	_, err = s.OpenOrders(context.Background())
	var rej *schema.ExchangeRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Invalid signature", rej.Message)
}

func TestSDKDetails(t *testing.T) {
	s := newTestSDK(t, "https://api.cryptsy.com")
	d := s.Gateway().Details()
	assert.Equal(t, "Cryptsy", d.Name())
	assert.Len(t, d.SupportedCurrencyPairs(), 3)
	assert.Equal(t, 5*time.Millisecond, s.Config().PollDelay)
}
