package cryptsy

import (
	"context"
	"errors"
	"sync"

	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// fakeREST is an in-memory exchange. Unset handlers fail with errNotStubbed.
type fakeREST struct {
	mu    sync.Mutex
	calls map[string]int

	currencies   func() ([]schema.CryptsyCurrency, error)
	balances     func() (schema.CryptsyBalances, error)
	markets      func() ([]schema.CryptsyMarket, error)
	orderBook    func(marketID string, limit int) (schema.CryptsyOrderBook, error)
	tradeHistory func(marketID string) ([]schema.CryptsyTrade, error)
	createOrder  func(req schema.CryptsyOrderRequest) (string, error)
	getOrder     func(id string, call int) (schema.CryptsyOrderDetail, error)
	cancelOrder  func(id string) error
	openOrders   func() ([]schema.CryptsyOrder, error)
	allTrades    func() ([]schema.CryptsyTrade, error)

	lastCreate schema.CryptsyOrderRequest
	cancelled  []string
}

var errNotStubbed = errors.New("not stubbed")

func newFakeREST() *fakeREST {
	return &fakeREST{calls: make(map[string]int)}
}

func (f *fakeREST) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeREST) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeREST) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeREST) LastCreate() schema.CryptsyOrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCreate
}

func (f *fakeREST) GetCurrencies(ctx context.Context) ([]schema.CryptsyCurrency, error) {
	f.count("currencies")
	if f.currencies == nil {
		return nil, errNotStubbed
	}
	return f.currencies()
}

func (f *fakeREST) GetBalances(ctx context.Context) (schema.CryptsyBalances, error) {
	f.count("balances")
	if f.balances == nil {
		return schema.CryptsyBalances{}, errNotStubbed
	}
	return f.balances()
}

func (f *fakeREST) GetMarkets(ctx context.Context) ([]schema.CryptsyMarket, error) {
	f.count("markets")
	if f.markets == nil {
		return nil, errNotStubbed
	}
	return f.markets()
}

func (f *fakeREST) GetMarket(ctx context.Context, marketID string) (schema.CryptsyMarket, error) {
	f.count("market")
	return schema.CryptsyMarket{}, errNotStubbed
}

func (f *fakeREST) GetOrderBook(ctx context.Context, marketID string, limit int) (schema.CryptsyOrderBook, error) {
	f.count("orderbook")
	if f.orderBook == nil {
		return schema.CryptsyOrderBook{}, errNotStubbed
	}
	return f.orderBook(marketID, limit)
}

func (f *fakeREST) GetTradeHistory(ctx context.Context, marketID string) ([]schema.CryptsyTrade, error) {
	f.count("tradehistory")
	if f.tradeHistory == nil {
		return nil, errNotStubbed
	}
	return f.tradeHistory(marketID)
}

func (f *fakeREST) CreateOrder(ctx context.Context, req schema.CryptsyOrderRequest) (string, error) {
	f.count("create")
	f.mu.Lock()
	f.lastCreate = req
	f.mu.Unlock()
	if f.createOrder == nil {
		return "", errNotStubbed
	}
	return f.createOrder(req)
}

func (f *fakeREST) GetOrder(ctx context.Context, orderID string) (schema.CryptsyOrderDetail, error) {
	n := f.count("order")
	if f.getOrder == nil {
		return schema.CryptsyOrderDetail{}, errNotStubbed
	}
	return f.getOrder(orderID, n)
}

func (f *fakeREST) CancelOrder(ctx context.Context, orderID string) error {
	f.count("cancel")
	f.mu.Lock()
	f.cancelled = append(f.cancelled, orderID)
	f.mu.Unlock()
	if f.cancelOrder == nil {
		return errNotStubbed
	}
	return f.cancelOrder(orderID)
}

func (f *fakeREST) GetOpenOrders(ctx context.Context) ([]schema.CryptsyOrder, error) {
	f.count("orders")
	if f.openOrders == nil {
		return nil, errNotStubbed
	}
	return f.openOrders()
}

func (f *fakeREST) GetAllTradeHistory(ctx context.Context) ([]schema.CryptsyTrade, error) {
	f.count("alltrades")
	if f.allTrades == nil {
		return nil, errNotStubbed
	}
	return f.allTrades()
}

// recorder collects everything published on a topic.
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func record[T any](t *event.Topic[T]) *recorder[T] {
	r := &recorder[T]{}
	t.Subscribe(func(v T) {
		r.mu.Lock()
		r.items = append(r.items, v)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder[T]) All() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func (r *recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
