package cryptsy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const waitFor = 2 * time.Second

func newTestLifecycle(rest *fakeREST, maxAttempts int) *OrderLifecycle {
	cfg := DefaultConfig()
	cfg.MarketID = "5"
	cfg.PollDelay = 5 * time.Millisecond
	cfg.MaxPollAttempts = maxAttempts
	return NewOrderLifecycle(rest, cfg)
}

func testOrder(id string) schema.Order {
	return schema.Order{
		OrderID:  id,
		Pair:     schema.CurrencyPair{Base: schema.BTC, Quote: schema.USD},
		Side:     schema.Bid,
		Type:     schema.OrderTypeLimit,
		Price:    dec("250"),
		Quantity: dec("1"),
	}
}

func activeDetail() schema.CryptsyOrderDetail {
	return schema.CryptsyOrderDetail{OrderInfo: schema.CryptsyOrder{OrderID: "42", Active: true, RemainQty: dec("1")}}
}

func filledDetail() schema.CryptsyOrderDetail {
	return schema.CryptsyOrderDetail{
		OrderInfo: schema.CryptsyOrder{OrderID: "42", Active: false, RemainQty: dec("0")},
		TradeInfo: []schema.CryptsyFill{{TradeID: "9", Price: dec("250"), Quantity: dec("1")}},
	}
}

func statuses(reports []schema.OrderStatusReport) []schema.OrderStatus {
	out := make([]schema.OrderStatus, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.Status)
	}
	return out
}

func TestSendOrderWorkingThenComplete(t *testing.T) {
	rest := newFakeREST()
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) { return "42", nil }
	rest.getOrder = func(id string, call int) (schema.CryptsyOrderDetail, error) {
		assert.Equal(t, "42", id)
		return filledDetail(), nil
	}
	l := newTestLifecycle(rest, 10)
	reports := record(l.OrderUpdate())

	ack := l.SendOrder(testOrder("A"))
	assert.False(t, ack.Time.IsZero())

	require.Eventually(t, func() bool { return reports.Len() == 2 }, waitFor, time.Millisecond)
	got := reports.All()
	assert.Equal(t, []schema.OrderStatus{schema.OrderStatusWorking, schema.OrderStatusComplete}, statuses(got))
	assert.Equal(t, "42", got[0].ExchangeID)
	assert.Equal(t, "A", got[1].OrderID)
	require.True(t, got[1].LastQuantity.Valid)
	assert.True(t, got[1].LastQuantity.Decimal.Equal(dec("1")))

	// 终态后不再轮询
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rest.Calls("order"))
	assert.Equal(t, 2, reports.Len())

	req := rest.LastCreate()
	assert.Equal(t, "5", req.MarketID)
	assert.Equal(t, "Buy", req.OrderType)
}

func TestSendOrderRejected(t *testing.T) {
	rest := newFakeREST()
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) {
		return "", &schema.ExchangeRejection{Endpoint: "/order", Message: "Insufficient funds"}
	}
	l := newTestLifecycle(rest, 10)
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))

	require.Eventually(t, func() bool { return reports.Len() == 1 }, waitFor, time.Millisecond)
	got := reports.All()[0]
	assert.Equal(t, schema.OrderStatusRejected, got.Status)
	assert.Equal(t, "Insufficient funds", got.RejectMessage)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, rest.Calls("order"))
	assert.Equal(t, 1, reports.Len())
}

func TestSendOrderWithoutMarketIsRejected(t *testing.T) {
	rest := newFakeREST()
	l := newTestLifecycle(rest, 10)
	l.SetMarketID("")
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))

	require.Eventually(t, func() bool { return reports.Len() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, schema.OrderStatusRejected, reports.All()[0].Status)
	assert.Zero(t, rest.Calls("create"))
}

func TestPollExhaustionEmitsUnknown(t *testing.T) {
	rest := newFakeREST()
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) { return "42", nil }
	rest.getOrder = func(string, int) (schema.CryptsyOrderDetail, error) {
		return schema.CryptsyOrderDetail{}, &schema.TransportError{Method: "GET", Path: "/order/42", Err: errors.New("timeout")}
	}
	l := newTestLifecycle(rest, 3)
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))

	require.Eventually(t, func() bool { return reports.Len() == 2 }, waitFor, time.Millisecond)
	got := reports.All()
	assert.Equal(t, []schema.OrderStatus{schema.OrderStatusWorking, schema.OrderStatusUnknown}, statuses(got))
	assert.Equal(t, 3, got[1].Attempt)
	assert.Equal(t, 3, rest.Calls("order"))
}

func TestPartialFillStaysWorking(t *testing.T) {
	rest := newFakeREST()
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) { return "42", nil }
	rest.getOrder = func(_ string, call int) (schema.CryptsyOrderDetail, error) {
		if call == 1 {
			d := activeDetail()
			d.OrderInfo.RemainQty = dec("0.6")
			d.TradeInfo = []schema.CryptsyFill{{TradeID: "8", Price: dec("249.5"), Quantity: dec("0.4")}}
			return d, nil
		}
		return filledDetail(), nil
	}
	l := newTestLifecycle(rest, 10)
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))

	require.Eventually(t, func() bool { return reports.Len() == 3 }, waitFor, time.Millisecond)
	got := reports.All()
	assert.Equal(t, []schema.OrderStatus{schema.OrderStatusWorking, schema.OrderStatusWorking, schema.OrderStatusComplete}, statuses(got))
	require.True(t, got[1].LastPrice.Valid)
	assert.True(t, got[1].LastPrice.Decimal.Equal(dec("249.5")))
	assert.True(t, got[1].LastQuantity.Decimal.Equal(dec("0.4")))
	assert.Equal(t, 1, got[1].Attempt)
}

func TestCancelOrderStopsPolling(t *testing.T) {
	rest := newFakeREST()
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) { return "42", nil }
	rest.getOrder = func(string, int) (schema.CryptsyOrderDetail, error) { return activeDetail(), nil }
	rest.cancelOrder = func(string) error { return nil }
	l := newTestLifecycle(rest, 1000)
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))
	require.Eventually(t, func() bool { return l.tracker.size() == 1 && rest.Calls("order") > 0 }, waitFor, time.Millisecond)

	l.CancelOrder(schema.Cancel{OrderID: "A"})
	require.Eventually(t, func() bool { return l.tracker.size() == 0 }, waitFor, time.Millisecond)

	polls := rest.Calls("order")
	time.Sleep(40 * time.Millisecond)
	assert.LessOrEqual(t, rest.Calls("order"), polls+1)

	got := reports.All()
	last := got[len(got)-1]
	assert.Equal(t, schema.OrderStatusCancelled, last.Status)
	assert.Equal(t, "42", last.ExchangeID)
	assert.Equal(t, []string{"42"}, rest.Cancelled())
	for _, r := range got[:len(got)-1] {
		assert.Equal(t, schema.OrderStatusWorking, r.Status)
	}
}

func TestCancelFailureEmitsNothing(t *testing.T) {
	rest := newFakeREST()
	rest.cancelOrder = func(string) error {
		return &schema.ExchangeRejection{Endpoint: "/order/77", Message: "Order not found"}
	}
	l := newTestLifecycle(rest, 10)
	reports := record(l.OrderUpdate())

	confirmed, reason := l.cancel(l.baseContext(), schema.Cancel{OrderID: "X", ExchangeID: "77"})
	assert.False(t, confirmed)
	assert.Equal(t, "Order not found", reason)
	assert.Zero(t, reports.Len())
}

func TestReplaceOrderOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		cancelErr error
		want      schema.ReplaceOutcome
	}{
		{name: "cancel confirmed", want: schema.ReplaceCancelConfirmed},
		{name: "cancel unconfirmed", cancelErr: errors.New("timeout"), want: schema.ReplaceCancelUnconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rest := newFakeREST()
			rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) { return "43", nil }
			rest.getOrder = func(string, int) (schema.CryptsyOrderDetail, error) { return filledDetail(), nil }
			rest.cancelOrder = func(string) error { return tt.cancelErr }
			l := newTestLifecycle(rest, 10)
			replaces := record(l.ReplaceUpdate())
			reports := record(l.OrderUpdate())

			repl := schema.Replace{Order: testOrder("B"), OrigOrderID: "A", OrigExchangeID: "42"}
			l.ReplaceOrder(repl)

			require.Eventually(t, func() bool { return replaces.Len() == 1 }, waitFor, time.Millisecond)
			rr := replaces.All()[0]
			assert.Equal(t, tt.want, rr.Outcome)
			assert.Equal(t, "A", rr.OrigOrderID)
			assert.Equal(t, "B", rr.NewOrderID)
			if tt.cancelErr != nil {
				assert.NotEmpty(t, rr.Reason)
			}

			// 新订单总会提交
			require.Eventually(t, func() bool {
				for _, r := range reports.All() {
					if r.OrderID == "B" && r.Status == schema.OrderStatusWorking {
						return true
					}
				}
				return false
			}, waitFor, time.Millisecond)
			assert.Equal(t, []string{"42"}, rest.Cancelled())
		})
	}
}

func TestDuplicateOrderIDIgnored(t *testing.T) {
	rest := newFakeREST()
	block := make(chan struct{})
	rest.createOrder = func(schema.CryptsyOrderRequest) (string, error) {
		<-block
		return "", errors.New("closed")
	}
	l := newTestLifecycle(rest, 10)
	reports := record(l.OrderUpdate())

	l.SendOrder(testOrder("A"))
	l.SendOrder(testOrder("A"))
	close(block)

	require.Eventually(t, func() bool { return reports.Len() == 1 }, waitFor, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, reports.Len())
	assert.Equal(t, 1, rest.Calls("create"))
}

func TestGenerateClientOrderIDIsTimeBased(t *testing.T) {
	l := newTestLifecycle(newFakeREST(), 10)
	a, b := l.GenerateClientOrderID(), l.GenerateClientOrderID()
	assert.NotEqual(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(1), id.Version())
	assert.True(t, l.CancelsByClientOrderID())
}

func TestStartPublishesConnected(t *testing.T) {
	l := newTestLifecycle(newFakeREST(), 10)
	status := record(l.ConnectChanged())
	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, []schema.ConnectivityStatus{schema.Connected}, status.All())
}

func TestStatusFromExchange(t *testing.T) {
	tests := []struct {
		name  string
		order schema.CryptsyOrder
		want  schema.OrderStatus
	}{
		{"active", schema.CryptsyOrder{Active: true, RemainQty: dec("1")}, schema.OrderStatusWorking},
		{"filled", schema.CryptsyOrder{Active: false, RemainQty: dec("0")}, schema.OrderStatusComplete},
		{"cancelled with remainder", schema.CryptsyOrder{Active: false, RemainQty: dec("0.3")}, schema.OrderStatusCancelled},
		{"reported new", schema.CryptsyOrder{Status: "new"}, schema.OrderStatusWorking},
		{"reported filled", schema.CryptsyOrder{Status: "Filled", Active: true}, schema.OrderStatusComplete},
		{"reported canceled", schema.CryptsyOrder{Status: "canceled"}, schema.OrderStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromExchange(tt.order))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(schema.OrderStatusNew, schema.OrderStatusWorking))
	assert.NoError(t, ValidateTransition(schema.OrderStatusNew, schema.OrderStatusRejected))
	assert.NoError(t, ValidateTransition(schema.OrderStatusWorking, schema.OrderStatusWorking))
	assert.NoError(t, ValidateTransition(schema.OrderStatusWorking, schema.OrderStatusUnknown))

	assert.Error(t, ValidateTransition(schema.OrderStatusNew, schema.OrderStatusComplete))
	assert.Error(t, ValidateTransition(schema.OrderStatusComplete, schema.OrderStatusWorking))
	assert.Error(t, ValidateTransition(schema.OrderStatusCancelled, schema.OrderStatusCancelled))
	assert.Error(t, ValidateTransition(schema.OrderStatusWorking, schema.OrderStatusRejected))
}

func TestTrackerForgetsTerminalOrders(t *testing.T) {
	tr := newOrderTracker()
	require.NoError(t, tr.add(testOrder("A")))
	require.Error(t, tr.add(testOrder("A")))

	require.NoError(t, tr.transition(schema.OrderStatusReport{OrderID: "A", ExchangeID: "42", Status: schema.OrderStatusWorking}))
	id, ok := tr.orderIDForExchange("42")
	require.True(t, ok)
	assert.Equal(t, "A", id)

	require.NoError(t, tr.transition(schema.OrderStatusReport{OrderID: "A", Status: schema.OrderStatusComplete}))
	assert.False(t, tr.active("A"))
	_, ok = tr.orderIDForExchange("42")
	assert.False(t, ok)
	assert.Error(t, tr.transition(schema.OrderStatusReport{OrderID: "A", Status: schema.OrderStatusCancelled}))

	var delivered []schema.OrderStatusReport
	tr.flush(func(r schema.OrderStatusReport) { delivered = append(delivered, r) })
	require.Len(t, delivered, 2)
	assert.Equal(t, "42", delivered[1].ExchangeID)
}
