package cryptsy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// OrderLifecycle submits, cancels and replaces orders and reconciles their
// status by polling the exchange.
type OrderLifecycle struct {
	rest        interfaces.RESTClient
	pollDelay   time.Duration
	maxAttempts int

	tracker *orderTracker

	mu       sync.RWMutex
	marketID string
	ctx      context.Context

	orders   *event.Topic[schema.OrderStatusReport]
	replaces *event.Topic[schema.ReplaceReport]
	connect  *event.Topic[schema.ConnectivityStatus]
}

func NewOrderLifecycle(rest interfaces.RESTClient, cfg Config) *OrderLifecycle {
	cfg = cfg.withDefaults()
	return &OrderLifecycle{
		rest:        rest,
		pollDelay:   cfg.PollDelay,
		maxAttempts: cfg.MaxPollAttempts,
		tracker:     newOrderTracker(),
		marketID:    cfg.MarketID,
		ctx:         context.Background(),
		orders:      event.NewTopic[schema.OrderStatusReport](),
		replaces:    event.NewTopic[schema.ReplaceReport](),
		connect:     event.NewTopic[schema.ConnectivityStatus](),
	}
}

func (l *OrderLifecycle) Name() string { return "cryptsy-order-entry" }

func (l *OrderLifecycle) OrderUpdate() *event.Topic[schema.OrderStatusReport] { return l.orders }
func (l *OrderLifecycle) ReplaceUpdate() *event.Topic[schema.ReplaceReport]   { return l.replaces }
func (l *OrderLifecycle) ConnectChanged() *event.Topic[schema.ConnectivityStatus] {
	return l.connect
}

func (l *OrderLifecycle) SetMarketID(id string) {
	l.mu.Lock()
	l.marketID = id
	l.mu.Unlock()
}

func (l *OrderLifecycle) MarketID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.marketID
}

// Start binds background work to ctx and reports order entry as connected.
func (l *OrderLifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	logger.Info("Cryptsy 订单通道启动: market=%s 轮询间隔=%s 最大轮询次数=%d", l.MarketID(), l.pollDelay, l.maxAttempts)
	l.connect.Publish(schema.Connected)
	return nil
}

func (l *OrderLifecycle) baseContext() context.Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctx
}

// GenerateClientOrderID returns a time-based UUID.
func (l *OrderLifecycle) GenerateClientOrderID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (l *OrderLifecycle) CancelsByClientOrderID() bool { return true }

// SendOrder acknowledges immediately and submits the order in the background.
func (l *OrderLifecycle) SendOrder(order schema.Order) schema.ActionReport {
	if order.OrderID == "" {
		order.OrderID = l.GenerateClientOrderID()
	}
	if err := l.tracker.add(order); err != nil {
		logger.Error("Cryptsy 下单被忽略: %v", err)
		return schema.ActionReport{Time: time.Now()}
	}
	go l.submit(l.baseContext(), order)
	return schema.ActionReport{Time: time.Now()}
}

// CancelOrder acknowledges immediately and cancels in the background.
func (l *OrderLifecycle) CancelOrder(cancel schema.Cancel) schema.ActionReport {
	go func() {
		_, _ = l.cancel(l.baseContext(), cancel)
	}()
	return schema.ActionReport{Time: time.Now()}
}

// ReplaceOrder cancels the original order, reports how the cancel ended and
// submits the new order in either case.
func (l *OrderLifecycle) ReplaceOrder(replace schema.Replace) schema.ActionReport {
	order := replace.Order
	if order.OrderID == "" {
		order.OrderID = l.GenerateClientOrderID()
	}
	if err := l.tracker.add(order); err != nil {
		logger.Error("Cryptsy 改单被忽略: %v", err)
		return schema.ActionReport{Time: time.Now()}
	}

	ctx := l.baseContext()
	go func() {
		confirmed, reason := l.cancel(ctx, schema.Cancel{
			OrderID:    replace.OrigOrderID,
			Side:       replace.Side,
			ExchangeID: replace.OrigExchangeID,
		})
		rpt := schema.ReplaceReport{
			OrigOrderID: replace.OrigOrderID,
			NewOrderID:  order.OrderID,
			Outcome:     schema.ReplaceCancelConfirmed,
			Time:        time.Now(),
		}
		if !confirmed {
			rpt.Outcome = schema.ReplaceCancelUnconfirmed
			rpt.Reason = reason
			logger.Warn("Cryptsy 改单撤单未确认，原订单 %s 可能仍会成交: %s", replace.OrigOrderID, reason)
		}
		l.replaces.Publish(rpt)
		l.submit(ctx, order)
	}()
	return schema.ActionReport{Time: time.Now()}
}

// submit creates the order and starts reconciliation on success.
func (l *OrderLifecycle) submit(ctx context.Context, order schema.Order) {
	req, err := l.orderRequest(order)
	if err != nil {
		l.emit(schema.OrderStatusReport{OrderID: order.OrderID, Status: schema.OrderStatusRejected, RejectMessage: err.Error()})
		return
	}

	exchangeID, err := l.rest.CreateOrder(ctx, req)
	if err != nil {
		logger.Warn("Cryptsy 下单失败 %s: %v", order.OrderID, err)
		l.emit(schema.OrderStatusReport{
			OrderID:       order.OrderID,
			Status:        schema.OrderStatusRejected,
			RejectMessage: rejectMessage(err),
		})
		return
	}

	if !l.emit(schema.OrderStatusReport{OrderID: order.OrderID, ExchangeID: exchangeID, Status: schema.OrderStatusWorking}) {
		return
	}
	l.pollLoop(ctx, order.OrderID, exchangeID)
}

func (l *OrderLifecycle) orderRequest(order schema.Order) (schema.CryptsyOrderRequest, error) {
	marketID := l.MarketID()
	if marketID == "" {
		return schema.CryptsyOrderRequest{}, errNoMarket
	}
	var orderType string
	switch order.Side {
	case schema.Bid:
		orderType = "Buy"
	case schema.Ask:
		orderType = "Sell"
	default:
		return schema.CryptsyOrderRequest{}, errors.New("unknown order side " + string(order.Side))
	}
	return schema.CryptsyOrderRequest{
		MarketID:  marketID,
		OrderType: orderType,
		Quantity:  order.Quantity,
		Price:     order.Price,
	}, nil
}

// pollLoop polls the exchange until a terminal status, the order leaves the
// tracker, or MaxPollAttempts runs out.
func (l *OrderLifecycle) pollLoop(ctx context.Context, orderID, exchangeID string) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.pollDelay):
		}
		if !l.tracker.active(orderID) {
			return
		}

		detail, err := l.rest.GetOrder(ctx, exchangeID)
		if err != nil {
			metrics.PollFailures.WithLabelValues("orders").Inc()
			logger.Warn("Cryptsy 订单 %s 查询失败 (第 %d 次): %v", exchangeID, attempt, err)
			continue
		}

		rpt := reportFromDetail(detail)
		rpt.OrderID = orderID
		rpt.ExchangeID = exchangeID
		rpt.Attempt = attempt
		l.emit(rpt)
		if rpt.Status.IsTerminal() {
			return
		}
	}

	logger.Warn("Cryptsy 订单 %s 轮询 %d 次仍未终结，状态未知", exchangeID, l.maxAttempts)
	l.emit(schema.OrderStatusReport{
		OrderID:    orderID,
		ExchangeID: exchangeID,
		Status:     schema.OrderStatusUnknown,
		Attempt:    l.maxAttempts,
	})
}

// cancel issues the exchange cancel and reports whether it was confirmed.
func (l *OrderLifecycle) cancel(ctx context.Context, c schema.Cancel) (bool, string) {
	orderID := c.OrderID
	if orderID == "" {
		orderID = c.ClientOrderID
	}
	exchangeID := c.ExchangeID
	if exchangeID == "" {
		if tr, ok := l.tracker.lookup(orderID); ok {
			exchangeID = tr.exchangeID
		} else if tr, ok := l.tracker.lookup(c.ClientOrderID); ok {
			orderID = c.ClientOrderID
			exchangeID = tr.exchangeID
		}
	}
	if exchangeID == "" {
		logger.Warn("Cryptsy 撤单失败: 订单 %s 没有交易所ID", orderID)
		return false, "exchange order id unknown"
	}
	if orderID == "" {
		if id, ok := l.tracker.orderIDForExchange(exchangeID); ok {
			orderID = id
		}
	}

	if err := l.rest.CancelOrder(ctx, exchangeID); err != nil {
		metrics.PollFailures.WithLabelValues("cancel").Inc()
		logger.Warn("Cryptsy 撤单失败 %s: %v", exchangeID, err)
		return false, rejectMessage(err)
	}

	rpt := schema.OrderStatusReport{OrderID: orderID, ExchangeID: exchangeID, Status: schema.OrderStatusCancelled}
	if l.tracker.active(orderID) {
		l.emit(rpt)
	} else {
		// 未跟踪的订单直接透传撤单确认
		rpt.Time = time.Now()
		metrics.OrderEvents.WithLabelValues(string(rpt.Status)).Inc()
		l.tracker.enqueue(rpt)
		l.tracker.flush(l.orders.Publish)
	}
	return true, ""
}

// emit applies rpt to the tracker and publishes it if the transition is legal.
func (l *OrderLifecycle) emit(rpt schema.OrderStatusReport) bool {
	if rpt.Time.IsZero() {
		rpt.Time = time.Now()
	}
	if err := l.tracker.transition(rpt); err != nil {
		logger.Debug("Cryptsy 订单事件丢弃 %s: %v", rpt.OrderID, err)
		return false
	}
	metrics.OrderEvents.WithLabelValues(string(rpt.Status)).Inc()
	l.tracker.flush(l.orders.Publish)
	return true
}

// OpenOrders returns every open order on the account as status reports.
func (l *OrderLifecycle) OpenOrders(ctx context.Context) ([]schema.OrderStatusReport, error) {
	list, err := l.rest.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]schema.OrderStatusReport, 0, len(list))
	for _, o := range list {
		exchangeID := o.OrderID.String()
		orderID, _ := l.tracker.orderIDForExchange(exchangeID)
		out = append(out, schema.OrderStatusReport{
			OrderID:    orderID,
			ExchangeID: exchangeID,
			Status:     StatusFromExchange(o),
			Time:       now,
		})
	}
	return out, nil
}

// reportFromDetail maps a GET /order/{id} payload. The last fill, when any,
// is carried as LastQuantity/LastPrice.
func reportFromDetail(d schema.CryptsyOrderDetail) schema.OrderStatusReport {
	rpt := schema.OrderStatusReport{Status: StatusFromExchange(d.OrderInfo)}
	if n := len(d.TradeInfo); n > 0 {
		last := d.TradeInfo[n-1]
		if last.Quantity.GreaterThan(decimal.Zero) {
			rpt.LastQuantity = decimal.NewNullDecimal(last.Quantity)
			rpt.LastPrice = decimal.NewNullDecimal(last.Price)
		}
	}
	return rpt
}

// StatusFromExchange derives the order status. An explicit status string
// wins when recognised; "new" counts as Working since the order is already
// acknowledged. Otherwise active means Working, and an inactive order is
// Complete when nothing remains and Cancelled when something does.
func StatusFromExchange(o schema.CryptsyOrder) schema.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(o.Status)) {
	case "new", "working", "open", "active", "partial", "partially_filled":
		return schema.OrderStatusWorking
	case "filled", "complete", "completed", "closed":
		return schema.OrderStatusComplete
	case "cancelled", "canceled":
		return schema.OrderStatusCancelled
	}
	if bool(o.Active) {
		return schema.OrderStatusWorking
	}
	if o.RemainQty.LessThanOrEqual(decimal.Zero) {
		return schema.OrderStatusComplete
	}
	return schema.OrderStatusCancelled
}

func rejectMessage(err error) string {
	var rej *schema.ExchangeRejection
	if errors.As(err, &rej) {
		return rej.Message
	}
	return err.Error()
}
