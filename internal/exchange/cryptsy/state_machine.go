package cryptsy

import (
	"fmt"
	"sync"

	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// StateTransition 状态转换
type StateTransition struct {
	From schema.OrderStatus
	To   schema.OrderStatus
}

// legalTransitions 所有合法的状态转换；New 即已提交未确认
var legalTransitions = map[StateTransition]bool{
	{schema.OrderStatusNew, schema.OrderStatusWorking}:  true,
	{schema.OrderStatusNew, schema.OrderStatusRejected}: true,

	{schema.OrderStatusWorking, schema.OrderStatusWorking}:   true, // 部分成交
	{schema.OrderStatusWorking, schema.OrderStatusCancelled}: true,
	{schema.OrderStatusWorking, schema.OrderStatusComplete}:  true,
	{schema.OrderStatusWorking, schema.OrderStatusUnknown}:   true,

	// 终态不能转换（Complete, Cancelled, Rejected, Unknown）
}

// ValidateTransition 验证状态转换是否合法
func ValidateTransition(from, to schema.OrderStatus) error {
	if legalTransitions[StateTransition{From: from, To: to}] {
		return nil
	}
	return fmt.Errorf("illegal order transition %s -> %s", from, to)
}

type trackedOrder struct {
	order      schema.Order
	exchangeID string
	status     schema.OrderStatus
}

// orderTracker owns every live order until it reaches a terminal status.
// Accepted reports are queued in transition order and delivered by flush,
// so per-order event order matches transition order.
type orderTracker struct {
	mu         sync.Mutex
	orders     map[string]*trackedOrder
	byExchange map[string]string

	outbox   []schema.OrderStatusReport
	flushing bool
}

func newOrderTracker() *orderTracker {
	return &orderTracker{
		orders:     make(map[string]*trackedOrder),
		byExchange: make(map[string]string),
	}
}

// add starts tracking o in the submitted state.
func (t *orderTracker) add(o schema.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[o.OrderID]; exists {
		return fmt.Errorf("order %s already tracked", o.OrderID)
	}
	t.orders[o.OrderID] = &trackedOrder{order: o, status: schema.OrderStatusNew}
	return nil
}

// transition applies rpt if legal and queues it for delivery. Terminal
// orders are forgotten.
func (t *orderTracker) transition(rpt schema.OrderStatusReport) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.orders[rpt.OrderID]
	if !ok {
		return fmt.Errorf("order %s not tracked", rpt.OrderID)
	}
	if err := ValidateTransition(tr.status, rpt.Status); err != nil {
		return err
	}

	tr.status = rpt.Status
	if rpt.ExchangeID != "" && tr.exchangeID == "" {
		tr.exchangeID = rpt.ExchangeID
		t.byExchange[rpt.ExchangeID] = rpt.OrderID
	}
	if rpt.ExchangeID == "" {
		rpt.ExchangeID = tr.exchangeID
	}
	if rpt.Status.IsTerminal() {
		delete(t.orders, rpt.OrderID)
		if tr.exchangeID != "" {
			delete(t.byExchange, tr.exchangeID)
		}
	}
	t.outbox = append(t.outbox, rpt)
	return nil
}

// enqueue queues a report for an order that is not tracked.
func (t *orderTracker) enqueue(rpt schema.OrderStatusReport) {
	t.mu.Lock()
	t.outbox = append(t.outbox, rpt)
	t.mu.Unlock()
}

// flush delivers queued reports. Only one goroutine delivers at a time;
// reports queued meanwhile are picked up by it.
func (t *orderTracker) flush(deliver func(schema.OrderStatusReport)) {
	t.mu.Lock()
	if t.flushing {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	for len(t.outbox) > 0 {
		next := t.outbox[0]
		t.outbox = t.outbox[1:]
		t.mu.Unlock()
		deliver(next)
		t.mu.Lock()
	}
	t.flushing = false
	t.mu.Unlock()
}

// lookup returns a copy of the tracked order.
func (t *orderTracker) lookup(orderID string) (trackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.orders[orderID]
	if !ok {
		return trackedOrder{}, false
	}
	return *tr, true
}

func (t *orderTracker) orderIDForExchange(exchangeID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byExchange[exchangeID]
	return id, ok
}

func (t *orderTracker) active(orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.orders[orderID]
	return ok
}

func (t *orderTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}
