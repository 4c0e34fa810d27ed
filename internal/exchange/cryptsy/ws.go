package cryptsy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kingsmao/exchange-gateway/internal/cache"
	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/event"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const (
	// Pusher protocol events
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventConnectionEstablished = "pusher:connection_established"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"

	channelTradePrefix = "trade."
)

// pusherFrame is an outbound Pusher protocol frame.
type pusherFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func tradeChannel(marketID string) string { return channelTradePrefix + marketID }

var _ interfaces.FeedConnector = (*TradeFeed)(nil)

// TradeFeed is the live trade subscription. Its connection follows
// Disconnected -> Connecting -> Subscribed -> Disconnected, reconnecting with
// linear backoff and replaying every tracked channel once per connection.
// A connection silent for longer than the stale timeout is dropped and
// reconnected. State callbacks run in transition order and never under mu.
type TradeFeed struct {
	url    string
	dialer *websocket.Dialer
	conn   interfaces.WSConn
	mu     sync.RWMutex
	dialMu sync.Mutex

	subs interfaces.SubscriptionManager

	onTrade func(channel string, trade schema.CryptsyFeedTrade)
	onState func(schema.FeedState)
	states  *event.Topic[schema.FeedState]

	stateMu        sync.RWMutex
	state          schema.FeedState
	lastMessage    time.Time
	reconnectCount int

	reconnectBase time.Duration
	reconnectMax  time.Duration
	staleAfter    time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTradeFeed(url string, reconnectBase, reconnectMax time.Duration,
	onTrade func(string, schema.CryptsyFeedTrade), onState func(schema.FeedState)) *TradeFeed {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: false},
	}
	if reconnectBase <= 0 {
		reconnectBase = defaultReconnectBase
	}
	if reconnectMax <= 0 {
		reconnectMax = defaultReconnectMax
	}
	f := &TradeFeed{
		url:           url,
		dialer:        d,
		subs:          cache.NewSubscriptionManager(),
		onTrade:       onTrade,
		onState:       onState,
		states:        event.NewTopic[schema.FeedState](),
		state:         schema.FeedDisconnected,
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
		staleAfter:    defaultFeedStaleAfter,
		stopCh:        make(chan struct{}),
	}
	f.states.Subscribe(f.reportState)
	return f
}

// SetStaleAfter sets how long a subscribed connection may stay silent
// before it is dropped. Call before StartReading.
func (f *TradeFeed) SetStaleAfter(d time.Duration) {
	if d > 0 {
		f.staleAfter = d
	}
}

// State returns the current connection state.
func (f *TradeFeed) State() schema.FeedState {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.state
}

// setState records s and queues its notification; notify delivers it.
func (f *TradeFeed) setState(s schema.FeedState) {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	if f.state == s {
		return
	}
	f.state = s
	f.states.Enqueue(s)
}

// notify delivers queued state changes. Callers must not hold mu.
func (f *TradeFeed) notify() { f.states.Drain() }

func (f *TradeFeed) reportState(s schema.FeedState) {
	switch s {
	case schema.FeedDisconnected:
		metrics.FeedState.Set(0)
	case schema.FeedConnecting:
		metrics.FeedState.Set(1)
	case schema.FeedSubscribed:
		metrics.FeedState.Set(2)
	}
	logger.Info("Cryptsy WS 状态变更: %s", s)
	if f.onState != nil {
		f.onState(s)
	}
}

// Connect dials the feed and replays every tracked channel.
func (f *TradeFeed) Connect(ctx context.Context) error {
	f.dialMu.Lock()
	defer f.dialMu.Unlock()

	f.mu.RLock()
	connected := f.conn != nil
	f.mu.RUnlock()
	if connected {
		logger.Info("Cryptsy WS 已连接，跳过连接")
		return nil
	}

	f.setState(schema.FeedConnecting)
	f.notify()
	logger.Info("Cryptsy WS 开始连接...")
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		logger.Error("Cryptsy WS 连接失败: %v", err)
		f.setState(schema.FeedDisconnected)
		f.notify()
		return err
	}
	logger.Info("Cryptsy WS 连接成功")

	err = f.attach(interfaces.WSShim{Conn: conn})
	f.notify()
	return err
}

// attach installs conn and replays the tracked channels on it.
func (f *TradeFeed) attach(wsConn interfaces.WSShim) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.stopCh:
		_ = wsConn.Close()
		return errors.New("trade feed closed")
	default:
	}

	wsConn.SetPingHandler(func(appData string) error {
		f.touch()
		return wsConn.Pong([]byte(appData))
	})
	f.conn = wsConn
	f.touch()

	// 每个连接只发送一次订阅
	channels := f.subs.Channels()
	if len(channels) > 0 {
		logger.Info("Cryptsy WS 订阅频道: %v", channels)
	}
	for _, ch := range channels {
		if err := f.writeLocked(subscribeFrame(ch)); err != nil {
			_ = f.conn.Close()
			f.conn = nil
			f.setState(schema.FeedDisconnected)
			return err
		}
	}

	f.setState(schema.FeedSubscribed)
	return nil
}

func subscribeFrame(channel string) pusherFrame {
	return pusherFrame{Event: eventSubscribe, Data: map[string]any{"channel": channel}}
}

func (f *TradeFeed) writeLocked(v any) error {
	if f.conn == nil {
		return errors.New("WebSocket not connected")
	}
	if err := f.conn.WriteJSON(v); err != nil {
		logger.Error("Cryptsy WS 发送消息失败: %v", err)
		return err
	}
	return nil
}

// Subscribe tracks channels and sends subscribe frames for new ones when connected.
func (f *TradeFeed) Subscribe(ctx context.Context, channels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	newlyAdded := f.subs.Subscribe(channels)
	if len(newlyAdded) == 0 {
		logger.Info("Cryptsy WS 频道已订阅，跳过订阅请求")
		return nil
	}
	if f.conn == nil {
		logger.Warn("Cryptsy WS 未连接，订阅状态已保存，连接后将自动应用")
		return nil
	}
	for _, ch := range newlyAdded {
		if err := f.writeLocked(subscribeFrame(ch)); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe stops tracking channels and sends unsubscribe frames for the
// ones that were tracked when connected.
func (f *TradeFeed) Unsubscribe(ctx context.Context, channels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := f.subs.Unsubscribe(channels)
	if len(removed) == 0 || f.conn == nil {
		return nil
	}
	logger.Info("Cryptsy WS 取消订阅频道: %v", removed)
	for _, ch := range removed {
		frame := pusherFrame{Event: eventUnsubscribe, Data: map[string]any{"channel": ch}}
		if err := f.writeLocked(frame); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the read loop, forgets every channel and closes the connection.
func (f *TradeFeed) Close() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.subs.ClearAll()
	return f.closeConn()
}

func (f *TradeFeed) closeConn() error {
	f.mu.Lock()
	var err error
	if f.conn != nil {
		err = f.conn.Close()
		f.conn = nil
	}
	f.setState(schema.FeedDisconnected)
	f.mu.Unlock()

	f.notify()
	return err
}

func (f *TradeFeed) touch() {
	f.stateMu.Lock()
	f.lastMessage = time.Now()
	f.stateMu.Unlock()
}

// StartReading starts the read loop in the background. Read failures move the
// feed to Disconnected and trigger a reconnect.
func (f *TradeFeed) StartReading(ctx context.Context) error {
	logger.Info("Cryptsy WS 开始读取消息...")

	// 上下文取消时关闭连接，解除阻塞的读取
	go func() {
		select {
		case <-ctx.Done():
			_ = f.closeConn()
		case <-f.stopCh:
		}
	}()

	go f.healthLoop(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Cryptsy WS 上下文取消")
				_ = f.closeConn()
				return
			case <-f.stopCh:
				logger.Info("Cryptsy WS 停止信号")
				return
			default:
			}

			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn == nil {
				f.attemptReconnect(ctx)
				continue
			}

			var msg json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case <-f.stopCh:
					return
				case <-ctx.Done():
					continue
				default:
				}
				logger.Error("Cryptsy WS 读取消息失败: %v", err)
				_ = f.closeConn()
				f.attemptReconnect(ctx)
				continue
			}

			f.touch()
			logger.Debug("Cryptsy WS 收到消息: %s", string(msg))
			f.handleMessage(msg)
		}
	}()
	return nil
}

// healthLoop 定期检查连接是否长时间无消息
func (f *TradeFeed) healthLoop(ctx context.Context) {
	interval := f.staleAfter / 3
	if interval <= 0 {
		interval = f.staleAfter
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.checkHealth()
		}
	}
}

// checkHealth drops a subscribed connection that has been silent for longer
// than staleAfter. The read loop then fails and reconnects.
func (f *TradeFeed) checkHealth() bool {
	f.stateMu.RLock()
	state := f.state
	silent := time.Since(f.lastMessage)
	f.stateMu.RUnlock()

	if state != schema.FeedSubscribed || silent <= f.staleAfter {
		return false
	}
	logger.Warn("Cryptsy WS 长时间未收到消息 (%.2f秒)，断开重连", silent.Seconds())
	metrics.PollFailures.WithLabelValues("trade-feed").Inc()
	_ = f.closeConn()
	return true
}

// backoff returns the wait before reconnect attempt n (1-based).
func (f *TradeFeed) backoff(n int) time.Duration {
	wait := time.Duration(n) * f.reconnectBase
	if wait > f.reconnectMax {
		wait = f.reconnectMax
	}
	return wait
}

// attemptReconnect 尝试重新连接
func (f *TradeFeed) attemptReconnect(ctx context.Context) {
	f.stateMu.Lock()
	f.reconnectCount++
	n := f.reconnectCount
	f.stateMu.Unlock()
	metrics.FeedReconnects.Inc()

	wait := f.backoff(n)
	logger.Warn("Cryptsy WS 等待 %s 后重连 (第%d次)", wait, n)
	select {
	case <-ctx.Done():
		return
	case <-f.stopCh:
		return
	case <-time.After(wait):
	}

	if err := f.Connect(ctx); err != nil {
		logger.Error("Cryptsy WS 重连失败: %v", err)
		return
	}
	logger.Info("Cryptsy WS 重连成功")

	f.stateMu.Lock()
	f.reconnectCount = 0
	f.stateMu.Unlock()
}

func (f *TradeFeed) handleMessage(data json.RawMessage) {
	var msg schema.CryptsyFeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error("Cryptsy WS 无法解析消息: %s", string(data))
		return
	}

	switch msg.Event {
	case eventConnectionEstablished:
		logger.Info("Cryptsy WS 连接已建立")
		return
	case eventSubscriptionSucceeded:
		logger.Info("Cryptsy WS 订阅确认: %s", msg.Channel)
		return
	case eventPing:
		f.mu.Lock()
		_ = f.writeLocked(pusherFrame{Event: eventPong, Data: map[string]any{}})
		f.mu.Unlock()
		return
	}

	if !strings.HasPrefix(msg.Channel, channelTradePrefix) {
		logger.Debug("Cryptsy WS 忽略消息: event=%s channel=%s", msg.Event, msg.Channel)
		return
	}

	trade, err := decodeFeedTrade(msg.Data)
	if err != nil {
		logger.Error("Cryptsy WS 解析成交失败: %v", err)
		return
	}
	if f.onTrade != nil {
		f.onTrade(msg.Channel, trade)
	}
}

// decodeFeedTrade accepts data as an object or a JSON-encoded string, with the
// trade either at the top level or nested under "trade".
func decodeFeedTrade(raw json.RawMessage) (schema.CryptsyFeedTrade, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return schema.CryptsyFeedTrade{}, err
		}
		raw = json.RawMessage(s)
	}

	var nested struct {
		Trade *schema.CryptsyFeedTrade `json:"trade"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return schema.CryptsyFeedTrade{}, err
	}
	if nested.Trade != nil {
		return *nested.Trade, nil
	}

	var t schema.CryptsyFeedTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return schema.CryptsyFeedTrade{}, err
	}
	if t.Type == "" && t.Price.IsZero() && t.Quantity.IsZero() {
		return schema.CryptsyFeedTrade{}, errors.New("empty trade payload")
	}
	return t, nil
}
