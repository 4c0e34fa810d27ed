package sdk

import (
	"context"
	"fmt"

	"github.com/kingsmao/exchange-gateway/internal/exchange/cryptsy"
	"github.com/kingsmao/exchange-gateway/pkg/config"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// SDK provides a high-level interface over the Cryptsy gateway
type SDK struct {
	gateway *cryptsy.Gateway
}

// NewSDK creates a new SDK instance from a configuration provider.
// It fails when ApiURL, ApiPublicKey or ApiPrivateKey is missing.
func NewSDK(p interfaces.ConfigProvider) (*SDK, error) {
	g, err := cryptsy.NewFromProvider(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create cryptsy gateway: %w", err)
	}
	return &SDK{gateway: g}, nil
}

// LoadConfig 加载配置：环境变量优先，其次 .env 文件，最后 YAML 文件
func LoadConfig(yamlPath string, envFiles ...string) (*config.Provider, error) {
	opts := []config.Option{config.WithDotEnv(envFiles...)}
	if yamlPath != "" {
		opts = append(opts, config.WithYAMLFile(yamlPath))
	}
	return config.New(opts...)
}

// Start 启动网关所有组件
func (sdk *SDK) Start(ctx context.Context) error {
	logger.Info("启动 %s 网关...", sdk.gateway.Details().Name())
	return sdk.gateway.Start(ctx)
}

// Close 关闭实时推送连接
func (sdk *SDK) Close() error {
	return sdk.gateway.Close()
}

// Gateway returns the combined gateway.
func (sdk *SDK) Gateway() interfaces.CombinedGateway { return sdk.gateway }

// Config returns the resolved gateway configuration.
func (sdk *SDK) Config() cryptsy.Config { return sdk.gateway.Config() }

// OnDepth subscribes to order book snapshots.
func (sdk *SDK) OnDepth(fn func(schema.Depth)) (unsubscribe func()) {
	return sdk.gateway.MarketDataGateway().MarketData().Subscribe(fn)
}

// OnTrade subscribes to trade prints, historical and live.
func (sdk *SDK) OnTrade(fn func(schema.MarketTrade)) (unsubscribe func()) {
	return sdk.gateway.MarketDataGateway().MarketTrade().Subscribe(fn)
}

// OnPosition subscribes to balance updates.
func (sdk *SDK) OnPosition(fn func(schema.Position)) (unsubscribe func()) {
	return sdk.gateway.PositionGateway().PositionUpdate().Subscribe(fn)
}

// OnOrderUpdate subscribes to order status reports.
func (sdk *SDK) OnOrderUpdate(fn func(schema.OrderStatusReport)) (unsubscribe func()) {
	return sdk.gateway.OrderEntryGateway().OrderUpdate().Subscribe(fn)
}

// OnReplace subscribes to replace outcomes.
func (sdk *SDK) OnReplace(fn func(schema.ReplaceReport)) (unsubscribe func()) {
	return sdk.gateway.OrderEntryGateway().ReplaceUpdate().Subscribe(fn)
}

// OnConnectivity subscribes to market data and order entry connectivity.
// source is "market-data" or "order-entry".
func (sdk *SDK) OnConnectivity(fn func(source string, status schema.ConnectivityStatus)) (unsubscribe func()) {
	u1 := sdk.gateway.MarketDataGateway().ConnectChanged().Subscribe(func(s schema.ConnectivityStatus) { fn("market-data", s) })
	u2 := sdk.gateway.OrderEntryGateway().ConnectChanged().Subscribe(func(s schema.ConnectivityStatus) { fn("order-entry", s) })
	return func() {
		u1()
		u2()
	}
}

// SendOrder 下单，OrderID 为空时自动生成
func (sdk *SDK) SendOrder(order schema.Order) (string, schema.ActionReport) {
	oe := sdk.gateway.OrderEntryGateway()
	if order.OrderID == "" {
		order.OrderID = oe.GenerateClientOrderID()
	}
	return order.OrderID, oe.SendOrder(order)
}

// CancelOrder 撤单
func (sdk *SDK) CancelOrder(cancel schema.Cancel) schema.ActionReport {
	return sdk.gateway.OrderEntryGateway().CancelOrder(cancel)
}

// ReplaceOrder 改单（先撤后下）
func (sdk *SDK) ReplaceOrder(replace schema.Replace) schema.ActionReport {
	return sdk.gateway.OrderEntryGateway().ReplaceOrder(replace)
}

// FetchDepth fetches a fresh order book snapshot from REST API
func (sdk *SDK) FetchDepth(ctx context.Context) (schema.Depth, error) {
	return sdk.gateway.MarketData().Snapshot(ctx)
}

// WatchDepth 读取最近一次深度快照
func (sdk *SDK) WatchDepth() (schema.Depth, bool) {
	return sdk.gateway.LatestBook()
}

// WatchTrade 读取最近一笔成交
func (sdk *SDK) WatchTrade() (schema.MarketTrade, bool) {
	return sdk.gateway.MarketData().LatestTrade()
}

// OpenOrders lists every open order on the account.
func (sdk *SDK) OpenOrders(ctx context.Context) ([]schema.OrderStatusReport, error) {
	return sdk.gateway.OpenOrders(ctx)
}

// TradeHistory returns the account's own trades.
func (sdk *SDK) TradeHistory(ctx context.Context) ([]schema.MarketTrade, error) {
	return sdk.gateway.TradeHistory(ctx)
}
