package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
	"github.com/kingsmao/exchange-gateway/pkg/sdk"
)

func main() {
	configPath := flag.String("config", "cryptsy.yaml", "YAML 配置文件路径（可选）")
	envFile := flag.String("env", ".env", ".env 文件路径（可选）")
	metricsAddr := flag.String("metrics", "", "Prometheus 指标监听地址，例如 :9100")
	flag.Parse()

	fmt.Println("=== Cryptsy Gateway 快速开始 ===")
	logger.Init()
	defer logger.Sync()

	// 1. 加载配置
	provider, err := sdk.LoadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 创建SDK
	sdkInstance, err := sdk.NewSDK(provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建SDK失败: %v\n", err)
		os.Exit(1)
	}
	defer sdkInstance.Close()

	if *metricsAddr != "" {
		srv := metrics.StartMetricsServer(*metricsAddr)
		defer srv.Close()
		fmt.Printf("指标服务: http://%s/metrics\n", *metricsAddr)
	}

	// 3. 订阅事件
	sdkInstance.OnConnectivity(func(source string, status schema.ConnectivityStatus) {
		fmt.Printf("[连接] %s: %s\n", source, status)
	})
	sdkInstance.OnDepth(func(d schema.Depth) {
		if len(d.Bids) > 0 && len(d.Asks) > 0 {
			fmt.Printf("[深度] %s 买单%d档, 卖单%d档, 买一=%s, 卖一=%s\n",
				d.Pair, len(d.Bids), len(d.Asks), d.Bids[0].Price, d.Asks[0].Price)
			return
		}
		fmt.Printf("[深度] %s 买单%d档, 卖单%d档\n", d.Pair, len(d.Bids), len(d.Asks))
	})
	sdkInstance.OnTrade(func(t schema.MarketTrade) {
		kind := "实时"
		if t.IsHistorical {
			kind = "历史"
		}
		fmt.Printf("[成交/%s] %s %s %s@%s\n", kind, t.Pair, t.Side, t.Quantity, t.Price)
	})
	sdkInstance.OnPosition(func(p schema.Position) {
		amount := "未知"
		if p.Amount.Valid {
			amount = p.Amount.Decimal.String()
		}
		fmt.Printf("[持仓] %s: %s\n", p.Currency, amount)
	})
	sdkInstance.OnOrderUpdate(func(r schema.OrderStatusReport) {
		fmt.Printf("[订单] %s (交易所ID=%s): %s %s\n", r.OrderID, r.ExchangeID, r.Status, r.RejectMessage)
	})
	sdkInstance.OnReplace(func(r schema.ReplaceReport) {
		fmt.Printf("[改单] %s -> %s: %s %s\n", r.OrigOrderID, r.NewOrderID, r.Outcome, r.Reason)
	})

	// 4. 启动
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sdkInstance.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		return
	}

	fmt.Println("启动数据监控循环，每10秒打印一次...")
	fmt.Println("按 Ctrl+C 退出程序")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			fmt.Printf("\n=== %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
			if d, ok := sdkInstance.WatchDepth(); ok {
				fmt.Printf("最新深度: 买单%d档, 卖单%d档, 更新时间=%s\n",
					len(d.Bids), len(d.Asks), d.UpdatedAt.Format(time.RFC3339))
			} else {
				fmt.Println("最新深度: 暂无数据")
			}
			if t, ok := sdkInstance.WatchTrade(); ok {
				fmt.Printf("最新成交: %s %s@%s\n", t.Side, t.Quantity, t.Price)
			} else {
				fmt.Println("最新成交: 暂无数据")
			}
			if orders, err := sdkInstance.OpenOrders(ctx); err == nil {
				fmt.Printf("当前挂单: %d 个\n", len(orders))
			} else {
				fmt.Printf("查询挂单失败: %v\n", err)
			}
		case <-quit:
			fmt.Println("\n收到退出信号，正在关闭...")
			return
		}
	}
}
