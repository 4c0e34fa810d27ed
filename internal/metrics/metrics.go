// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingsmao/exchange-gateway/pkg/logger"
)

const namespace = "cryptsy_gateway"

var (
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rest_requests_total",
		Help:      "Signed REST requests by endpoint, method and status code (0 = transport failure).",
	}, []string{"endpoint", "method", "code"})

	RESTLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rest_request_seconds",
		Help:      "Signed REST request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method"})

	PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "Aborted poll ticks by component.",
	}, []string{"component"})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reconnects_total",
		Help:      "Live trade feed reconnect attempts.",
	})

	FeedState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_state",
		Help:      "Live trade feed state: 0 disconnected, 1 connecting, 2 subscribed.",
	})

	OrderEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_total",
		Help:      "Order status reports by status.",
	}, []string{"status"})

	PositionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "position_events_total",
		Help:      "Position updates by currency.",
	}, []string{"currency"})

	TradeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trade_events_total",
		Help:      "Trade prints by source (historical or live).",
	}, []string{"source"})
)

// ObserveREST records one signed request.
func ObserveREST(endpoint, method string, code int, elapsed time.Duration) {
	RESTRequests.WithLabelValues(endpoint, method, strconv.Itoa(code)).Inc()
	RESTLatency.WithLabelValues(endpoint, method).Observe(elapsed.Seconds())
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := serve(srv); err != nil {
			logger.Error("指标服务 %s 启动失败: %v", addr, err)
		}
	}()
	return srv
}

// serve runs srv until it fails or is closed. A normal close is not an error.
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
