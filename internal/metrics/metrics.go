// Package metrics provides Prometheus instrumentation for the settlement API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BridgeEventsTotal counts reconciled bridge events by kind and outcome.
	BridgeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mantle_estate_bridge_events_total",
		Help: "Bridge events processed, by kind and result code",
	}, []string{"kind", "result"})

	// MintedUnits counts stablecoin units recorded by verified mints.
	MintedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mantle_estate_minted_units_total",
		Help: "Smallest token units recorded by verified mints",
	})

	// PoolFlowsTotal counts LP deposits and withdrawals per market.
	PoolFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mantle_estate_pool_flows_total",
		Help: "Liquidity pool deposits and withdrawals",
	}, []string{"market", "direction"})

	// PositionsTotal counts position opens and closes per market and side.
	PositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mantle_estate_positions_total",
		Help: "Positions opened and closed",
	}, []string{"market", "side", "action"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mantle_estate_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mantle_estate_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
