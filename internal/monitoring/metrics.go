package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
)

// Metrics holds the bot's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	tradesTotal      *prometheus.CounterVec
	tradeAmount      *prometheus.HistogramVec
	feesTotal        *prometheus.CounterVec
	riskExitsTotal   *prometheus.CounterVec
	orderErrorsTotal *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	reconnectsTotal  *prometheus.CounterVec
	currentPrice     *prometheus.GaugeVec
	positionQty      *prometheus.GaugeVec
	positionAvg      *prometheus.GaugeVec
	runnerState      *prometheus.GaugeVec
	decisionLatency  *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_trades_total",
			Help: "Total number of fills",
		}, []string{"symbol", "side"}),
		tradeAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dca_bot_trade_amount",
			Help:    "Distribution of fill notional in quote currency",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"symbol"}),
		feesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_fees_total",
			Help: "Fees paid in quote currency",
		}, []string{"symbol"}),
		riskExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_risk_exits_total",
			Help: "Forced exits by reason",
		}, []string{"symbol", "reason"}),
		orderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_order_errors_total",
			Help: "Orders that failed or ended in an unknown state",
		}, []string{"symbol", "type"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_exchange_retries_total",
			Help: "Retried exchange calls by operation and error category",
		}, []string{"op", "category"}),
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_bot_feed_reconnects_total",
			Help: "Feed reconnect attempts",
		}, []string{"symbol"}),
		currentPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dca_bot_current_price",
			Help: "Last observed price",
		}, []string{"symbol"}),
		positionQty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dca_bot_position_quantity",
			Help: "Base quantity held",
		}, []string{"symbol"}),
		positionAvg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dca_bot_position_avg_price",
			Help: "Average entry price of the open position",
		}, []string{"symbol"}),
		runnerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dca_bot_runner_state",
			Help: "1 for the runner's current state, 0 otherwise",
		}, []string{"symbol", "state"}),
		decisionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dca_bot_decision_seconds",
			Help:    "Time from observation to committed decision, order I/O included",
			Buckets: prometheus.DefBuckets,
		}, []string{"symbol"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tradesTotal, m.tradeAmount, m.feesTotal, m.riskExitsTotal,
		m.orderErrorsTotal, m.retriesTotal, m.reconnectsTotal,
		m.currentPrice, m.positionQty, m.positionAvg, m.runnerState, m.decisionLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRetry matches exchange.RetryObserver
func (m *Metrics) RecordRetry(op string, category boterrors.ErrorCategory) {
	m.retriesTotal.WithLabelValues(op, string(category)).Inc()
}

// ObserveDecision records how long one decision took
func (m *Metrics) ObserveDecision(symbol string, d time.Duration) {
	m.decisionLatency.WithLabelValues(symbol).Observe(d.Seconds())
}

var runnerStates = []string{"STOPPED", "STARTING", "RUNNING", "STOPPING"}

// Notify folds a bus event into the collectors
func (m *Metrics) Notify(_ context.Context, e notifications.Event) error {
	switch e.Type {
	case notifications.EventFill:
		if e.Fill != nil {
			m.tradesTotal.WithLabelValues(e.Symbol, string(e.Fill.Side)).Inc()
			m.tradeAmount.WithLabelValues(e.Symbol).Observe(e.Fill.Value())
			m.feesTotal.WithLabelValues(e.Symbol).Add(e.Fill.Fee)
		}
	case notifications.EventRiskExit:
		m.riskExitsTotal.WithLabelValues(e.Symbol, e.Reason).Inc()
	case notifications.EventOrderFailed, notifications.EventOrderUnknown:
		m.orderErrorsTotal.WithLabelValues(e.Symbol, string(e.Type)).Inc()
	case notifications.EventFeedReconnect:
		m.reconnectsTotal.WithLabelValues(e.Symbol).Inc()
	case notifications.EventState:
		for _, s := range runnerStates {
			v := 0.0
			if s == e.State {
				v = 1
			}
			m.runnerState.WithLabelValues(e.Symbol, s).Set(v)
		}
	}

	if e.Price > 0 {
		m.currentPrice.WithLabelValues(e.Symbol).Set(e.Price)
	}
	if e.Snapshot != nil {
		m.positionQty.WithLabelValues(e.Symbol).Set(e.Snapshot.QuantityHeld)
		m.positionAvg.WithLabelValues(e.Symbol).Set(e.Snapshot.AvgEntryPrice)
	}
	return nil
}
