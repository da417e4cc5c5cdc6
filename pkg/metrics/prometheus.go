package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	syncsTotal  *prometheus.CounterVec
	barsSynced  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered with reg; nil means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		syncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestick_syncs_total",
				Help: "Total number of successful series syncs",
			},
			[]string{"mode", "resolution"},
		),
		barsSynced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestick_bars_synced_total",
				Help: "Total number of bars written by syncs",
			},
			[]string{"mode", "resolution"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlestick_sync_errors_total",
				Help: "Total number of failed series syncs",
			},
			[]string{"mode", "resolution", "type"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candlestick_last_price",
				Help: "Close of the latest synced bar for a symbol",
			},
			[]string{"symbol"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlestick_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
	}
}

// RecordSync records a successful sync and the bars it wrote.
func (r *Recorder) RecordSync(mode, resolution string, bars int, seconds float64) {
	r.syncsTotal.WithLabelValues(mode, resolution).Inc()
	r.barsSynced.WithLabelValues(mode, resolution).Add(float64(bars))
	r.latency.WithLabelValues("sync_" + mode).Observe(seconds)
}

// RecordSyncError records a failed sync.
func (r *Recorder) RecordSyncError(mode, resolution, kind string) {
	r.errorsTotal.WithLabelValues(mode, resolution, kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
