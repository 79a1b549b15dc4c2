package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MappingErrors counts transactions dropped because the mapper could not
	// build a normalized TransactionData from them, by upstream source.
	MappingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spray_mapping_errors",
			Help: "Total number of transaction mapping failures by source",
		},
		[]string{"source"},
	)

	// UnparsedTransactionErrors counts transactions that reached a renderer
	// but could not be rendered for a requested subscription.
	UnparsedTransactionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spray_unparsed_transaction_errors",
			Help: "Total number of transactions that failed to render",
		},
	)

	// DataSourceErrors counts gRPC session failures by upstream source.
	DataSourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spray_data_source_errors",
			Help: "Total number of data source session errors by source",
		},
		[]string{"source"},
	)

	// TransactionsPublished counts transactions admitted past dedupe and
	// published to subscribers, by upstream source.
	TransactionsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spray_transactions_published",
			Help: "Total number of transactions published after dedupe",
		},
		[]string{"source"},
	)

	// BlocksPublished counts block-meta updates admitted past dedupe and
	// published to subscribers, by upstream source.
	BlocksPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spray_blocks_published",
			Help: "Total number of blocks published after dedupe",
		},
		[]string{"source"},
	)

	// LastBlock is the slot of the most recently published block.
	LastBlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spray_last_block",
			Help: "Slot of the most recently published block",
		},
	)

	// LastBlockTimestamp is the upstream timestamp of the most recently
	// published block, in epoch seconds.
	LastBlockTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spray_last_block_timestamp",
			Help: "Timestamp of the most recently published block, epoch seconds",
		},
	)

	// ActiveSubscriptions is the current number of live subscription
	// connections.
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spray_active_subscriptions",
			Help: "Current number of active subscriptions",
		},
	)
)

func init() {
	prometheus.MustRegister(MappingErrors)
	prometheus.MustRegister(UnparsedTransactionErrors)
	prometheus.MustRegister(DataSourceErrors)
	prometheus.MustRegister(TransactionsPublished)
	prometheus.MustRegister(BlocksPublished)
	prometheus.MustRegister(LastBlock)
	prometheus.MustRegister(LastBlockTimestamp)
	prometheus.MustRegister(ActiveSubscriptions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDurationVec records the duration to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogramVec.WithLabelValues(labels...).Observe(duration)
}
