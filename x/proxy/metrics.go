package proxy

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ima-proxy/metrics"
)

// Metrics holds all proxy-level metrics
type Metrics struct {
	BatchesTotal     *prometheus.CounterVec
	MessagesTotal    *prometheus.CounterVec
	EnqueuedTotal    *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	DispatchDuration prometheus.Histogram
	IncomingCounter  *prometheus.GaugeVec
	OutgoingCounter  *prometheus.GaugeVec
	ConnectedChains  prometheus.Gauge
}

// NewMetrics creates proxy metrics
func NewMetrics(reg prometheus.Registerer, localChain string) *Metrics {
	r := metrics.NewComponentRegistryWith(reg, "proxy", localChain)

	return &Metrics{
		BatchesTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_total",
			Help: "Incoming batches by outcome",
		}, []string{"result"}),

		MessagesTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Incoming messages by delivery reason",
		}, []string{"reason"}),

		EnqueuedTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "enqueued_total",
			Help: "Outgoing messages appended per destination",
		}, []string{"remote_chain"}),

		BatchSize: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of messages in an accepted batch",
			Buckets: metrics.CountBuckets,
		}),

		DispatchDuration: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Time spent in a message handler",
			Buckets: metrics.DurationBuckets,
		}),

		IncomingCounter: r.NewGaugeVec(prometheus.GaugeOpts{
			Name: "incoming_counter",
			Help: "Next expected incoming counter per remote chain",
		}, []string{"remote_chain"}),

		OutgoingCounter: r.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outgoing_counter",
			Help: "Messages ever enqueued per remote chain",
		}, []string{"remote_chain"}),

		ConnectedChains: r.NewGauge(prometheus.GaugeOpts{
			Name: "connected_chains",
			Help: "Number of remote chains with an open channel",
		}),
	}
}

func (m *Metrics) RecordBatch(result string, size int) {
	m.BatchesTotal.WithLabelValues(result).Inc()
	if result == "accepted" {
		m.BatchSize.Observe(float64(size))
	}
}

func (m *Metrics) RecordMessage(reason string) {
	m.MessagesTotal.WithLabelValues(reason).Inc()
}
