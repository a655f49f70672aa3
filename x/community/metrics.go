package community

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ima-proxy/metrics"
)

// Metrics holds community ledger metrics
type Metrics struct {
	GasPrice       prometheus.Gauge
	StatusChanges  *prometheus.CounterVec
	WalletOps      *prometheus.CounterVec
	LimitedSenders prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, localChain string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := metrics.NewComponentRegistryWith(reg, "community", localChain)

	return &Metrics{
		GasPrice: r.NewGauge(prometheus.GaugeOpts{
			Name: "gas_price_wei",
			Help: "Last accepted mainnet gas price",
		}),

		StatusChanges: r.NewCounterVec(prometheus.CounterOpts{
			Name: "user_status_changes_total",
			Help: "User activations and locks",
		}, []string{"active"}),

		WalletOps: r.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Community pool wallet operations",
		}, []string{"op"}),

		LimitedSenders: r.NewCounter(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Exits rejected by the per-message time limit",
		}),
	}
}
