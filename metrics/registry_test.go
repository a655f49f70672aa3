package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistry_ReusesExistingCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := NewComponentRegistryWith(reg, "proxy", "Mainnet").NewCounter(prometheus.CounterOpts{
		Name: "batches_total",
		Help: "batches",
	})
	b := NewComponentRegistryWith(reg, "proxy", "Mainnet").NewCounter(prometheus.CounterOpts{
		Name: "batches_total",
		Help: "batches",
	})

	a.Inc()
	b.Inc()
	require.InDelta(t, 2, testutil.ToFloat64(a), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "ima_proxy_batches_total", families[0].GetName())
	require.Equal(t, "local_chain", families[0].GetMetric()[0].GetLabel()[0].GetName())
}
