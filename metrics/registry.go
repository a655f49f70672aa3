package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the node.
const Namespace = "ima"

var (
	// CountBuckets suits small cardinalities such as batch sizes.
	CountBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500}
	// DurationBuckets covers sub-millisecond dispatches up to slow store writes.
	DurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
)

// ComponentRegistry creates collectors scoped to one component.
// Registering the same collector twice returns the existing one, so components
// can be constructed repeatedly in one process (tests, multiple nodes).
type ComponentRegistry struct {
	subsystem string
	labels    prometheus.Labels
	reg       prometheus.Registerer
}

// NewComponentRegistry uses the default prometheus registerer.
func NewComponentRegistry(component, chain string) *ComponentRegistry {
	return NewComponentRegistryWith(prometheus.DefaultRegisterer, component, chain)
}

// NewComponentRegistryWith registers into reg. A non-empty chain becomes a const label.
func NewComponentRegistryWith(reg prometheus.Registerer, component, chain string) *ComponentRegistry {
	var labels prometheus.Labels
	if chain != "" {
		labels = prometheus.Labels{"local_chain": chain}
	}
	return &ComponentRegistry{
		subsystem: component,
		labels:    labels,
		reg:       reg,
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewCounter(opts))
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewCounterVec(opts, labels))
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewGauge(opts))
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewGaugeVec(opts, labels))
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewHistogram(opts))
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = Namespace, r.subsystem, r.labels
	return register(r.reg, prometheus.NewHistogramVec(opts, labels))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
