package boot

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for unit outcomes.
const (
	statusLoaded  = "loaded"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

// Metrics holds the prometheus collectors fed by a Boot configured with
// WithMetrics. One Metrics value must not be shared between registries.
type Metrics struct {
	loadDuration prometheus.Histogram
	unitsTotal   *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// NewMetrics builds and registers the boot collectors on reg. It panics on a
// duplicate registration, so create one Metrics per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boot_unit_load_seconds",
				Help:    "Duration from unit start to unit loaded, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boot_units_total",
				Help: "Total number of units processed, by outcome.",
			},
			[]string{"status"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "boot_units_in_flight",
				Help: "Number of units currently between start and loaded.",
			},
		),
	}
	reg.MustRegister(m.loadDuration, m.unitsTotal, m.inFlight)

	// Pre-initialize label values so every outcome appears at 0 from startup
	// rather than only after its first observation.
	m.unitsTotal.WithLabelValues(statusLoaded)
	m.unitsTotal.WithLabelValues(statusFailed)
	m.unitsTotal.WithLabelValues(statusSkipped)
	return m
}
