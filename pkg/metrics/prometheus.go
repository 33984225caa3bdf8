package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter mirrors a Registry's counters and gauges into
// client_golang vectors on every scrape, so the hand-rolled atomic
// metrics stay the internal source of truth while Prometheus remains the
// external sink, matching the teacher's own Handler()/promhttp.Handler()
// pattern.
type PrometheusExporter struct {
	registry *Registry
	gaugeVec *prometheus.GaugeVec
}

// NewPrometheusExporter builds an exporter over registry, registered
// into its own prometheus.Registry so repeated construction in tests
// never collides with the global default registerer.
func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "toy",
		Name:      "metric",
		Help:      "Mirrored value of an internal counter or gauge.",
	}, []string{"name", "kind"})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(gaugeVec)

	return &PrometheusExporter{registry: registry, gaugeVec: gaugeVec}
}

// Handler returns an http.Handler exposing the current snapshot in the
// Prometheus exposition format.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.sync()
		reg := prometheus.NewRegistry()
		reg.MustRegister(e.gaugeVec)
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func (e *PrometheusExporter) sync() {
	snap := e.registry.Snapshot()
	e.gaugeVec.Reset()
	for name, v := range snap.Counters {
		e.gaugeVec.WithLabelValues(name, "counter").Set(float64(v))
	}
	for name, v := range snap.Gauges {
		e.gaugeVec.WithLabelValues(name, "gauge").Set(v)
	}
}
