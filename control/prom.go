// control/prom.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus adapter exposing a MetricsRegistry's counters as collectors,
// grounded in the wider example pack's use of
// github.com/prometheus/client_golang for service-level metrics export.
package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter bridges a MetricsRegistry's int64 counters into Prometheus
// gauges (the registry holds point-in-time values, not strictly
// monotonic Prometheus counters, so Gauge is the honest mapping).
type Exporter struct {
	registry *MetricsRegistry
	gauges   map[string]prometheus.Gauge
	reg      *prometheus.Registry
}

// NewExporter wraps registry and registers one gauge per metric key
// currently present; call Refresh after new keys appear (e.g. after the
// first udp.drops increment) to pick them up.
func NewExporter(registry *MetricsRegistry) *Exporter {
	e := &Exporter{
		registry: registry,
		gauges:   make(map[string]prometheus.Gauge),
		reg:      prometheus.NewRegistry(),
	}
	e.Refresh()
	return e
}

// Registry returns the underlying prometheus.Registry for wiring into an
// HTTP handler via promhttp.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.reg
}

// Refresh registers a gauge for any metric key not yet tracked and
// pushes the latest snapshot's values into all tracked gauges.
func (e *Exporter) Refresh() {
	snap := e.registry.GetSnapshot()
	for key, val := range snap {
		g, ok := e.gauges[key]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "snio",
				Name:      sanitizeMetricName(key),
				Help:      "snio runtime counter: " + key,
			})
			e.reg.MustRegister(g)
			e.gauges[key] = g
		}
		if f, ok := toFloat64(val); ok {
			g.Set(f)
		}
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sanitizeMetricName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '.' || c == '-' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}
