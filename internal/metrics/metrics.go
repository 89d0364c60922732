// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors the pipeline updates. Construct once per
// process (or per test) with its own registry.
type Metrics struct {
	ReadingsPublished prometheus.Counter
	PointsIngested    prometheus.Counter
	IngestDropped     prometheus.Counter
	FilteredWritten   prometheus.Counter
	AlertsEmitted     *prometheus.CounterVec
	EmailFailures     prometheus.Counter
	SimulatorQueue    prometheus.Gauge
}

// New registers all collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_readings_published_total",
			Help: "Simulated readings published to the broker.",
		}),
		PointsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_points_ingested_total",
			Help: "Raw points written to the time-series store.",
		}),
		IngestDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_ingest_dropped_total",
			Help: "Broker messages dropped as malformed.",
		}),
		FilteredWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_filtered_points_total",
			Help: "Change events written to the filtered store.",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_alerts_emitted_total",
			Help: "Alerts emitted by the notification engine.",
		}, []string{"severity"}),
		EmailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_email_failures_total",
			Help: "Outbound alert emails that failed to send.",
		}),
		SimulatorQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_simulator_queue_length",
			Help: "Readings buffered between generation and publish.",
		}),
	}

	reg.MustRegister(
		m.ReadingsPublished,
		m.PointsIngested,
		m.IngestDropped,
		m.FilteredWritten,
		m.AlertsEmitted,
		m.EmailFailures,
		m.SimulatorQueue,
	)
	return m
}
