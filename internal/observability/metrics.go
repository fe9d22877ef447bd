package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nwis_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the poll pipeline.
type Metrics struct {
	PollCycles      *prometheus.CounterVec // labels: outcome={success,error}
	SitesDiscovered prometheus.Gauge
	SeriesExtracted prometheus.Counter
	EventsLoaded    prometheus.Counter
	InvalidPoints   *prometheus.CounterVec // labels: reason
	TransformErrors prometheus.Counter
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge
	CycleDuration   prometheus.Histogram

	// NWIS request metrics, fed by the client's observer hook.
	NWISRequests        *prometheus.CounterVec // labels: outcome
	NWISRequestDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// ObserveNWISRequest records one NWIS request. Its signature matches
// nwis.Observer.
func (m *Metrics) ObserveNWISRequest(outcome string, elapsed time.Duration) {
	m.NWISRequests.WithLabelValues(outcome).Inc()
	m.NWISRequestDuration.Observe(elapsed.Seconds())
}

func newMetrics() *Metrics {
	return &Metrics{
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by outcome.",
		}, []string{"outcome"}),
		SitesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sites_discovered",
			Help:      "Sites matched by the major filter in the last cycle.",
		}),
		SeriesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_extracted_total",
			Help:      "Time series projected from NWIS responses.",
		}),
		EventsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_loaded_total",
			Help:      "Series events written to the sink.",
		}),
		InvalidPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_points_total",
			Help:      "Points kept without a numeric value, by reason.",
		}, []string{"reason"}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Series that could not be turned into events.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll cycle.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete discover-fetch-load cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		NWISRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nwis_requests_total",
			Help:      "NWIS web service requests by outcome.",
		}, []string{"outcome"}),
		NWISRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nwis_request_duration_seconds",
			Help:      "NWIS request duration including body read.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PollCycles,
		m.SitesDiscovered,
		m.SeriesExtracted,
		m.EventsLoaded,
		m.InvalidPoints,
		m.TransformErrors,
		m.PipelineRunning,
		m.LastSuccess,
		m.CycleDuration,
		m.NWISRequests,
		m.NWISRequestDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
