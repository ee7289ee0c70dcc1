package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roadwx_ingest"

// Frame discard reasons, used as the "reason" label of FramesDiscarded.
const (
	ReasonNoise    = "noise"
	ReasonOverflow = "overflow"
	ReasonChecksum = "checksum"
	ReasonCorrupt  = "corrupt"
)

// Channel anomaly kinds, used as the "kind" label of ChannelAnomalies.
const (
	AnomalyDeviceError = "device_error"
	AnomalyMalformed   = "malformed"
	AnomalyNonFinite   = "non_finite"
	AnomalyUnmapped    = "unmapped"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest service.
type Metrics struct {
	// Station connections.
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	BytesReceived     prometheus.Counter

	// Decode path.
	FramesAssembled  prometheus.Counter
	FramesDecoded    *prometheus.CounterVec // labels: device
	FramesDiscarded  *prometheus.CounterVec // labels: reason={noise,overflow,checksum,corrupt}
	BytesDiscarded   *prometheus.CounterVec // labels: reason={noise,overflow}
	ChannelAnomalies *prometheus.CounterVec // labels: kind={device_error,malformed,non_finite,unmapped}

	// Correlation.
	ObservationsCorrelated prometheus.Counter
	PairsDiscarded         *prometheus.CounterVec // labels: reason={repeat,unpaired,disconnect}

	// Sink.
	QueueDepth              prometheus.Gauge
	ObservationsLoaded      prometheus.Counter
	LoadErrors              prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
	SinkRequestDuration     *prometheus.HistogramVec // labels: sink={kafka,collector}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not registered anywhere, so
// tests and offline tools can build as many as they need.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Station connections currently open.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Station connections accepted.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes read from station connections.",
		}),
		FramesAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_assembled_total",
			Help:      "Complete frames recovered from the byte stream.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames that passed validation and decoding, by device class.",
		}, []string{"device"}),
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Frames or partial frames dropped, by reason.",
		}, []string{"reason"}),
		BytesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_discarded_total",
			Help:      "Bytes thrown away by the frame assembler, by reason.",
		}, []string{"reason"}),
		ChannelAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_anomalies_total",
			Help:      "Channel records decoded as error markers or unmapped names, by kind.",
		}, []string{"kind"}),
		ObservationsCorrelated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_correlated_total",
			Help:      "Observations merged from a complementary device pair.",
		}),
		PairsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_discarded_total",
			Help:      "Pending frames dropped without a partner, by reason.",
		}, []string{"reason"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Observations waiting for the sink.",
		}),
		ObservationsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_loaded_total",
			Help:      "Observations delivered to every configured sink.",
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed batch deliveries.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the sink loop is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Observations per batch handed to the sinks.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a batch load across all sinks.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SinkRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_request_duration_seconds",
			Help:      "Duration of one batch write to a single sink.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"sink"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.BytesReceived,
		m.FramesAssembled,
		m.FramesDecoded,
		m.FramesDiscarded,
		m.BytesDiscarded,
		m.ChannelAnomalies,
		m.ObservationsCorrelated,
		m.PairsDiscarded,
		m.QueueDepth,
		m.ObservationsLoaded,
		m.LoadErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.SinkRequestDuration,
	}
}
