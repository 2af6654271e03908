package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "coldstorage_"

	resultAccepted   = "accepted"
	resultOutOfOrder = "out_of_order"
	resultInvalid    = "invalid"
	resultIgnored    = "ignored"
	resultError      = "error"
)

var (
	registerOnce sync.Once

	samplesTotal  *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec

	alertEventsTotal *prometheus.CounterVec
	sensorState      *prometheus.GaugeVec

	streamReconnects *prometheus.CounterVec
	exportTotal      *prometheus.CounterVec
	exportLatency    *prometheus.HistogramVec
)

// Init registers the collectors and, when db is set, the storage gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		samplesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_total",
				Help: "Samples offered to the engines by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Per-sample ingest latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"result"},
		)
		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Alert lifecycle events by type",
			},
			[]string{"event"},
		)
		sensorState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sensor_state",
				Help: "Number of sensors per engine state",
			},
			[]string{"state"},
		)
		streamReconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_reconnects_total",
				Help: "Live stream reconnect attempts by source",
			},
			[]string{"source"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report renders by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report render latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		prometheus.MustRegister(
			samplesTotal,
			ingestLatency,
			alertEventsTotal,
			sensorState,
			streamReconnects,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSample records the result and latency of one ingest call.
func ObserveSample(result string, duration time.Duration) {
	if result == "" {
		result = resultAccepted
	}
	if samplesTotal != nil {
		samplesTotal.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// MoveSensorState shifts one sensor between state gauges. An empty from adds
// a new sensor.
func MoveSensorState(from, to string) {
	if sensorState == nil || from == to {
		return
	}
	if from != "" {
		sensorState.WithLabelValues(from).Dec()
	}
	if to != "" {
		sensorState.WithLabelValues(to).Inc()
	}
}

// IncStreamReconnect counts one reconnect attempt of a live source.
func IncStreamReconnect(source string) {
	if source == "" {
		source = "unknown"
	}
	if streamReconnects != nil {
		streamReconnects.WithLabelValues(source).Inc()
	}
}

// ObserveExport records a report render.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultAccepted
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	SampleAccepted   = resultAccepted
	SampleOutOfOrder = resultOutOfOrder
	SampleInvalid    = resultInvalid
	SampleIgnored    = resultIgnored

	ResultSuccess = "success"
	ResultError   = resultError
)
