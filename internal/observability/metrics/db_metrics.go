package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_samples",
			Help: "Raw temperature samples in storage",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM temperature_samples")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "open_alerts",
			Help: "Sensors whose latest alert event is raised",
		},
		func() float64 {
			return queryCount(db, logger, `SELECT COUNT(*) FROM (
				SELECT DISTINCT ON (sensor_id) event_type
				FROM anomaly_alert_events
				ORDER BY sensor_id, created_at DESC, id DESC
			) latest WHERE event_type = 'raised'`)
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
