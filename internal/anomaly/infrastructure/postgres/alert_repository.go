package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
)

const defaultAlertTable = "anomaly_alert_events"

// AlertRepository persists alert lifecycle events.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) (*AlertRepository, error) {
	if db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	return &AlertRepository{db: db, table: defaultAlertTable}, nil
}

// Append inserts an event. Re-inserting the same id is a no-op.
func (r *AlertRepository) Append(ctx context.Context, event application.AlertEvent) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if event.ID == "" || event.SensorID == "" {
		return errors.New("alert repo: event missing id or sensor")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	event_type,
	sensor_id,
	classification,
	value,
	upper_bound,
	lower_bound,
	level,
	over_limit,
	sample_at,
	bound_at,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
ON CONFLICT (id) DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.SensorID,
		string(event.Classification),
		event.Value,
		event.Upper,
		event.Lower,
		event.Level,
		event.OverLimit,
		event.SampleAt.UTC(),
		event.BoundAt.UTC(),
		event.CreatedAt.UTC(),
	)
	return err
}

// List returns events matching query ordered by creation time. With a limit,
// the newest events are kept.
func (r *AlertRepository) List(ctx context.Context, query application.AlertQuery) ([]application.AlertEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	if query.SensorID != "" {
		args = append(args, query.SensorID)
		clauses = append(clauses, fmt.Sprintf("sensor_id = $%d", len(args)))
	}
	if !query.From.IsZero() {
		args = append(args, query.From.UTC())
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !query.To.IsZero() {
		args = append(args, query.To.UTC())
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := ""
	if query.Limit > 0 {
		args = append(args, query.Limit)
		limit = fmt.Sprintf("LIMIT $%d", len(args))
	}

	stmt := fmt.Sprintf(`
SELECT id, event_type, sensor_id, classification, value, upper_bound, lower_bound, level,
	over_limit, sample_at, bound_at, created_at
FROM (
	SELECT * FROM %s
	%s
	ORDER BY created_at DESC, id DESC
	%s
) recent
ORDER BY created_at, id`, r.table, where, limit)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []application.AlertEvent
	for rows.Next() {
		var (
			event application.AlertEvent
			class string
		)
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.SensorID,
			&class,
			&event.Value,
			&event.Upper,
			&event.Lower,
			&event.Level,
			&event.OverLimit,
			&event.SampleAt,
			&event.BoundAt,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.Classification = anomaly.Classification(class)
		event.SampleAt = event.SampleAt.UTC()
		event.BoundAt = event.BoundAt.UTC()
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
