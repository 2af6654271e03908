package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "coldstorage/internal/telemetry/domain"
)

const defaultSampleTable = "temperature_samples"

// SampleRepository is a Postgres store for raw temperature samples.
type SampleRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*SampleRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *SampleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSampleRepository constructs a repository with default table name.
func NewSampleRepository(db *sql.DB, opts ...RepositoryOption) *SampleRepository {
	repo := &SampleRepository{db: db, table: defaultSampleTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append inserts one accepted sample.
func (r *SampleRepository) Append(ctx context.Context, event telemetry.Event) error {
	if r == nil || r.db == nil {
		return errors.New("sample repo: nil db")
	}
	if event.DeviceID == "" || event.Timestamp.IsZero() {
		return errors.New("sample repo: invalid sample")
	}
	query := fmt.Sprintf(`INSERT INTO %s (device_id, ts, value) VALUES ($1, $2, $3)`, r.table)
	_, err := r.db.ExecContext(ctx, query, event.DeviceID, event.Timestamp.UTC(), event.Value)
	return err
}

// AppendBatch inserts samples in one transaction.
func (r *SampleRepository) AppendBatch(ctx context.Context, events []telemetry.Event) error {
	if r == nil || r.db == nil {
		return errors.New("sample repo: nil db")
	}
	if len(events) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (device_id, ts, value) VALUES ($1, $2, $3)`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, event := range events {
		if event.DeviceID == "" || event.Timestamp.IsZero() {
			_ = tx.Rollback()
			return errors.New("sample repo: invalid sample")
		}
		if _, err := stmt.ExecContext(ctx, event.DeviceID, event.Timestamp.UTC(), event.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListSince returns samples with ts >= since ordered by (ts, id).
func (r *SampleRepository) ListSince(ctx context.Context, since time.Time) ([]telemetry.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sample repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_id, ts, value
FROM %s
WHERE ts >= $1
ORDER BY ts, id`, r.table)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var event telemetry.Event
		if err := rows.Scan(&event.DeviceID, &event.Timestamp, &event.Value); err != nil {
			return nil, err
		}
		event.Timestamp = event.Timestamp.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
