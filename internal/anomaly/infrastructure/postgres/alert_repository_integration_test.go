package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
	anomalypostgres "coldstorage/internal/anomaly/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlertRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'anomaly_alert_events')`).Scan(&exists); err != nil || !exists {
		t.Skip("anomaly_alert_events missing; run migrations")
	}

	ctx := context.Background()
	sensor := "sensor-it"
	_, _ = db.ExecContext(ctx, "DELETE FROM anomaly_alert_events WHERE sensor_id = $1", sensor)

	repo, err := anomalypostgres.NewAlertRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	base := time.Date(2031, time.February, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []string{application.AlertRaised, application.AlertCleared, application.AlertRaised} {
		event := application.AlertEvent{
			ID:             uuid.NewString(),
			Type:           kind,
			SensorID:       sensor,
			Classification: anomaly.ClassAbove,
			Value:          9,
			Upper:          5,
			Lower:          1,
			Level:          3,
			SampleAt:       base.Add(time.Duration(i) * time.Hour),
			BoundAt:        base.Add(time.Duration(i)*time.Hour - 3*time.Hour),
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("duplicate append: %v", err)
		}
	}

	events, err := repo.List(ctx, application.AlertQuery{SensorID: sensor, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != application.AlertCleared || events[1].Type != application.AlertRaised {
		t.Fatalf("unexpected order %+v", events)
	}
	if events[1].Classification != anomaly.ClassAbove {
		t.Fatalf("unexpected classification %s", events[1].Classification)
	}
}
