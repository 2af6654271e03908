package memory

import (
	"context"
	"testing"
	"time"

	"coldstorage/internal/anomaly/application"
	telemetry "coldstorage/internal/telemetry/domain"
)

func TestAlertRepositoryList(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, sensor := range []string{"a", "b", "a", "a"} {
		event := application.AlertEvent{
			ID:        string(rune('1' + i)),
			SensorID:  sensor,
			Type:      application.AlertRaised,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.Append(ctx, application.AlertEvent{}); err == nil {
		t.Fatalf("expected error for empty event")
	}

	got, err := repo.List(ctx, application.AlertQuery{SensorID: "a", From: base.Add(time.Hour), Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("unexpected events %+v", got)
	}

	all, _ := repo.List(ctx, application.AlertQuery{To: base.Add(2 * time.Hour)})
	if len(all) != 2 {
		t.Fatalf("expected 2 events before the upper bound, got %d", len(all))
	}
}

func TestSampleRepositoryListSinceSorts(t *testing.T) {
	repo := NewSampleRepository()
	ctx := context.Background()
	base := time.Unix(1_600_000_000, 0).UTC()
	_ = repo.Append(ctx, telemetry.Event{DeviceID: "a", Timestamp: base.Add(2 * time.Minute), Value: 2})
	_ = repo.Append(ctx, telemetry.Event{DeviceID: "a", Timestamp: base, Value: 0})
	_ = repo.Append(ctx, telemetry.Event{DeviceID: "b", Timestamp: base.Add(time.Minute), Value: 1})

	got, err := repo.ListSince(ctx, base.Add(time.Second))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(got) != 2 || got[0].Value != 1 || got[1].Value != 2 {
		t.Fatalf("unexpected samples %+v", got)
	}
	if repo.Len() != 3 {
		t.Fatalf("expected 3 stored samples, got %d", repo.Len())
	}
}
