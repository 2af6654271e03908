package memory

import (
	"context"
	"errors"
	"sync"

	"coldstorage/internal/anomaly/application"
)

// AlertRepository is an in-memory alert event log for demo/testing.
type AlertRepository struct {
	mu     sync.RWMutex
	events []application.AlertEvent
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{}
}

// Append records an event.
func (r *AlertRepository) Append(ctx context.Context, event application.AlertEvent) error {
	_ = ctx
	if event.ID == "" || event.SensorID == "" {
		return errors.New("memory alerts: event missing id or sensor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// List returns matching events in insertion order, keeping the newest when
// a limit applies.
func (r *AlertRepository) List(ctx context.Context, query application.AlertQuery) ([]application.AlertEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]application.AlertEvent, 0)
	for _, event := range r.events {
		if query.SensorID != "" && event.SensorID != query.SensorID {
			continue
		}
		if !query.From.IsZero() && event.CreatedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !event.CreatedAt.Before(query.To) {
			continue
		}
		out = append(out, event)
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[len(out)-query.Limit:]
	}
	return out, nil
}
