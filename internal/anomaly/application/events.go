package application

import (
	"context"
	"time"

	anomaly "coldstorage/internal/anomaly/domain"
	telemetry "coldstorage/internal/telemetry/domain"
)

// Alert lifecycle event types.
const (
	AlertRaised  = "raised"
	AlertCleared = "cleared"
)

// AlertEvent records an excursion starting or ending on one sensor.
type AlertEvent struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	SensorID       string                 `json:"sensor_id"`
	Classification anomaly.Classification `json:"classification"`
	Value          float64                `json:"value"`
	Upper          float64                `json:"upper"`
	Lower          float64                `json:"lower"`
	Level          float64                `json:"level"`
	OverLimit      bool                   `json:"over_limit"`
	SampleAt       time.Time              `json:"sample_at"`
	BoundAt        time.Time              `json:"bound_at"`
	CreatedAt      time.Time              `json:"created_at"`
}

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertStore records alert lifecycle events.
type AlertStore interface {
	Append(ctx context.Context, event AlertEvent) error
}

// AlertQuery filters recorded alert events. Zero values are unbounded.
type AlertQuery struct {
	SensorID string
	From     time.Time
	To       time.Time
	Limit    int
}

// AlertReader lists recorded alert events ordered by creation time.
type AlertReader interface {
	List(ctx context.Context, query AlertQuery) ([]AlertEvent, error)
}

// SampleStore persists accepted raw samples.
type SampleStore interface {
	Append(ctx context.Context, event telemetry.Event) error
}

// SampleSource loads persisted raw samples ordered by timestamp.
type SampleSource interface {
	ListSince(ctx context.Context, since time.Time) ([]telemetry.Event, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
