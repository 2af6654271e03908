package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	telemetry "coldstorage/internal/telemetry/domain"
)

// SampleRepository keeps raw samples in memory for demo/testing.
type SampleRepository struct {
	mu     sync.RWMutex
	events []telemetry.Event
}

// NewSampleRepository constructs a repository.
func NewSampleRepository() *SampleRepository {
	return &SampleRepository{}
}

// Append stores an accepted sample.
func (r *SampleRepository) Append(ctx context.Context, event telemetry.Event) error {
	_ = ctx
	if event.DeviceID == "" {
		return errors.New("memory samples: empty device id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// ListSince returns samples at or after since, ordered by timestamp.
func (r *SampleRepository) ListSince(ctx context.Context, since time.Time) ([]telemetry.Event, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]telemetry.Event, 0, len(r.events))
	for _, event := range r.events {
		if event.Timestamp.Before(since) {
			continue
		}
		out = append(out, event)
	}
	r.mu.RUnlock()
	telemetry.SortEvents(out)
	return out, nil
}

// Len returns the number of stored samples.
func (r *SampleRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
