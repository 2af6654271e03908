package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	anomaly "coldstorage/internal/anomaly/domain"
	"coldstorage/internal/observability/metrics"
	telemetry "coldstorage/internal/telemetry/domain"
)

var (
	// ErrUnknownSensor indicates an event from a device outside the allowlist.
	ErrUnknownSensor = errors.New("anomaly director: unknown sensor")
	// ErrSensorNotFound indicates a lookup for a sensor that has no engine.
	ErrSensorNotFound = errors.New("anomaly director: sensor not found")
	// ErrEmptySensorID indicates an event without a device id.
	ErrEmptySensorID = errors.New("anomaly director: empty sensor id")
)

// Reading is the outcome of one accepted sample.
type Reading struct {
	SensorID       string                 `json:"sensor_id"`
	Timestamp      time.Time              `json:"timestamp"`
	Value          float64                `json:"value"`
	Bound          anomaly.Bound          `json:"bound"`
	Classification anomaly.Classification `json:"classification"`
	State          string                 `json:"state"`
	OverLimit      bool                   `json:"over_limit"`
	Alert          *AlertEvent            `json:"alert,omitempty"`
}

// SensorSummary describes one sensor for listings.
type SensorSummary struct {
	ID             string                 `json:"id"`
	State          string                 `json:"state"`
	SampleCount    int                    `json:"sample_count"`
	Alerting       bool                   `json:"alerting"`
	LastValue      *float64               `json:"last_value,omitempty"`
	LastSampleAt   *time.Time             `json:"last_sample_at,omitempty"`
	LatestBound    *anomaly.Bound         `json:"latest_bound,omitempty"`
	Classification anomaly.Classification `json:"classification,omitempty"`
}

// ReplayResult counts the outcome of a batch dispatch.
type ReplayResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Ignored  int `json:"ignored"`
}

type sensor struct {
	mu        sync.Mutex
	engine    *anomaly.Engine
	alerting  bool
	lastClass anomaly.Classification
}

// Director owns one engine per sensor and relays events to them. Sensors are
// created on their first sample. Each sensor is driven sequentially while
// distinct sensors progress concurrently.
type Director struct {
	cfg      anomaly.Config
	maxTemp  float64
	allow    map[string]struct{}
	samples  SampleStore
	alerts   AlertStore
	notifier AlertNotifier
	clock    Clock
	logger   *log.Logger

	mu      sync.RWMutex
	sensors map[string]*sensor
}

// Option configures the director.
type Option func(*Director)

// WithSensors restricts the director to the given device ids.
func WithSensors(ids ...string) Option {
	return func(d *Director) {
		if len(ids) == 0 {
			return
		}
		d.allow = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if id != "" {
				d.allow[id] = struct{}{}
			}
		}
	}
}

// WithSampleStore persists every accepted sample.
func WithSampleStore(store SampleStore) Option {
	return func(d *Director) {
		d.samples = store
	}
}

// WithAlertStore records alert events.
func WithAlertStore(store AlertStore) Option {
	return func(d *Director) {
		d.alerts = store
	}
}

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) Option {
	return func(d *Director) {
		d.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(d *Director) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Director) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithStorageMaxTemp flags readings whose baseline exceeds limit.
func WithStorageMaxTemp(limit float64) Option {
	return func(d *Director) {
		d.maxTemp = limit
	}
}

// NewDirector validates cfg and constructs an empty director.
func NewDirector(cfg anomaly.Config, opts ...Option) (*Director, error) {
	if cfg.Alignment == "" {
		cfg.Alignment = anomaly.AlignTimestamp
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Director{
		cfg:     cfg,
		maxTemp: 4,
		clock:   systemClock{},
		logger:  log.Default(),
		sensors: make(map[string]*sensor),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the engine parameters shared by every sensor.
func (d *Director) Config() anomaly.Config {
	return d.cfg
}

// StorageMaxTemp returns the storage temperature limit.
func (d *Director) StorageMaxTemp() float64 {
	return d.maxTemp
}

// Ingest relays one event to its sensor, persists it and emits alert
// transitions. Unknown devices yield ErrUnknownSensor when an allowlist is set.
func (d *Director) Ingest(ctx context.Context, evt telemetry.Event) (Reading, error) {
	return d.ingest(ctx, evt, modeLive)
}

// dispatchMode selects how an event is relayed.
type dispatchMode struct {
	// live persists the sample and publishes alert transitions.
	live bool
	// unlisted admits devices outside the allowlist.
	unlisted bool
}

var (
	modeLive    = dispatchMode{live: true}
	modeImport  = dispatchMode{live: true, unlisted: true}
	modeRestore = dispatchMode{unlisted: true}
)

func (d *Director) ingest(ctx context.Context, evt telemetry.Event, mode dispatchMode) (Reading, error) {
	start := time.Now()
	result := metrics.SampleAccepted
	defer func() {
		metrics.ObserveSample(result, time.Since(start))
	}()

	if evt.DeviceID == "" {
		result = metrics.SampleInvalid
		return Reading{}, ErrEmptySensorID
	}
	if !mode.unlisted && !d.known(evt.DeviceID) {
		result = metrics.SampleIgnored
		return Reading{}, fmt.Errorf("%w: %s", ErrUnknownSensor, evt.DeviceID)
	}
	s, err := d.sensorFor(evt.DeviceID)
	if err != nil {
		result = metrics.ResultError
		return Reading{}, err
	}

	s.mu.Lock()
	before := s.engine.State()
	bound, err := s.engine.Ingest(evt.Unix(), evt.Value)
	if err != nil {
		s.mu.Unlock()
		switch {
		case errors.Is(err, anomaly.ErrOutOfOrderSample):
			result = metrics.SampleOutOfOrder
		default:
			result = metrics.SampleInvalid
		}
		return Reading{}, err
	}
	after := s.engine.State()
	class := anomaly.Classify(evt.Value, bound)
	reading := Reading{
		SensorID:       evt.DeviceID,
		Timestamp:      evt.Timestamp,
		Value:          evt.Value,
		Bound:          bound,
		Classification: class,
		State:          after.String(),
		OverLimit:      bound.Level > d.maxTemp,
	}
	alert := d.transition(s, reading)
	s.lastClass = class
	s.mu.Unlock()

	metrics.MoveSensorState(before.String(), after.String())

	if !mode.live {
		return reading, nil
	}
	if d.samples != nil {
		if err := d.samples.Append(ctx, evt); err != nil {
			d.logger.Printf("anomaly director: persist sample error: %v", err)
		}
	}
	if alert != nil {
		reading.Alert = alert
		d.publish(ctx, *alert)
	}
	return reading, nil
}

// transition updates the alerting latch of s. Callers hold s.mu.
func (d *Director) transition(s *sensor, reading Reading) *AlertEvent {
	var eventType string
	switch {
	case reading.Classification.OutOfBand() && !s.alerting:
		s.alerting = true
		eventType = AlertRaised
	case reading.Classification == anomaly.ClassInBand && s.alerting:
		s.alerting = false
		eventType = AlertCleared
	default:
		return nil
	}
	return &AlertEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		SensorID:       reading.SensorID,
		Classification: reading.Classification,
		Value:          reading.Value,
		Upper:          reading.Bound.Upper,
		Lower:          reading.Bound.Lower,
		Level:          reading.Bound.Level,
		OverLimit:      reading.OverLimit,
		SampleAt:       reading.Timestamp,
		BoundAt:        time.Unix(reading.Bound.TS, 0).UTC(),
		CreatedAt:      d.clock.Now().UTC(),
	}
}

func (d *Director) publish(ctx context.Context, event AlertEvent) {
	metrics.IncAlertEvent(event.Type)
	if d.alerts != nil {
		if err := d.alerts.Append(ctx, event); err != nil {
			d.logger.Printf("anomaly director: record alert error: %v", err)
		}
	}
	if d.notifier != nil {
		d.notifier.Notify(ctx, event)
	}
}

// Replay sorts events by timestamp and dispatches them in order. Rejected and
// ignored events are counted, not returned.
func (d *Director) Replay(ctx context.Context, events []telemetry.Event) (ReplayResult, error) {
	sorted := make([]telemetry.Event, len(events))
	copy(sorted, events)
	telemetry.SortEvents(sorted)
	return d.dispatch(ctx, sorted, modeLive)
}

// ReplayImport replays an operator-supplied recording like Replay, but admits
// devices outside the allowlist.
func (d *Director) ReplayImport(ctx context.Context, events []telemetry.Event) (ReplayResult, error) {
	sorted := make([]telemetry.Event, len(events))
	copy(sorted, events)
	telemetry.SortEvents(sorted)
	return d.dispatch(ctx, sorted, modeImport)
}

// Restore rebuilds engine state from persisted samples without persisting
// them again or emitting alerts. Stored samples bypass the allowlist. It
// returns the time of the newest sample.
func (d *Director) Restore(ctx context.Context, source SampleSource, since time.Time) (time.Time, ReplayResult, error) {
	if source == nil {
		return time.Time{}, ReplayResult{}, errors.New("anomaly director: nil sample source")
	}
	events, err := source.ListSince(ctx, since)
	if err != nil {
		return time.Time{}, ReplayResult{}, err
	}
	telemetry.SortEvents(events)
	res, err := d.dispatch(ctx, events, modeRestore)
	var latest time.Time
	if len(events) > 0 {
		latest = events[len(events)-1].Timestamp
	}
	return latest, res, err
}

func (d *Director) dispatch(ctx context.Context, events []telemetry.Event, mode dispatchMode) (ReplayResult, error) {
	var res ReplayResult
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := d.ingest(ctx, evt, mode)
		switch {
		case err == nil:
			res.Accepted++
		case errors.Is(err, ErrUnknownSensor):
			res.Ignored++
		default:
			res.Rejected++
			d.logger.Printf("anomaly director: replay %s at %s error: %v", evt.DeviceID, evt.Timestamp.Format(time.RFC3339), err)
		}
	}
	return res, nil
}

// Sensors summarizes every known sensor ordered by id. Allowlisted sensors
// without samples are listed in the cold state.
func (d *Director) Sensors() []SensorSummary {
	d.mu.RLock()
	ids := make(map[string]*sensor, len(d.sensors)+len(d.allow))
	for id := range d.allow {
		ids[id] = nil
	}
	for id, s := range d.sensors {
		ids[id] = s
	}
	d.mu.RUnlock()

	out := make([]SensorSummary, 0, len(ids))
	for id, s := range ids {
		summary := SensorSummary{ID: id, State: anomaly.StateCold.String()}
		if s != nil {
			summary = s.summary(id)
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sensor summarizes one sensor.
func (d *Director) Sensor(id string) (SensorSummary, error) {
	s, ok := d.lookup(id)
	if !ok {
		return SensorSummary{}, ErrSensorNotFound
	}
	return s.summary(id), nil
}

// Snapshot copies the derived series of one sensor.
func (d *Director) Snapshot(id string) (anomaly.Snapshot, error) {
	s, ok := d.lookup(id)
	if !ok {
		return anomaly.Snapshot{}, ErrSensorNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(), nil
}

func (s *sensor) summary(id string) SensorSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := SensorSummary{
		ID:             id,
		State:          s.engine.State().String(),
		SampleCount:    s.engine.SampleCount(),
		Alerting:       s.alerting,
		Classification: s.lastClass,
	}
	temps := s.engine.Temperature()
	if len(temps) > 0 {
		last := temps[len(temps)-1]
		at := time.Unix(last.TS, 0).UTC()
		summary.LastValue = &last.Value
		summary.LastSampleAt = &at
	}
	if b, ok := s.engine.LatestBound(); ok {
		summary.LatestBound = &b
	}
	return summary
}

func (d *Director) known(id string) bool {
	if d.allow == nil {
		return true
	}
	_, ok := d.allow[id]
	return ok
}

func (d *Director) lookup(id string) (*sensor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sensors[id]
	return s, ok
}

func (d *Director) sensorFor(id string) (*sensor, error) {
	if s, ok := d.lookup(id); ok {
		return s, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sensors[id]; ok {
		return s, nil
	}
	engine, err := anomaly.NewEngine(d.cfg)
	if err != nil {
		return nil, err
	}
	s := &sensor{engine: engine}
	d.sensors[id] = s
	metrics.MoveSensorState("", anomaly.StateCold.String())
	d.logger.Printf("anomaly director: sensor %s registered", id)
	return s, nil
}
