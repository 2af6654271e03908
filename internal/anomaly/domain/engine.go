package anomaly

import (
	"fmt"
	"math"
)

// State is the warm-up stage of an engine.
type State int

const (
	// StateCold means no sample has been ingested.
	StateCold State = iota
	// StateWarming means bounds are placeholders until a robust window exists.
	StateWarming
	// StateStable means bounds are derived from robust statistics.
	StateStable
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateWarming:
		return "warming"
	case StateStable:
		return "stable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine derives the baseline, robust statistics and bounds of one sensor.
//
// An Engine is not safe for concurrent use; drive each instance from a single
// caller. Distinct engines share no state.
type Engine struct {
	cfg      Config
	baseline baselineEstimator
	sampler  robustSampler
	bounder  boundCalculator

	temperature Series
	level       Series
	maxDev      Series
	minDev      Series
	dispersion  Series
	bounds      []Bound

	samples   int
	lastCycle int64
	stable    bool
}

// NewEngine validates cfg and constructs an engine in the cold state.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Alignment == "" {
		cfg.Alignment = AlignTimestamp
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	delay := seconds(cfg.Delay)
	return &Engine{
		cfg:      cfg,
		baseline: baselineEstimator{delay: delay},
		sampler: robustSampler{
			delay:     delay,
			cycle:     seconds(cfg.RobustCycle),
			width:     seconds(cfg.RobustWidth),
			alignment: cfg.Alignment,
		},
		bounder: boundCalculator{
			windows:  cfg.WindowCount(),
			mmad:     cfg.MMAD,
			minWidth: cfg.BoundMinVal,
		},
	}, nil
}

// Ingest appends one sample and returns the bound computed for it. Samples
// must arrive in non-decreasing timestamp order; a rejected sample leaves the
// engine untouched.
func (e *Engine) Ingest(ts int64, value float64) (Bound, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Bound{}, fmt.Errorf("%w: value %v at ts %d", ErrInvalidSample, value, ts)
	}
	if last, ok := e.temperature.Last(); ok && ts < last.TS {
		return Bound{}, &OutOfOrderSampleError{TS: ts, Latest: last.TS}
	}

	e.temperature.add(ts, value)
	e.samples++

	if p, ok := e.baseline.estimate(&e.temperature, ts); ok {
		e.level.add(p.TS, p.Value)
	}

	if e.sampler.due(ts, e.lastCycle) {
		if s, ok := e.sampler.sample(&e.temperature, &e.level, ts); ok {
			e.maxDev.add(s.TS, s.MaxDeviation)
			e.minDev.add(s.TS, s.MinDeviation)
			e.dispersion.add(s.TS, s.MAD)
		}
		// The cycle is consumed even when the window was empty.
		e.lastCycle = ts
	}

	level, _ := e.level.Last()
	bound := e.bounder.compute(&e.maxDev, &e.minDev, &e.dispersion, level.Value, ts-e.baseline.delay, value)
	if !bound.Placeholder {
		e.stable = true
	}
	e.bounds = append(e.bounds, bound)
	return bound, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() Config { return e.cfg }

// SampleCount returns the number of accepted samples.
func (e *Engine) SampleCount() int { return e.samples }

// LastRobustCycle returns the source time of the latest robust cycle, or 0.
func (e *Engine) LastRobustCycle() int64 { return e.lastCycle }

// State returns the warm-up stage. Once stable, an engine stays stable.
func (e *Engine) State() State {
	switch {
	case e.samples == 0:
		return StateCold
	case e.stable:
		return StateStable
	default:
		return StateWarming
	}
}

// HasRobustHistory reports whether bounds are backed by robust statistics.
func (e *Engine) HasRobustHistory() bool { return e.dispersion.Len() > 0 }

// Temperature returns the raw samples.
func (e *Engine) Temperature() []Point { return e.temperature.Points() }

// Baseline returns the delayed median levels.
func (e *Engine) Baseline() []Point { return e.level.Points() }

// MaxDeviation returns the per-cycle maximum deviation from the baseline.
func (e *Engine) MaxDeviation() []Point { return e.maxDev.Points() }

// MinDeviation returns the per-cycle minimum deviation from the baseline.
func (e *Engine) MinDeviation() []Point { return e.minDev.Points() }

// Dispersion returns the per-cycle median absolute deviation.
func (e *Engine) Dispersion() []Point { return e.dispersion.Points() }

// RobustSamples returns the three robust series zipped by cycle.
func (e *Engine) RobustSamples() []RobustSample {
	out := make([]RobustSample, e.dispersion.Len())
	for i := range out {
		out[i] = RobustSample{
			TS:           e.dispersion.points[i].TS,
			MaxDeviation: e.maxDev.points[i].Value,
			MinDeviation: e.minDev.points[i].Value,
			MAD:          e.dispersion.points[i].Value,
		}
	}
	return out
}

// Bounds returns every bound produced so far.
func (e *Engine) Bounds() []Bound {
	out := make([]Bound, len(e.bounds))
	copy(out, e.bounds)
	return out
}

// LatestBound returns the most recent bound.
func (e *Engine) LatestBound() (Bound, bool) {
	if len(e.bounds) == 0 {
		return Bound{}, false
	}
	return e.bounds[len(e.bounds)-1], true
}

// Snapshot copies every series of the engine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:       e.State().String(),
		SampleCount: e.samples,
		Temperature: e.Temperature(),
		Baseline:    e.Baseline(),
		Robust:      e.RobustSamples(),
		Bounds:      e.Bounds(),
	}
}
