package anomaly

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_700_000_000)

func scenarioConfig() Config {
	return Config{
		Delay:        time.Hour,
		RobustCycle:  2 * time.Hour,
		RobustWidth:  4 * time.Hour,
		BoundWindows: 2,
		MMAD:         1,
		BoundMinVal:  0,
		Alignment:    AlignTimestamp,
	}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// feed ingests n samples spaced step seconds apart starting at t0.
func feed(t *testing.T, e *Engine, n int, step int64, value func(i int, ts int64) float64) []Bound {
	t.Helper()
	out := make([]Bound, 0, n)
	for i := 0; i < n; i++ {
		ts := t0 + int64(i)*step
		b, err := e.Ingest(ts, value(i, ts))
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func constant(v float64) func(int, int64) float64 {
	return func(int, int64) float64 { return v }
}

func TestEngineConstantSeriesConvergesToFlatBand(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	feed(t, e, 61, 600, constant(4.0))

	for _, p := range e.Baseline() {
		assert.Equal(t, 4.0, p.Value)
	}
	robust := e.RobustSamples()
	require.Len(t, robust, 4)
	for _, r := range robust {
		assert.Equal(t, 0.0, r.MaxDeviation)
		assert.Equal(t, 0.0, r.MinDeviation)
		assert.Equal(t, 0.0, r.MAD)
	}
	assert.Equal(t, []int64{t0 + 4200, t0 + 12000, t0 + 19800, t0 + 27600}, robustTimestamps(robust))

	last, ok := e.LatestBound()
	require.True(t, ok)
	assert.False(t, last.Placeholder)
	assert.Equal(t, 4.0, last.Upper)
	assert.Equal(t, 4.0, last.Lower)
	assert.Equal(t, t0+36000-3600, last.TS)
	assert.Equal(t, StateStable, e.State())
}

func TestEngineSpikeIsOutOfBandAgainstItsOwnBound(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	const spikeAt = 40
	bounds := feed(t, e, 61, 600, func(i int, _ int64) float64 {
		if i == spikeAt {
			return 20.0
		}
		return 4.0
	})

	spike := bounds[spikeAt]
	assert.False(t, spike.Placeholder)
	assert.Equal(t, 4.0, spike.Upper)
	assert.Equal(t, 4.0, spike.Lower)
	assert.Equal(t, t0+int64(spikeAt)*600-3600, spike.TS)
	assert.Equal(t, ClassAbove, Classify(20.0, spike))
	assert.Equal(t, ClassInBand, Classify(4.0, bounds[spikeAt-1]))

	// The robust window closing at t0+27600 sees the spike and widens the band.
	last := bounds[len(bounds)-1]
	assert.InDelta(t, 12.0, last.Upper, 1e-9)
	assert.InDelta(t, 4.0, last.Lower, 1e-9)
}

func TestEngineSingleSample(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	assert.Equal(t, StateCold, e.State())

	b, err := e.Ingest(t0, 21.5)
	require.NoError(t, err)

	assert.Equal(t, []Point{{TS: t0 - 3600, Value: 21.5}}, e.Baseline())
	assert.True(t, b.Placeholder)
	assert.Equal(t, 21.5, b.Upper)
	assert.Equal(t, 21.5, b.Lower)
	assert.Equal(t, StateWarming, e.State())
	assert.False(t, e.HasRobustHistory())
	assert.Equal(t, ClassInsufficientHistory, Classify(21.5, b))
	assert.Equal(t, t0, e.LastRobustCycle())
}

func TestEngineSeriesLengths(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	const n = 200
	const step = int64(437)
	feed(t, e, n, step, func(i int, _ int64) float64 { return 3 + math.Sin(float64(i)/7) })

	assert.Equal(t, n, e.SampleCount())
	assert.Len(t, e.Bounds(), n)
	assert.Len(t, e.Baseline(), n)
	assert.Len(t, e.Temperature(), n)

	elapsed := int64(n-1) * step
	maxRobust := int(elapsed/int64((2*time.Hour)/time.Second)) + 1
	assert.LessOrEqual(t, len(e.RobustSamples()), maxRobust)
	assert.Equal(t, len(e.MaxDeviation()), len(e.Dispersion()))
	assert.Equal(t, len(e.MinDeviation()), len(e.Dispersion()))

	assertNonDecreasing(t, e.Baseline())
	assertNonDecreasing(t, e.Dispersion())
	for i := 1; i < len(e.Bounds()); i++ {
		assert.LessOrEqual(t, e.Bounds()[i-1].TS, e.Bounds()[i].TS)
	}
}

func TestEngineReplayIsDeterministic(t *testing.T) {
	value := func(i int, _ int64) float64 {
		return 2 + math.Sin(float64(i)/5) + 0.1*float64(i%3)
	}
	a := newEngine(t, scenarioConfig())
	b := newEngine(t, scenarioConfig())
	feed(t, a, 300, 600, value)
	feed(t, b, 300, 600, value)

	if diff := cmp.Diff(a.Snapshot(), b.Snapshot()); diff != "" {
		t.Fatalf("replay mismatch (-first +second):\n%s", diff)
	}
}

func TestEngineBoundFloor(t *testing.T) {
	cfg := scenarioConfig()
	cfg.BoundMinVal = 0.5
	e := newEngine(t, cfg)
	bounds := feed(t, e, 300, 600, func(i int, _ int64) float64 {
		return 4 + 0.01*math.Sin(float64(i))
	})

	checked := 0
	for _, b := range bounds {
		if b.Placeholder {
			continue
		}
		checked++
		assert.GreaterOrEqual(t, b.Upper-b.Level, cfg.BoundMinVal-1e-9)
		assert.GreaterOrEqual(t, b.Level-b.Lower, cfg.BoundMinVal-1e-9)
	}
	assert.NotZero(t, checked)
}

func TestEngineStaysStable(t *testing.T) {
	cfg := scenarioConfig()
	e := newEngine(t, cfg)
	feed(t, e, 20, 600, constant(4.0))
	require.Equal(t, StateStable, e.State())

	// A long gap leaves the next robust window empty; the state must not regress.
	_, err := e.Ingest(t0+100*3600, 4.0)
	require.NoError(t, err)
	assert.Equal(t, StateStable, e.State())
}

func TestEngineRejectsOutOfOrderSample(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	_, err := e.Ingest(t0+600, 4.0)
	require.NoError(t, err)

	_, err = e.Ingest(t0, 4.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfOrderSample))
	var ooo *OutOfOrderSampleError
	require.True(t, errors.As(err, &ooo))
	assert.Equal(t, t0, ooo.TS)
	assert.Equal(t, t0+600, ooo.Latest)
	assert.Equal(t, 1, e.SampleCount())
	assert.Len(t, e.Bounds(), 1)

	// Equal timestamps keep the order non-decreasing.
	_, err = e.Ingest(t0+600, 4.5)
	require.NoError(t, err)
	assert.Equal(t, 2, e.SampleCount())
}

func TestEngineRejectsNonFiniteValues(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Ingest(t0, v)
		assert.ErrorIs(t, err, ErrInvalidSample)
	}
	assert.Equal(t, StateCold, e.State())
	assert.Empty(t, e.Temperature())
}

func TestEngineAlignment(t *testing.T) {
	ramp := func(_ int, ts int64) float64 { return float64(ts-t0) / 3600 }

	byTime := newEngine(t, scenarioConfig())
	feed(t, byTime, 145, 600, ramp)

	posCfg := scenarioConfig()
	posCfg.Alignment = AlignPosition
	byPos := newEngine(t, posCfg)
	feed(t, byPos, 145, 600, ramp)

	// The baseline label at L is the median of (L-3600, L+3600], which sits
	// 300s ahead of L on a ramp.
	timed := lastRobust(t, byTime)
	assert.InDelta(t, -300.0/3600, timed.MaxDeviation, 1e-9)
	assert.InDelta(t, -300.0/3600, timed.MinDeviation, 1e-9)
	assert.InDelta(t, 0, timed.MAD, 1e-9)

	// Positional pairing matches temperature i with the level labeled one
	// delay earlier.
	positional := lastRobust(t, byPos)
	assert.InDelta(t, 3300.0/3600, positional.MaxDeviation, 1e-9)
	assert.InDelta(t, 3300.0/3600, positional.MinDeviation, 1e-9)
}

func TestEngineAlignmentModesAgreeOnConstantSeries(t *testing.T) {
	byTime := newEngine(t, scenarioConfig())
	posCfg := scenarioConfig()
	posCfg.Alignment = AlignPosition
	byPos := newEngine(t, posCfg)

	feed(t, byTime, 100, 600, constant(-18))
	feed(t, byPos, 100, 600, constant(-18))

	if diff := cmp.Diff(byTime.Snapshot(), byPos.Snapshot()); diff != "" {
		t.Fatalf("alignment modes diverge (-timestamp +position):\n%s", diff)
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Delay = 0
	_, err := NewEngine(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSnapshotWindow(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	feed(t, e, 61, 600, constant(4.0))

	w := e.Snapshot().Window(t0+54*600, t0+60*600)
	require.Len(t, w.Temperature, 7)
	require.Len(t, w.Baseline, 7)
	require.Len(t, w.Bounds, 7)
	assert.Equal(t, "stable", w.State)
	for k, p := range w.Temperature {
		assert.Equal(t, p.TS-3600, w.Bounds[k].TS)
		assert.Equal(t, p.TS-3600, w.Baseline[k].TS)
	}
	for _, r := range w.Robust {
		assert.GreaterOrEqual(t, r.TS, t0+54*600)
	}

	all := e.Snapshot().Window(0, 0)
	assert.Len(t, all.Temperature, 61)

	classes := e.Snapshot().Classifications()
	require.Len(t, classes, 61)
	assert.Equal(t, ClassInsufficientHistory, classes[0])
	assert.Equal(t, ClassInBand, classes[60])
}

func TestSnapshotWindowClassifiesAgainstOwnBound(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	const spikeAt = 40
	bounds := feed(t, e, 61, 600, func(i int, _ int64) float64 {
		if i == spikeAt {
			return 20.0
		}
		return 4.0
	})

	from := t0 + spikeAt*600
	w := e.Snapshot().Window(from, 0)
	classes := w.Classifications()
	require.Len(t, classes, 61-spikeAt)
	for k, class := range classes {
		own := bounds[spikeAt+k]
		assert.Equal(t, own, w.Bounds[k])
		assert.Equal(t, Classify(w.Temperature[k].Value, own), class)
	}
	assert.Equal(t, 20.0, w.Temperature[0].Value)
	assert.Equal(t, ClassAbove, classes[0])
}

func lastRobust(t *testing.T, e *Engine) RobustSample {
	t.Helper()
	robust := e.RobustSamples()
	require.NotEmpty(t, robust)
	return robust[len(robust)-1]
}

func robustTimestamps(samples []RobustSample) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.TS
	}
	return out
}

func assertNonDecreasing(t *testing.T, points []Point) {
	t.Helper()
	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i-1].TS, points[i].TS)
	}
}
