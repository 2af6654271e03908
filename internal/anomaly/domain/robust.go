package anomaly

import "gonum.org/v1/gonum/floats"

// RobustSample is one robust sampling cycle: the extreme deviations from the
// baseline and their median absolute deviation over a delayed window.
type RobustSample struct {
	TS           int64   `json:"ts"`
	MaxDeviation float64 `json:"max_deviation"`
	MinDeviation float64 `json:"min_deviation"`
	MAD          float64 `json:"mad"`
}

type robustSampler struct {
	delay     int64
	cycle     int64
	width     int64
	alignment Alignment
}

// due reports whether a cycle fires at t. Cycles are measured in source time.
func (r robustSampler) due(t, lastCycle int64) bool {
	return t-lastCycle > r.cycle
}

// sample computes the statistics over [t-delay-width, t-delay]. An empty
// window yields no sample.
func (r robustSampler) sample(temperature, baseline *Series, t int64) (RobustSample, bool) {
	end := t - r.delay
	lo, hi := temperature.span(end-r.width, end)
	if lo >= hi || baseline.Len() == 0 {
		return RobustSample{}, false
	}
	window := temperature.points[lo:hi]

	levels := make([]float64, len(window))
	for i, p := range window {
		levels[i] = r.levelFor(baseline, lo+i, p.TS)
	}
	deviation := floats.SubTo(make([]float64, len(window)), values(window), levels)

	return RobustSample{
		TS:           end,
		MaxDeviation: floats.Max(deviation),
		MinDeviation: floats.Min(deviation),
		MAD:          mad(deviation),
	}, true
}

func (r robustSampler) levelFor(baseline *Series, index int, ts int64) float64 {
	if r.alignment == AlignPosition {
		if index >= baseline.Len() {
			index = baseline.Len() - 1
		}
		return baseline.points[index].Value
	}
	j, _ := baseline.nearest(ts)
	return baseline.points[j].Value
}
