package anomaly

import "math"

// Bound is the band produced for one ingested sample, labeled at t-delay.
// Placeholder bounds collapse to the raw value until robust history exists.
type Bound struct {
	TS          int64   `json:"ts"`
	Upper       float64 `json:"upper"`
	Lower       float64 `json:"lower"`
	Level       float64 `json:"level"`
	Placeholder bool    `json:"placeholder"`
}

type boundCalculator struct {
	windows  int
	mmad     float64
	minWidth float64
}

func (b boundCalculator) compute(maxDev, minDev, dispersion *Series, level float64, ts int64, value float64) Bound {
	n := dispersion.Len()
	if n > b.windows {
		n = b.windows
	}
	if n == 0 {
		return Bound{TS: ts, Upper: value, Lower: value, Level: level, Placeholder: true}
	}

	spread := b.mmad * median(dispersion.tail(n))
	upper := math.Max(b.minWidth, median(maxDev.tail(n))+spread)
	lower := math.Min(-b.minWidth, median(minDev.tail(n))-spread)
	return Bound{TS: ts, Upper: level + upper, Lower: level + lower, Level: level}
}
