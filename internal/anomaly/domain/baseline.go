package anomaly

// baselineEstimator labels the median of the samples in (t-2*delay, t] at
// t-delay. Once samples beyond t-delay exist the level approximates a centered
// median filter of half-width delay.
type baselineEstimator struct {
	delay int64
}

func (b baselineEstimator) estimate(temperature *Series, t int64) (Point, bool) {
	window := temperature.valuesAfter(t - 2*b.delay)
	if len(window) == 0 {
		return Point{}, false
	}
	return Point{TS: t - b.delay, Value: median(window)}, true
}
