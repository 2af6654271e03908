package anomaly

import (
	"math"

	"github.com/montanaflynn/stats"
)

// median returns the median of values, averaging the middle pair for even
// lengths. Callers guarantee a non-empty input; an empty one yields NaN.
func median(values []float64) float64 {
	m, err := stats.Median(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// mad returns the median absolute deviation from the median, unscaled.
func mad(values []float64) float64 {
	m, err := stats.MedianAbsoluteDeviationPopulation(values)
	if err != nil {
		return math.NaN()
	}
	return m
}
