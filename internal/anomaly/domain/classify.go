package anomaly

// Classification places a sample relative to its bound.
type Classification string

const (
	ClassInsufficientHistory Classification = "insufficient_history"
	ClassInBand              Classification = "in_band"
	ClassAbove               Classification = "above"
	ClassBelow               Classification = "below"
)

// Classify compares value with b. Values on the boundary are in band.
func Classify(value float64, b Bound) Classification {
	switch {
	case b.Placeholder:
		return ClassInsufficientHistory
	case value > b.Upper:
		return ClassAbove
	case value < b.Lower:
		return ClassBelow
	default:
		return ClassInBand
	}
}

// OutOfBand reports whether the classification is an excursion.
func (c Classification) OutOfBand() bool {
	return c == ClassAbove || c == ClassBelow
}
