package anomaly

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrderSample indicates a sample older than the sensor's latest one.
	ErrOutOfOrderSample = errors.New("anomaly: out-of-order sample")
	// ErrInvalidSample indicates a non-finite sample value.
	ErrInvalidSample = errors.New("anomaly: invalid sample")
	// ErrInvalidConfig indicates engine parameters that cannot produce a band.
	ErrInvalidConfig = errors.New("anomaly: invalid config")
)

// OutOfOrderSampleError carries the rejected and the latest accepted timestamps.
type OutOfOrderSampleError struct {
	TS     int64
	Latest int64
}

func (e *OutOfOrderSampleError) Error() string {
	return fmt.Sprintf("anomaly: out-of-order sample: ts %d precedes %d", e.TS, e.Latest)
}

// Is lets errors.Is match ErrOutOfOrderSample.
func (e *OutOfOrderSampleError) Is(target error) bool {
	return target == ErrOutOfOrderSample
}
