package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersAreNilSafeBeforeInit(t *testing.T) {
	ObserveSample(SampleAccepted, time.Millisecond)
	IncAlertEvent("raised")
	MoveSensorState("", "warming")
	IncStreamReconnect("dtapi")
	ObserveExport("png", ResultSuccess, time.Millisecond)
}

func TestCountersAfterInit(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(samplesTotal.WithLabelValues(SampleOutOfOrder))
	ObserveSample(SampleOutOfOrder, time.Microsecond)
	if got := testutil.ToFloat64(samplesTotal.WithLabelValues(SampleOutOfOrder)); got != before+1 {
		t.Fatalf("expected %v out-of-order samples, got %v", before+1, got)
	}

	MoveSensorState("", "warming")
	MoveSensorState("warming", "stable")
	if got := testutil.ToFloat64(sensorState.WithLabelValues("stable")); got < 1 {
		t.Fatalf("expected a stable sensor, got %v", got)
	}
}
