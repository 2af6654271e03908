package telemetry

import (
	"errors"
	"testing"
	"time"
)

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"targetName": "projects/p1/devices/bchonol1rcnfmlojai7g",
		"eventType": "temperature",
		"data": {"temperature": {"value": 3.25, "updateTime": "2020-03-01T10:15:00.123Z"}}
	}`)
	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if evt.DeviceID != "bchonol1rcnfmlojai7g" {
		t.Fatalf("unexpected device id %q", evt.DeviceID)
	}
	if evt.Value != 3.25 {
		t.Fatalf("unexpected value %v", evt.Value)
	}
	want := time.Date(2020, 3, 1, 10, 15, 0, 123000000, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp %s", evt.Timestamp)
	}
	if evt.Unix() != want.Unix() {
		t.Fatalf("unexpected unix %d", evt.Unix())
	}
}

func TestParseEventErrors(t *testing.T) {
	cases := map[string]struct {
		payload string
		want    error
	}{
		"invalid json":    {payload: `{`, want: ErrMalformedEvent},
		"missing target":  {payload: `{"data":{"temperature":{"value":1,"updateTime":"2020-03-01T10:15:00Z"}}}`, want: ErrMalformedEvent},
		"touch event":     {payload: `{"targetName":"projects/p/devices/d","data":{"touch":{"updateTime":"2020-03-01T10:15:00Z"}}}`, want: ErrNotTemperature},
		"missing value":   {payload: `{"targetName":"d","data":{"temperature":{"updateTime":"2020-03-01T10:15:00Z"}}}`, want: ErrMalformedEvent},
		"bad update time": {payload: `{"targetName":"d","data":{"temperature":{"value":1,"updateTime":"yesterday"}}}`, want: ErrMalformedEvent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tc.payload))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseStreamMessage(t *testing.T) {
	payload := []byte(`{"result":{"event":{"targetName":"projects/p/devices/d7","data":{"temperature":{"value":-18.5,"updateTime":"2020-03-01T10:15:00Z"}}}}}`)
	evt, err := ParseStreamMessage(payload)
	if err != nil {
		t.Fatalf("parse stream message: %v", err)
	}
	if evt.DeviceID != "d7" || evt.Value != -18.5 {
		t.Fatalf("unexpected event %+v", evt)
	}

	_, err = ParseStreamMessage([]byte(`{"error":{"code":401,"message":"unauthorized"}}`))
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	in := Event{DeviceID: "local_file", Timestamp: time.Unix(1_600_000_000, 0).UTC(), Value: 2.5}
	payload, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.DeviceID != in.DeviceID || out.Value != in.Value || !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestSortEventsIsStable(t *testing.T) {
	base := time.Unix(1_600_000_000, 0).UTC()
	events := []Event{
		{DeviceID: "b", Timestamp: base.Add(time.Minute), Value: 1},
		{DeviceID: "a", Timestamp: base, Value: 2},
		{DeviceID: "c", Timestamp: base.Add(time.Minute), Value: 3},
	}
	SortEvents(events)
	got := events[0].DeviceID + events[1].DeviceID + events[2].DeviceID
	if got != "abc" {
		t.Fatalf("unexpected order %s", got)
	}
}
