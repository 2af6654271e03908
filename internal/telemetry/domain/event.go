package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	// ErrMalformedEvent indicates an event missing a required field.
	ErrMalformedEvent = errors.New("telemetry: malformed event")
	// ErrNotTemperature indicates an event that carries no temperature reading.
	ErrNotTemperature = errors.New("telemetry: not a temperature event")
)

// LocalFileDevice is the device id assigned to samples imported from files.
const LocalFileDevice = "local_file"

// Event is one temperature reading from a sensor.
type Event struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Unix returns the event time in whole seconds.
func (e Event) Unix() int64 {
	return e.Timestamp.Unix()
}

// SortEvents orders events by timestamp, keeping arrival order for ties.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

type rawEvent struct {
	TargetName string `json:"targetName"`
	EventType  string `json:"eventType"`
	Data       struct {
		Temperature *struct {
			Value      *float64 `json:"value"`
			UpdateTime string   `json:"updateTime"`
		} `json:"temperature"`
	} `json:"data"`
}

// ParseEvent decodes a sensor event document. The device id is the last path
// segment of targetName.
func ParseEvent(payload []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return raw.toEvent()
}

func (r rawEvent) toEvent() (Event, error) {
	deviceID := DeviceIDFromName(r.TargetName)
	if deviceID == "" {
		return Event{}, fmt.Errorf("%w: missing targetName", ErrMalformedEvent)
	}
	if r.Data.Temperature == nil {
		return Event{}, ErrNotTemperature
	}
	if r.Data.Temperature.Value == nil {
		return Event{}, fmt.Errorf("%w: missing temperature value", ErrMalformedEvent)
	}
	value := *r.Data.Temperature.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Event{}, fmt.Errorf("%w: non-finite temperature", ErrMalformedEvent)
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Data.Temperature.UpdateTime)
	if err != nil {
		return Event{}, fmt.Errorf("%w: updateTime: %v", ErrMalformedEvent, err)
	}
	return Event{DeviceID: deviceID, Timestamp: ts.UTC(), Value: value}, nil
}

// ParseStreamMessage decodes one stream frame of the form {"result":{"event":...}}.
func ParseStreamMessage(payload []byte) (Event, error) {
	var msg struct {
		Result struct {
			Event *rawEvent `json:"event"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if msg.Error != nil {
		return Event{}, fmt.Errorf("%w: stream error %d: %s", ErrMalformedEvent, msg.Error.Code, msg.Error.Message)
	}
	if msg.Result.Event == nil {
		return Event{}, fmt.Errorf("%w: missing result.event", ErrMalformedEvent)
	}
	return msg.Result.Event.toEvent()
}

// DeviceIDFromName returns the last segment of a resource name such as
// projects/p1/devices/d1.
func DeviceIDFromName(name string) string {
	name = strings.TrimRight(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	return path.Base(name)
}

// EncodeEvent renders e in the sensor event document format.
func EncodeEvent(e Event) ([]byte, error) {
	doc := map[string]any{
		"targetName": e.DeviceID,
		"eventType":  "temperature",
		"data": map[string]any{
			"temperature": map[string]any{
				"value":      e.Value,
				"updateTime": e.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		},
	}
	return json.Marshal(doc)
}
