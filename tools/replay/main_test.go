package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-path", "rec.csv", "-plot", "out.png"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.path != "rec.csv" || opts.plotPath != "out.png" {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = parseFlags([]string{"-start", "2026-01-01T00:00:00Z", "-end", "2026-01-02T00:00:00Z"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !opts.end.Equal(opts.start.Add(24 * time.Hour)) {
		t.Fatalf("unexpected range %s..%s", opts.start, opts.end)
	}

	bad := [][]string{
		{},
		{"-path", "rec.csv", "-start", "2026-01-01T00:00:00Z"},
		{"-start", "yesterday"},
		{"-start", "2026-01-02T00:00:00Z", "-end", "2026-01-01T00:00:00Z"},
	}
	for _, args := range bad {
		if _, err := parseFlags(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestTransitionPrinter(t *testing.T) {
	var buf bytes.Buffer
	transitionPrinter{out: &buf}.Notify(context.Background(), application.AlertEvent{
		Type:           application.AlertRaised,
		SensorID:       "local_file",
		Classification: anomaly.ClassAbove,
		Value:          8,
		Upper:          5,
		Lower:          2,
		SampleAt:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	line := buf.String()
	for _, want := range []string{"2026-01-01T12:00:00Z", "raised", "local_file", "above", "value=8.00", "band=[2.00, 5.00]"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
