package audit

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := ClientIP(req); got != "10.0.0.7" {
		t.Fatalf("expected peer address, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded address, got %s", got)
	}
}

func TestMemoryLogFillsDefaults(t *testing.T) {
	log := NewMemoryLog()
	if err := log.Log(context.Background(), Entry{Action: "sensors.import", Metadata: []byte(`{"accepted":3}`)}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if !strings.HasPrefix(entry.ID, "audit-") || entry.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", entry)
	}
	if entry.PayloadDigest != DigestJSON([]byte(`{"accepted":3}`)) {
		t.Fatalf("unexpected digest %s", entry.PayloadDigest)
	}
}
