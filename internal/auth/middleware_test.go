package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy(nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	resp := httptest.NewRecorder()
	mw.Wrap(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerReadsSeries(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var subject string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		if RoleFromContext(r.Context()) != RoleViewer {
			t.Errorf("expected viewer role in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/freezer-1/series", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestAuthMiddleware_ViewerForbiddenExport(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/freezer-1/export.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	mw.Wrap(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_StreamAcceptsQueryToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "dashboard", RoleViewer, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream?access_token="+token, nil)
	resp := httptest.NewRecorder()
	mw.Wrap(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptAndUnconfigured(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/metrics"}, []string{"/ingest/"}))
	for _, path := range []string{"/metrics", "/ingest/events", "/healthz"} {
		resp := httptest.NewRecorder()
		mw.Wrap(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}

	open := NewMiddleware(nil, NewDefaultPolicy(nil, nil))
	resp := httptest.NewRecorder()
	open.Wrap(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected open access without a secret, got %d", resp.Code)
	}
}

func TestDataConnectorVerifier(t *testing.T) {
	verifier, err := NewDataConnectorVerifier([]byte("connector-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	body := []byte(`{"targetName":"projects/p/devices/d1"}`)
	signature, err := verifier.Sign(body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := verifier.Verify(signature, body); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := verifier.Verify(signature, []byte(`{"tampered":true}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}

	sum := sha256.Sum256(body)
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, connectorClaims{ChecksumSHA256: hex.EncodeToString(sum[:])})
	forged, _ := foreign.SignedString([]byte("other-secret"))
	if err := verifier.Verify(forged, body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected foreign secret to fail, got %v", err)
	}
}

func TestDataConnectorWrapRestoresBody(t *testing.T) {
	verifier, _ := NewDataConnectorVerifier([]byte("connector-secret"))
	body := `{"targetName":"d1"}`
	signature, _ := verifier.Sign([]byte(body))

	var seen string
	handler := verifier.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/ingest/events", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || seen != body {
		t.Fatalf("expected body passthrough, got %d %q", resp.Code, seen)
	}

	unsigned := httptest.NewRecorder()
	handler.ServeHTTP(unsigned, httptest.NewRequest(http.MethodPost, "/ingest/events", strings.NewReader(body)))
	if unsigned.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", unsigned.Code)
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
