package auth

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the data connector signature.
const SignatureHeader = "X-Dt-Signature"

const maxConnectorBody = 1 << 20

type connectorClaims struct {
	ChecksumSHA256 string `json:"checksum_sha256"`
	jwt.RegisteredClaims
}

// DataConnectorVerifier checks that pushed events are signed with the shared
// connector secret. The signature is an HS256 JWT whose checksum_sha256 claim
// is the hex SHA-256 of the request body.
type DataConnectorVerifier struct {
	secret []byte
}

// NewDataConnectorVerifier constructs a verifier.
func NewDataConnectorVerifier(secret []byte) (*DataConnectorVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("data connector: empty secret")
	}
	return &DataConnectorVerifier{secret: secret}, nil
}

// Verify validates token against body.
func (v *DataConnectorVerifier) Verify(token string, body []byte) error {
	if v == nil {
		return errors.New("data connector: nil verifier")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidSignature, SignatureHeader)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &connectorClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sum := sha256.Sum256(body)
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(claims.ChecksumSHA256)), []byte(expected)) != 1 {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidSignature)
	}
	return nil
}

// Sign produces a signature for body. Used by tools and tests that push events.
func (v *DataConnectorVerifier) Sign(body []byte) (string, error) {
	if v == nil {
		return "", errors.New("data connector: nil verifier")
	}
	sum := sha256.Sum256(body)
	claims := connectorClaims{ChecksumSHA256: hex.EncodeToString(sum[:])}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Wrap enforces signature validation and restores the body for next.
func (v *DataConnectorVerifier) Wrap(next http.Handler) http.Handler {
	if v == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxConnectorBody))
		if err != nil {
			http.Error(w, "read body error", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()

		if err := v.Verify(r.Header.Get(SignatureHeader), body); err != nil {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
