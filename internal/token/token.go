// Package token validates the signed entry token issued by the chatbot.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dhlim/wordbank/internal/clock"
)

const (
	// suffix is appended in plain text after the encoded payload.
	suffix = "_x7K9m"
	// checkModulus is the prime the checksum is reduced by.
	checkModulus = 999983
)

// Kind classifies why a token was rejected.
type Kind string

const (
	KindMissing   Kind = "missing"
	KindMalformed Kind = "malformed"
	KindTampered  Kind = "tampered"
	KindExpired   Kind = "expired"
)

// BlockedError is terminal: the session must not start any other component and
// must not retry.
type BlockedError struct {
	Kind Kind
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("token blocked: %s", e.Kind)
}

// IsBlocked reports whether err is a terminal token rejection and returns its kind.
func IsBlocked(err error) (Kind, bool) {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return blocked.Kind, true
	}
	return "", false
}

// Claims is the identity carried by a valid token.
type Claims struct {
	Phone     string
	ExpiresAt time.Time
}

// Gate validates entry tokens against a clock.
type Gate struct {
	clock clock.Clock
}

// NewGate creates a Gate.
func NewGate(clk clock.Clock) *Gate {
	return &Gate{clock: clk}
}

// Validate checks raw, which must be base64(phone_expirationMs_check) followed
// by the static suffix. It returns the claims on success and a *BlockedError
// on any failure.
func (g *Gate) Validate(raw string) (Claims, error) {
	var claims Claims
	if raw == "" {
		return claims, &BlockedError{Kind: KindMissing}
	}
	if !strings.HasSuffix(raw, suffix) {
		return claims, &BlockedError{Kind: KindMalformed}
	}
	encoded := strings.TrimSuffix(raw, suffix)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return claims, &BlockedError{Kind: KindMalformed}
	}
	segments := strings.Split(string(decoded), "_")
	if len(segments) != 3 {
		return claims, &BlockedError{Kind: KindMalformed}
	}

	phone := segments[0]
	expMs, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return claims, &BlockedError{Kind: KindMalformed}
	}
	check, err := strconv.ParseInt(segments[2], 10, 64)
	if err != nil {
		return claims, &BlockedError{Kind: KindMalformed}
	}
	if check != checksum(expMs) {
		return claims, &BlockedError{Kind: KindTampered}
	}

	expiresAt := time.UnixMilli(expMs)
	if expiresAt.Before(g.clock.Now()) {
		return claims, &BlockedError{Kind: KindExpired}
	}

	return Claims{Phone: phone, ExpiresAt: expiresAt}, nil
}

// Recheck re-validates previously accepted claims against the clock. It is run
// by the session's 5-minute job; an expiry mid-session blocks new interactions.
func (g *Gate) Recheck(claims Claims) error {
	if claims.ExpiresAt.Before(g.clock.Now()) {
		return &BlockedError{Kind: KindExpired}
	}
	return nil
}

// Mint builds a valid token for phone expiring at expiresAt. The chatbot owns
// token issuance in production; Mint exists for local development and tests.
func Mint(phone string, expiresAt time.Time) string {
	expMs := expiresAt.UnixMilli()
	payload := fmt.Sprintf("%s_%d_%d", phone, expMs, checksum(expMs))
	return base64.StdEncoding.EncodeToString([]byte(payload)) + suffix
}

func checksum(expMs int64) int64 {
	return (expMs * 7) % checkModulus
}
