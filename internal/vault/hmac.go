package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// Header names carried on HMAC-authenticated oracle callbacks.
const (
	HeaderKeyID     = "X-Qu-Key-Id"
	HeaderTimestamp = "X-Qu-Timestamp"
	HeaderSignature = "X-Qu-Signature"
)

// signatureTTL bounds how far a callback timestamp may drift from the
// verifier's clock in either direction.
const signatureTTL = 5 * time.Minute

// CallbackAuth signs and verifies oracle resolution callbacks. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded
// as base64.
type CallbackAuth struct {
	KeyID  string
	Secret string
}

// Headers returns the HTTP headers for an outgoing callback request.
func (a *CallbackAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix
// timestamp (useful for deterministic testing).
func (a *CallbackAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKeyID:     a.KeyID,
		HeaderTimestamp: ts,
		HeaderSignature: a.sign(ts, method, path, body),
	}
}

// Verify checks an incoming callback's headers against the request it
// arrived on. Failures wrap domain.ErrUnauthorized.
func (a *CallbackAuth) Verify(method, path, body, keyID, timestamp, signature string) error {
	return a.VerifyAt(method, path, body, keyID, timestamp, signature, time.Now())
}

// VerifyAt is like Verify but lets the caller supply the current time
// (useful for deterministic testing).
func (a *CallbackAuth) VerifyAt(method, path, body, keyID, timestamp, signature string, now time.Time) error {
	if keyID != a.KeyID {
		return fmt.Errorf("vault: unknown callback key id: %w", domain.ErrUnauthorized)
	}

	unixTS, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("vault: bad callback timestamp: %w", domain.ErrUnauthorized)
	}
	drift := now.Sub(time.Unix(unixTS, 0))
	if drift > signatureTTL || drift < -signatureTTL {
		return fmt.Errorf("vault: callback timestamp outside tolerance: %w", domain.ErrUnauthorized)
	}

	want := a.sign(timestamp, method, path, body)
	if !hmac.Equal([]byte(signature), []byte(want)) {
		return fmt.Errorf("vault: callback signature mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (a *CallbackAuth) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (a *CallbackAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("CallbackAuth{keyId=%s, secret=%s}", redact(a.KeyID), redact(a.Secret))
}
