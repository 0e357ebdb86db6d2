package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// WebhookSigner signs outbound webhook deliveries so receivers can verify
// that a payload originated from this service and has not been replayed.
type WebhookSigner struct {
	secret []byte
}

// NewWebhookSigner creates a signer from a shared secret.
func NewWebhookSigner(secret string) *WebhookSigner {
	return &WebhookSigner{secret: []byte(secret)}
}

// Headers returns the signature headers for a webhook delivery. The
// signature is HMAC-SHA256(secret, timestamp+"."+body) encoded as hex.
//
// Returned header keys:
//   - X-Marketd-Timestamp
//   - X-Marketd-Signature
func (s *WebhookSigner) Headers(body []byte) map[string]string {
	return s.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"X-Marketd-Timestamp": ts,
		"X-Marketd-Signature": s.sign(ts, body),
	}
}

// Verify checks a received signature against the body and timestamp, and
// rejects timestamps outside the maxAge window to bound replay. It is the
// verification webhook receivers are expected to implement.
func (s *WebhookSigner) Verify(body []byte, ts, signature string, maxAge time.Duration, now time.Time) error {
	unixTS, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: verify webhook: bad timestamp %q", ts)
	}
	age := now.Sub(time.Unix(unixTS, 0))
	if age > maxAge || age < -maxAge {
		return fmt.Errorf("crypto: verify webhook: timestamp outside %s window", maxAge)
	}
	expected := s.sign(ts, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("crypto: verify webhook: signature mismatch")
	}
	return nil
}

func (s *WebhookSigner) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *WebhookSigner) String() string {
	return fmt.Sprintf("WebhookSigner{secret=%d bytes}", len(s.secret))
}
