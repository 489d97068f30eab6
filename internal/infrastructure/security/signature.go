package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookVerifier authenticates inbound webhook payloads with
// HMAC-SHA256. Verification fails closed: a missing secret rejects
// every request.
type WebhookVerifier struct {
	secret          []byte
	previousSecrets [][]byte
}

// NewWebhookVerifier builds a verifier for the current secret plus any
// previous secrets still accepted during rotation
func NewWebhookVerifier(secret string, previousSecrets []string) *WebhookVerifier {
	v := &WebhookVerifier{secret: []byte(secret)}
	for _, s := range previousSecrets {
		if s != "" {
			v.previousSecrets = append(v.previousSecrets, []byte(s))
		}
	}
	return v
}

// Verify checks a signature header against the raw request body. The
// header carries a hex digest, optionally prefixed with "sha256=".
func (v *WebhookVerifier) Verify(body []byte, header string) bool {
	if len(v.secret) == 0 || header == "" {
		return false
	}

	received, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}

	if hmac.Equal(received, computeHMAC(v.secret, body)) {
		return true
	}
	for _, secret := range v.previousSecrets {
		if hmac.Equal(received, computeHMAC(secret, body)) {
			return true
		}
	}
	return false
}

func computeHMAC(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// ServiceVerifier authenticates internal service-to-service calls with
// a timestamp-bound HMAC, limiting replay of captured requests
type ServiceVerifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewServiceVerifier builds a verifier that rejects timestamps older or
// newer than maxSkew
func NewServiceVerifier(secret string, maxSkew time.Duration) *ServiceVerifier {
	if maxSkew <= 0 {
		maxSkew = 300 * time.Second
	}
	return &ServiceVerifier{
		secret:  []byte(secret),
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Sign produces the signature for a body at the given unix timestamp.
// The signed message binds the timestamp to the body.
func (v *ServiceVerifier) Sign(timestamp int64, body []byte) string {
	msg := append([]byte(strconv.FormatInt(timestamp, 10)+"\n"), body...)
	return hex.EncodeToString(computeHMAC(v.secret, msg))
}

// Verify checks a timestamp header and signature header against the
// raw request body
func (v *ServiceVerifier) Verify(body []byte, timestampHeader, signatureHeader string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("service secret not configured")
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp header")
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("timestamp outside allowed window")
	}

	received, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, "sha256="))
	if err != nil {
		return fmt.Errorf("malformed signature")
	}
	msg := append([]byte(strconv.FormatInt(ts, 10)+"\n"), body...)
	if !hmac.Equal(received, computeHMAC(v.secret, msg)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
