package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier_Verify(t *testing.T) {
	body := []byte(`{"execution_id":"exec-1"}`)
	v := NewWebhookVerifier("topsecret", nil)

	t.Run("accepts valid signature with prefix", func(t *testing.T) {
		assert.True(t, v.Verify(body, "sha256="+sign("topsecret", body)))
	})

	t.Run("accepts valid signature without prefix", func(t *testing.T) {
		assert.True(t, v.Verify(body, sign("topsecret", body)))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		assert.False(t, v.Verify(body, "sha256="+sign("other", body)))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		assert.False(t, v.Verify([]byte(`{"execution_id":"exec-2"}`), "sha256="+sign("topsecret", body)))
	})

	t.Run("rejects empty header", func(t *testing.T) {
		assert.False(t, v.Verify(body, ""))
	})

	t.Run("rejects malformed hex", func(t *testing.T) {
		assert.False(t, v.Verify(body, "sha256=nothex"))
	})

	t.Run("fails closed with empty secret", func(t *testing.T) {
		empty := NewWebhookVerifier("", nil)
		assert.False(t, empty.Verify(body, "sha256="+sign("", body)))
	})
}

func TestWebhookVerifier_SecretRotation(t *testing.T) {
	body := []byte(`{"execution_id":"exec-1"}`)
	v := NewWebhookVerifier("current", []string{"old"})

	assert.True(t, v.Verify(body, "sha256="+sign("current", body)))
	assert.True(t, v.Verify(body, "sha256="+sign("old", body)))
	assert.False(t, v.Verify(body, "sha256="+sign("older", body)))
}

func TestServiceVerifier_Verify(t *testing.T) {
	body := []byte(`{"period":"2026-07"}`)
	fixed := time.Unix(1_700_000_000, 0)

	newVerifier := func() *ServiceVerifier {
		v := NewServiceVerifier("internal", 300*time.Second)
		v.now = func() time.Time { return fixed }
		return v
	}

	t.Run("accepts fresh signed request", func(t *testing.T) {
		v := newVerifier()
		ts := fixed.Unix()
		require.NoError(t, v.Verify(body, "1700000000", v.Sign(ts, body)))
	})

	t.Run("rejects stale timestamp", func(t *testing.T) {
		v := newVerifier()
		ts := fixed.Add(-301 * time.Second).Unix()
		err := v.Verify(body, "1699999699", v.Sign(ts, body))
		assert.ErrorContains(t, err, "timestamp")
	})

	t.Run("rejects future timestamp beyond skew", func(t *testing.T) {
		v := newVerifier()
		ts := fixed.Add(400 * time.Second).Unix()
		err := v.Verify(body, "1700000400", v.Sign(ts, body))
		assert.ErrorContains(t, err, "timestamp")
	})

	t.Run("rejects signature computed for different timestamp", func(t *testing.T) {
		v := newVerifier()
		sig := v.Sign(fixed.Unix()-10, body)
		err := v.Verify(body, "1700000000", sig)
		assert.ErrorContains(t, err, "signature mismatch")
	})

	t.Run("rejects non-numeric timestamp", func(t *testing.T) {
		v := newVerifier()
		err := v.Verify(body, "yesterday", "deadbeef")
		assert.ErrorContains(t, err, "invalid timestamp")
	})
}
