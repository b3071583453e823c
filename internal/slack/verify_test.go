package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func fixedVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1724800000, 0)
	body := []byte(`{"type":"event_callback"}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	v := fixedVerifier("secret", now)
	if !v.Verify(ts, signBody("secret", ts, body), body) {
		t.Error("valid signature rejected")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1724800000, 0)
	body := []byte(`{}`)

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"at the window edge", -300 * time.Second, true},
		{"just past the window", -301 * time.Second, false},
		{"future beyond window", 301 * time.Second, false},
		{"slight clock skew", 30 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := strconv.FormatInt(now.Add(tt.offset).Unix(), 10)
			v := fixedVerifier("secret", now)
			if got := v.Verify(ts, signBody("secret", ts, body), body); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1724800000, 0)
	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	v := fixedVerifier("secret", now)
	if v.Verify(ts, signBody("other-secret", ts, body), body) {
		t.Error("signature from wrong secret accepted")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1724800000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	signature := signBody("secret", ts, []byte(`{"text":"original"}`))

	v := fixedVerifier("secret", now)
	if v.Verify(ts, signature, []byte(`{"text":"tampered"}`)) {
		t.Error("tampered body accepted")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	now := time.Unix(1724800000, 0)
	v := fixedVerifier("secret", now)
	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	if v.Verify("", signBody("secret", ts, body), body) {
		t.Error("empty timestamp accepted")
	}
	if v.Verify(ts, "", body) {
		t.Error("empty signature accepted")
	}
	if v.Verify("not-a-number", "v0=deadbeef", body) {
		t.Error("non-numeric timestamp accepted")
	}
	if v.Verify(ts, "v0=not-hex", body) {
		t.Error("garbage signature accepted")
	}
}
