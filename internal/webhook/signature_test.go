package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMetaVerifier(t *testing.T) {
	v := NewMetaVerifier("app-secret")
	body := []byte(`{"entry":[]}`)

	h := http.Header{}
	h.Set("X-Hub-Signature-256", "sha256="+sign("app-secret", body))
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	h.Set("X-Hub-Signature-256", "sha256="+sign("wrong-secret", body))
	if !errors.Is(v.Verify(h, body), ErrInvalidSignature) {
		t.Fatal("wrong secret must be invalid")
	}

	h.Set("X-Hub-Signature-256", sign("app-secret", body)) // missing prefix
	if !errors.Is(v.Verify(h, body), ErrInvalidSignature) {
		t.Fatal("missing sha256= prefix must be invalid")
	}

	if !errors.Is(v.Verify(http.Header{}, body), ErrMissingSignature) {
		t.Fatal("absent header must be missing, not invalid")
	}
}

func TestMetaVerifier_TamperedBody(t *testing.T) {
	v := NewMetaVerifier("app-secret")
	body := []byte(`{"entry":[]}`)
	h := http.Header{}
	h.Set("X-Hub-Signature-256", "sha256="+sign("app-secret", body))

	if !errors.Is(v.Verify(h, []byte(`{"entry":[{}]}`)), ErrInvalidSignature) {
		t.Fatal("tampered body must be invalid")
	}
}

func TestMessagingVerifier(t *testing.T) {
	v := NewMessagingVerifier("msg-secret")
	body := []byte(`{"messages":[]}`)

	h := http.Header{}
	h.Set("X-Signature", sign("msg-secret", body))
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	h.Set("X-Signature", "zz-not-hex")
	if !errors.Is(v.Verify(h, body), ErrInvalidSignature) {
		t.Fatal("non-hex signature must be invalid")
	}

	if !errors.Is(v.Verify(http.Header{}, body), ErrMissingSignature) {
		t.Fatal("absent header must be missing")
	}
}

func paymentHeader(secret string, ts time.Time, body []byte) string {
	t := fmt.Sprintf("%d", ts.Unix())
	return "t=" + t + ",v1=" + sign(secret, []byte(t+"."+string(body)))
}

func TestPaymentsVerifier(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewPaymentsVerifier("pay-secret")
	v.now = func() time.Time { return now }
	body := []byte(`{"type":"payment.succeeded"}`)

	h := http.Header{}
	h.Set("X-Payment-Signature", paymentHeader("pay-secret", now, body))
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestPaymentsVerifier_TimestampOutsideTolerance(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewPaymentsVerifier("pay-secret")
	v.now = func() time.Time { return now }
	body := []byte(`{}`)

	for _, skew := range []time.Duration{6 * time.Minute, -6 * time.Minute} {
		h := http.Header{}
		h.Set("X-Payment-Signature", paymentHeader("pay-secret", now.Add(skew), body))
		if !errors.Is(v.Verify(h, body), ErrInvalidSignature) {
			t.Fatalf("signature with %v skew must be invalid", skew)
		}
	}

	// Just inside the window still passes.
	h := http.Header{}
	h.Set("X-Payment-Signature", paymentHeader("pay-secret", now.Add(-4*time.Minute), body))
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("signature inside tolerance rejected: %v", err)
	}
}

func TestPaymentsVerifier_MultipleV1Candidates(t *testing.T) {
	now := time.Now()
	v := NewPaymentsVerifier("pay-secret")
	body := []byte(`{}`)
	ts := fmt.Sprintf("%d", now.Unix())
	good := sign("pay-secret", []byte(ts+"."+string(body)))

	h := http.Header{}
	h.Set("X-Payment-Signature", "t="+ts+",v1="+sign("old-secret", []byte(ts+"."+string(body)))+",v1="+good)
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("any matching v1 candidate must pass: %v", err)
	}
}

func TestPaymentsVerifier_MalformedHeader(t *testing.T) {
	v := NewPaymentsVerifier("pay-secret")
	body := []byte(`{}`)

	for _, raw := range []string{"t=123", "v1=abc", "garbage", "t=notanumber,v1=abc"} {
		h := http.Header{}
		h.Set("X-Payment-Signature", raw)
		if !errors.Is(v.Verify(h, body), ErrInvalidSignature) {
			t.Fatalf("header %q must be invalid", raw)
		}
	}
	if !errors.Is(v.Verify(http.Header{}, body), ErrMissingSignature) {
		t.Fatal("absent header must be missing")
	}
}
