// Package webhook implements the public ingestion surface: per-source
// signature verification, idempotent acceptance and payload dispatch.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature verification failures. Handlers map ErrMissingSignature to 400
// and ErrInvalidSignature to 401; nothing about the payload is processed or
// persisted on either.
var (
	ErrMissingSignature = errors.New("signature header missing")
	ErrInvalidSignature = errors.New("signature mismatch")
)

// Verifier checks the authenticity of a raw webhook body against the
// request headers, before any parsing happens.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// MetaVerifier checks the X-Hub-Signature-256 header: "sha256=" followed by
// the hex HMAC-SHA256 of the raw body under the app secret.
type MetaVerifier struct {
	secret []byte
}

func NewMetaVerifier(appSecret string) *MetaVerifier {
	return &MetaVerifier{secret: []byte(appSecret)}
}

func (v *MetaVerifier) Verify(header http.Header, body []byte) error {
	raw := header.Get("X-Hub-Signature-256")
	if raw == "" {
		return ErrMissingSignature
	}
	expected, ok := strings.CutPrefix(raw, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	return compareHMAC(v.secret, body, expected)
}

// MessagingVerifier checks the X-Signature header: the bare hex HMAC-SHA256
// of the raw body.
type MessagingVerifier struct {
	secret []byte
}

func NewMessagingVerifier(secret string) *MessagingVerifier {
	return &MessagingVerifier{secret: []byte(secret)}
}

func (v *MessagingVerifier) Verify(header http.Header, body []byte) error {
	raw := header.Get("X-Signature")
	if raw == "" {
		return ErrMissingSignature
	}
	return compareHMAC(v.secret, body, raw)
}

// paymentsTolerance bounds how old a payment signature timestamp may be, in
// either direction, before the event is rejected as a possible replay.
const paymentsTolerance = 5 * time.Minute

// PaymentsVerifier checks the X-Payment-Signature header, a comma-separated
// list of "t=<unix>" and one or more "v1=<hex>" elements. The signed payload
// is "<t>.<body>" and the timestamp must be within the tolerance window.
type PaymentsVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewPaymentsVerifier(secret string) *PaymentsVerifier {
	return &PaymentsVerifier{secret: []byte(secret), now: time.Now}
}

func (v *PaymentsVerifier) Verify(header http.Header, body []byte) error {
	raw := header.Get("X-Payment-Signature")
	if raw == "" {
		return ErrMissingSignature
	}

	var (
		timestamp  string
		candidates []string
	)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > paymentsTolerance || age < -paymentsTolerance {
		return ErrInvalidSignature
	}

	signed := append([]byte(timestamp+"."), body...)
	for _, candidate := range candidates {
		if compareHMAC(v.secret, signed, candidate) == nil {
			return nil
		}
	}
	return ErrInvalidSignature
}

func compareHMAC(secret, body []byte, expectedHex string) error {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}
