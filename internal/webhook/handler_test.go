package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

func newTestHandler(t *testing.T) (*Handler, *fakeLeads) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	leads := &fakeLeads{}
	svc, _ := newTestService(leads, &fakeResolver{}, &fakeBiller{})
	h := NewHandler(svc,
		NewMetaVerifier("meta-secret"),
		NewMessagingVerifier("msg-secret"),
		NewPaymentsVerifier("pay-secret"),
		"verify-token",
		logger.New("development"),
	)
	return h, leads
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.GET("/webhooks/meta", h.VerifyMeta)
	r.POST("/webhooks/meta", h.ReceiveMeta)
	r.POST("/webhooks/messaging", h.ReceiveMessaging)
	r.POST("/webhooks/payments", h.ReceivePayment)
	return r
}

func TestReceiveMeta_MissingSignatureIs401(t *testing.T) {
	h, leads := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(metaBody))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(leads.ingested) != 0 {
		t.Fatal("unsigned payload must not be processed")
	}
}

func TestReceiveMeta_InvalidSignatureIs401(t *testing.T) {
	h, leads := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(metaBody))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign("wrong-secret", []byte(metaBody)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(leads.ingested) != 0 {
		t.Fatal("payload with a bad signature must not be processed")
	}
}

func TestReceiveMeta_ValidSignatureProcesses(t *testing.T) {
	h, leads := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(metaBody))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign("meta-secret", []byte(metaBody)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(leads.ingested) != 1 {
		t.Fatalf("expected 1 ingested lead, got %d", len(leads.ingested))
	}
}

func TestReceiveMeta_ReplayIs200Duplicate(t *testing.T) {
	h, leads := newTestHandler(t)
	r := newTestRouter(h)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(metaBody))
		req.Header.Set("X-Hub-Signature-256", "sha256="+sign("meta-secret", []byte(metaBody)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, w.Code)
		}
		if i == 1 && !strings.Contains(w.Body.String(), `"duplicates":1`) {
			t.Fatalf("replay response must mark the duplicate: %s", w.Body.String())
		}
	}
	if len(leads.ingested) != 1 {
		t.Fatalf("replay reached processing, ingested=%d", len(leads.ingested))
	}
}

func TestReceiveMeta_ProcessingFailureStillAcks200(t *testing.T) {
	h, leads := newTestHandler(t)
	r := newTestRouter(h)

	// Signed but carries no leadgen events; the platform retries on any
	// non-2xx, so the failure must be swallowed into a 200.
	body := `{"object":"page","entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign("meta-secret", []byte(body)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite processing failure, got %d: %s", w.Code, w.Body.String())
	}
	if len(leads.ingested) != 0 {
		t.Fatalf("nothing should have been ingested, got %d", len(leads.ingested))
	}
}

func TestReceiveMessaging_ProcessingFailureStillAcks200(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	body := `{"messages":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader(body))
	req.Header.Set("X-Signature", sign("msg-secret", []byte(body)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite processing failure, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyMeta_Handshake(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/meta?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "12345" {
		t.Fatalf("handshake must echo the challenge, got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("bad verify token must be 403, got %d", w.Code)
	}
}

func TestReceivePayment_SignatureContract(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	body := `{"id": "pay-7", "type": "payment.succeeded", "tenant_id": "7a0c5cbd-6e63-4bfb-b6d4-87f5ad9c61de", "credits": 10}`

	// Missing header.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// Valid Stripe-style header.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set("X-Payment-Signature", paymentHeader("pay-secret", time.Now(), []byte(body)))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
