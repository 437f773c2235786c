package webhook

import (
	"errors"
	"io"
	"net/http"

	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps webhook request bodies. Sources send small JSON
// documents; anything larger is hostile.
const maxBodyBytes = 1 << 20

// Handler owns the public webhook endpoints. Nothing unverified is ever
// parsed. The ad-platform and messaging sources retry on any non-2xx, so
// they get 401 on verification failure and 200 for everything after it,
// processing errors included. The payment processor expects 400 on a
// missing signature, 401 on an invalid one and 200 on success.
type Handler struct {
	svc             *Service
	meta            Verifier
	messaging       Verifier
	payments        Verifier
	metaVerifyToken string
	logger          *logger.Logger
}

func NewHandler(svc *Service, meta, messaging, payments Verifier, metaVerifyToken string, log *logger.Logger) *Handler {
	return &Handler{
		svc:             svc,
		meta:            meta,
		messaging:       messaging,
		payments:        payments,
		metaVerifyToken: metaVerifyToken,
		logger:          log,
	}
}

// VerifyMeta answers the Meta subscription handshake: echo hub.challenge
// when the verify token matches.
func (h *Handler) VerifyMeta(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.metaVerifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	h.logger.WebhookRejected(SourceMeta, "verify token mismatch")
	c.String(http.StatusForbidden, "verification failed")
}

func (h *Handler) ReceiveMeta(c *gin.Context) {
	body, ok := h.verifiedBody(c, SourceMeta, h.meta, http.StatusUnauthorized)
	if !ok {
		return
	}
	result, err := h.svc.AcceptMeta(c.Request.Context(), body)
	h.acknowledge(c, SourceMeta, result, err)
}

func (h *Handler) ReceiveMessaging(c *gin.Context) {
	body, ok := h.verifiedBody(c, SourceMessaging, h.messaging, http.StatusUnauthorized)
	if !ok {
		return
	}
	result, err := h.svc.AcceptMessaging(c.Request.Context(), body)
	h.acknowledge(c, SourceMessaging, result, err)
}

func (h *Handler) ReceivePayment(c *gin.Context) {
	body, ok := h.verifiedBody(c, SourcePayments, h.payments, http.StatusBadRequest)
	if !ok {
		return
	}
	result, err := h.svc.AcceptPayment(c.Request.Context(), body)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// acknowledge always answers 200 once the signature checked out. The source
// retries on any non-2xx, so a processing failure is logged and archived,
// never surfaced as a status code.
func (h *Handler) acknowledge(c *gin.Context, source string, result *Result, err error) {
	if err != nil {
		h.logger.Error("webhook processing failed", "source", source, "error", err)
		httpkit.OK(c, &Result{})
		return
	}
	httpkit.OK(c, result)
}

// verifiedBody reads the raw body and runs signature verification. It
// writes the error response itself when verification fails; missingStatus
// is the source's contract for an absent signature header.
func (h *Handler) verifiedBody(c *gin.Context, source string, verifier Verifier, missingStatus int) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unreadable body", nil)
		return nil, false
	}

	switch err := verifier.Verify(c.Request.Header, body); {
	case errors.Is(err, ErrMissingSignature):
		h.logger.WebhookRejected(source, "signature missing")
		httpkit.Error(c, missingStatus, "signature required", nil)
		return nil, false
	case errors.Is(err, ErrInvalidSignature):
		h.logger.WebhookRejected(source, "signature invalid")
		httpkit.Error(c, http.StatusUnauthorized, "signature verification failed", nil)
		return nil, false
	case err != nil:
		httpkit.Error(c, http.StatusUnauthorized, "signature verification failed", nil)
		return nil, false
	}
	return body, true
}

// ListEvents backs the admin audit view over archived external events.
func (h *Handler) ListEvents(c *gin.Context) {
	source := c.Param("source")
	switch source {
	case SourceMeta, SourceMessaging, SourcePayments:
	default:
		httpkit.Error(c, http.StatusBadRequest, "unknown source", source)
		return
	}
	events, err := h.svc.RecentEvents(c.Request.Context(), source, 100)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"events": events})
}
