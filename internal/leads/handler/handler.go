// Package handler exposes the lead lifecycle over the authenticated API:
// listing, timelines, manual transitions and pending-mapping resolution.
package handler

import (
	"net/http"
	"strconv"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListOffers(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	var status *domain.Status
	if raw := c.Query("status"); raw != "" {
		s := domain.Status(raw)
		if !domain.IsKnown(s) {
			httpkit.Error(c, http.StatusBadRequest, "unknown status", raw)
			return
		}
		status = &s
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	offers, err := h.svc.ListOffers(c.Request.Context(), tenantID, status, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"lead_offers": offers})
}

func (h *Handler) GetOffer(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	offer, err := h.svc.GetOffer(c.Request.Context(), tenantID, offerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, offer)
}

func (h *Handler) Timeline(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	timeline, err := h.svc.Timeline(c.Request.Context(), tenantID, offerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"timeline": timeline})
}

func (h *Handler) ListMessages(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	messages, err := h.svc.ListMessages(c.Request.Context(), tenantID, offerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"messages": messages})
}

type markContactedRequest struct {
	Message string `json:"message"`
}

func (h *Handler) MarkContacted(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	var req markContactedRequest
	_ = c.ShouldBindJSON(&req) // body is optional
	if err := h.svc.MarkContacted(c.Request.Context(), tenantID, offerID, req.Message); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": domain.StatusContacted})
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) Escalate(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.Escalate(c.Request.Context(), tenantID, offerID, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": domain.StatusHumanHandoff})
}

func (h *Handler) Resume(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	if err := h.svc.Resume(c.Request.Context(), tenantID, offerID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": domain.StatusQualifying})
}

func (h *Handler) Disqualify(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.Disqualify(c.Request.Context(), tenantID, offerID, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": domain.StatusDisqualified})
}

type mapOfferRequest struct {
	OfferID uuid.UUID `json:"offer_id" binding:"required"`
}

func (h *Handler) MapPendingOffer(c *gin.Context) {
	tenantID, ok := requireTenant(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "leadOfferId")
	if !ok {
		return
	}
	var req mapOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.MapPendingOffer(c.Request.Context(), tenantID, offerID, req.OfferID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": domain.StatusToBeContacted})
}

func requireTenant(c *gin.Context) (uuid.UUID, bool) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "tenant scope missing", nil)
		return uuid.Nil, false
	}
	return tenantID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
