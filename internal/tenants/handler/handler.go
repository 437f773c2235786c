// Package handler exposes tenant administration over HTTP: tenants, offers,
// campaign mappings, delivery integrations and scoring templates.
package handler

import (
	"net/http"

	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/internal/tenants/repository"
	"leadflow_backend/internal/tenants/service"
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

type createTenantRequest struct {
	Name         string              `json:"name" binding:"required"`
	ChannelPhone string              `json:"channel_phone" binding:"required"`
	MetaPageID   string              `json:"meta_page_id"`
	Settings     repository.Settings `json:"settings"`
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	tenant, err := h.svc.CreateTenant(c.Request.Context(), req.Name, req.ChannelPhone, req.MetaPageID, req.Settings)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, tenant)
}

func (h *Handler) ListTenants(c *gin.Context) {
	tenants, err := h.svc.ListTenants(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"tenants": tenants})
}

func (h *Handler) GetTenant(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	tenant, err := h.svc.GetTenant(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tenant)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var settings repository.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.UpdateSettings(c.Request.Context(), tenantID, settings); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": true})
}

type createOfferRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateOffer(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	offer, err := h.svc.CreateOffer(c.Request.Context(), tenantID, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, offer)
}

func (h *Handler) ListOffers(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	offers, err := h.svc.ListOffers(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"offers": offers})
}

type mapCampaignRequest struct {
	OfferID    uuid.UUID `json:"offer_id" binding:"required"`
	Source     string    `json:"source" binding:"required"`
	CampaignID string    `json:"campaign_id" binding:"required"`
}

func (h *Handler) MapCampaign(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var req mapCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	err := h.svc.MapCampaign(c.Request.Context(), tenantID, req.OfferID, req.Source, req.CampaignID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"mapped": true})
}

type createIntegrationRequest struct {
	Kind   string            `json:"kind" binding:"required"`
	Name   string            `json:"name" binding:"required"`
	Config map[string]string `json:"config"`
}

func (h *Handler) CreateIntegration(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var req createIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	integration, err := h.svc.CreateIntegration(c.Request.Context(), tenantID, req.Kind, req.Name, req.Config)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, integration)
}

func (h *Handler) ListIntegrations(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	integrations, err := h.svc.ListIntegrations(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"integrations": integrations})
}

type setIntegrationActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) SetIntegrationActive(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	integrationID, ok := pathUUID(c, "integrationId")
	if !ok {
		return
	}
	var req setIntegrationActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	err := h.svc.SetIntegrationActive(c.Request.Context(), tenantID, integrationID, *req.Active)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": true})
}

type saveTemplateRequest struct {
	OfferID  *uuid.UUID       `json:"offer_id"`
	Template scoring.Template `json:"template" binding:"required"`
}

func (h *Handler) SaveScoringTemplate(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var req saveTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	err := h.svc.SaveScoringTemplate(c.Request.Context(), tenantID, req.OfferID, req.Template)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"saved": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
