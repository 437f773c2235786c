// Package handler exposes deliveries over HTTP: list, inspect, manual retry
// and refund.
package handler

import (
	"net/http"
	"strconv"

	"leadflow_backend/internal/delivery/service"
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

func (h *Handler) List(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var status *string
	if s := c.Query("status"); s != "" {
		status = &s
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	deliveries, err := h.svc.List(c.Request.Context(), tenantID, status, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"deliveries": deliveries})
}

func (h *Handler) Get(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	deliveryID, ok := pathUUID(c, "deliveryId")
	if !ok {
		return
	}
	d, results, err := h.svc.Get(c.Request.Context(), tenantID, deliveryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"delivery": d, "results": results})
}

func (h *Handler) Retry(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	deliveryID, ok := pathUUID(c, "deliveryId")
	if !ok {
		return
	}
	if err := h.svc.ForceRetry(c.Request.Context(), tenantID, deliveryID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"retried": true})
}

type refundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) Refund(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	deliveryID, ok := pathUUID(c, "deliveryId")
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.Refund(c.Request.Context(), tenantID, deliveryID, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"refunded": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, err.Error())
		return uuid.Nil, false
	}
	return id, true
}
