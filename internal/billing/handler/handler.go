// Package handler exposes the credit ledger over HTTP: balance, history and
// manual bonus grants.
package handler

import (
	"net/http"
	"strconv"

	"leadflow_backend/internal/billing/service"
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

func (h *Handler) Balance(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	balance, err := h.svc.Balance(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"tenant_id": tenantID, "balance": balance})
}

func (h *Handler) History(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.svc.History(c.Request.Context(), tenantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"entries": entries})
}

type grantBonusRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"`
	Note      string `json:"note"`
}

func (h *Handler) GrantBonus(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId")
	if !ok {
		return
	}
	var req grantBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.svc.GrantBonus(c.Request.Context(), tenantID, req.Amount, req.Reference, req.Note); httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"granted": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, err.Error())
		return uuid.Nil, false
	}
	return id, true
}
