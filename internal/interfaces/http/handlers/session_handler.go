package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitizen-labs/sessiond/internal/application/dto"
	"github.com/bitizen-labs/sessiond/internal/application/service"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// SessionHandler exposes the session credential lifecycle over HTTP.
type SessionHandler struct {
	sessions service.SessionAppService
	logger   logger.Logger
}

// NewSessionHandler creates the session lifecycle handler.
func NewSessionHandler(sessions service.SessionAppService, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   log.WithComponent("SessionHandler"),
	}
}

// Issue handles POST /api/v1/sessions.
func (h *SessionHandler) Issue(c *gin.Context) {
	var req dto.IssueSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	if !authorizePrincipal(c, req.PrincipalID) {
		return
	}

	resp, err := h.sessions.Issue(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	view, err := h.sessions.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizePrincipal(c, view.PrincipalID) {
		return
	}
	c.JSON(http.StatusOK, view)
}

// List handles GET /api/v1/principals/:principal_id/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	principalID := c.Param("principal_id")
	if !authorizePrincipal(c, principalID) {
		return
	}
	views, err := h.sessions.ListForPrincipal(c.Request.Context(), principalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "count": len(views)})
}

// Revoke handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Revoke(c *gin.Context) {
	view, err := h.sessions.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizePrincipal(c, view.PrincipalID) {
		return
	}

	resp, err := h.sessions.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateSpendLimits handles PUT /api/v1/sessions/:id/spend-limits.
func (h *SessionHandler) UpdateSpendLimits(c *gin.Context) {
	var req dto.UpdateSpendLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}

	view, err := h.sessions.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizePrincipal(c, view.PrincipalID) {
		return
	}

	view, err = h.sessions.UpdateSpendLimits(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
