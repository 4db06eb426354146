package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitizen-labs/sessiond/internal/application/dto"
	"github.com/bitizen-labs/sessiond/internal/application/service"
	domainService "github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// TaskHandler exposes the delegated task gate and its execution log.
type TaskHandler struct {
	tasks    service.TaskAppService
	sessions service.SessionAppService
	taskLogs domainService.TaskLogStore
	logger   logger.Logger
}

// NewTaskHandler creates the task gate handler. sessions resolves log
// ownership; taskLogs may be nil, the log endpoint then reports an error.
func NewTaskHandler(tasks service.TaskAppService, sessions service.SessionAppService, taskLogs domainService.TaskLogStore, log logger.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		sessions: sessions,
		taskLogs: taskLogs,
		logger:   log.WithComponent("TaskHandler"),
	}
}

// Execute handles POST /api/v1/tasks/execute.
func (h *TaskHandler) Execute(c *gin.Context) {
	var req dto.ExecuteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}

	resp, err := h.tasks.Execute(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logs handles GET /api/v1/sessions/:id/tasks.
func (h *TaskHandler) Logs(c *gin.Context) {
	view, err := h.sessions.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !authorizePrincipal(c, view.PrincipalID) {
		return
	}
	if h.taskLogs == nil {
		respondError(c, errors.ErrInternal("task log store is not configured"))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errors.ErrInvalidRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	logs, err := h.taskLogs.FindBySession(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to read task logs", err,
			logger.String("session_id", c.Param("id")))
		respondError(c, errors.ErrInternal("failed to read task logs"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": logs, "count": len(logs)})
}
