package handler

import (
	"time"

	"agent-wallet-bridge/internal/adapter/http/dto"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
)

// TaskHandler queues account operations for the worker.
type TaskHandler struct {
	opSvc ports.OperationService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(opSvc ports.OperationService) *TaskHandler {
	return &TaskHandler{opSvc: opSvc}
}

// Submit handles POST /api/v1/tasks. The payload is validated per kind by
// the operation service; the result arrives later as a user notification.
func (h *TaskHandler) Submit(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	task, err := h.opSvc.Submit(c.Request.Context(), domain.TaskKind(req.Kind), req.UserID, req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, dto.TaskResponse{
		TaskID:     task.ID,
		Kind:       string(task.Kind),
		EnqueuedAt: task.EnqueuedAt.UTC().Format(time.RFC3339),
	})
}
