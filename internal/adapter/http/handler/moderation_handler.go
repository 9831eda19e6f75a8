package handler

import (
	"agent-wallet-bridge/internal/adapter/http/dto"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
)

// ModerationHandler relays staff button presses from the UI layer.
type ModerationHandler struct {
	moderation ports.ModerationService
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(moderation ports.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

// Callback handles POST /api/v1/moderation/callback. A repeated press is
// reported with duplicate=true and a 200, not an error.
func (h *ModerationHandler) Callback(c *gin.Context) {
	var req dto.ModerationCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	q := dto.MessageQuery{ChatID: req.ChatID, MessageID: req.MessageID}
	result, err := h.moderation.Handle(c.Request.Context(), ports.ModerationCallback{
		Ref:     q.Ref(),
		Data:    req.Data,
		StaffID: req.StaffID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ModerationResponse{
		Kind:      string(result.Command.Kind),
		Action:    string(result.Command.Action),
		RequestID: result.Command.RequestID,
		Status:    string(result.Status),
		Duplicate: result.Duplicate,
	})
}
