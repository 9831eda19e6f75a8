package handler

import (
	"net/http"

	"agent-wallet-bridge/internal/adapter/http/dto"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues tokens to API clients.
type AuthHandler struct {
	authSvc ports.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc ports.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// IssueToken handles POST /api/v1/auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	token, expiry, err := h.authSvc.IssueToken(c.Request.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TokenResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// HealthCheck handles GET /health. A failing critical dependency answers
// 503; a failing non-critical one reports "degraded" with 200.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status   string `json:"status"`
			Critical bool   `json:"critical"`
			Error    string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus, len(checkers))
		status := "healthy"
		httpCode := http.StatusOK

		for _, checker := range checkers {
			st := depStatus{Status: "healthy", Critical: checker.Critical()}
			if err := checker.Ping(c.Request.Context()); err != nil {
				st.Status = "unhealthy"
				st.Error = err.Error()
				if st.Critical {
					status = "unhealthy"
					httpCode = http.StatusServiceUnavailable
				} else if status == "healthy" {
					status = "degraded"
				}
			}
			deps[checker.Name()] = st
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
