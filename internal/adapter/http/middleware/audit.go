package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful write calls made by API clients.
// Routes are matched on their registered template, so /wallets/42/adjust
// and /wallets/7/adjust map to the same action.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.Param("user_id")
		}

		actor := "anonymous"
		if clientID := ClientID(c); clientID != "" {
			actor = "client:" + clientID
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapPathToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch route {
	case "/api/v1/tasks":
		return domain.AuditActionEnqueueTask, "task"
	case "/api/v1/wallets/:user_id/adjust":
		return domain.AuditActionManualAdjust, "wallet"
	case "/api/v1/withdrawals":
		return domain.AuditActionCreateRequest, "withdrawal"
	case "/api/v1/withdrawals/:id/refund":
		return domain.AuditActionRefund, "withdrawal"
	case "/api/v1/payments":
		return domain.AuditActionCreateRequest, "payment"
	case "/api/v1/compensations":
		return domain.AuditActionCreateRequest, "compensation"
	}
	return "", ""
}
