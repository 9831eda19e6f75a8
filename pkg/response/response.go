package response

import (
	"errors"
	"net/http"
	"time"

	"agent-wallet-bridge/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, data)
}

// Accepted sends a 202 response, used for work handed to the operation queue.
func Accepted(c *gin.Context, data interface{}) {
	write(c, http.StatusAccepted, data)
}

// Error maps an *apperror.AppError to its status and code; anything else is a 500.
func Error(c *gin.Context, err error) {
	status, code, msg := http.StatusInternalServerError, "SYS_000", "Internal server error"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code, msg = appErr.HTTPStatus, appErr.Code, appErr.Message
	}

	c.JSON(status, ErrorResponse{
		ErrorCode: code,
		Message:   msg,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

func write(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// requestID returns the id set by the request logger, or a fresh one.
func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
