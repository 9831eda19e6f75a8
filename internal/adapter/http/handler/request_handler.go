package handler

import (
	"agent-wallet-bridge/internal/adapter/http/dto"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RequestHandler serves the staff-moderated requests: withdrawals,
// payments and compensations.
type RequestHandler struct {
	withdrawals   ports.WithdrawalService
	payments      ports.PaymentService
	compensations ports.CompensationService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(withdrawals ports.WithdrawalService, payments ports.PaymentService, compensations ports.CompensationService) *RequestHandler {
	return &RequestHandler{
		withdrawals:   withdrawals,
		payments:      payments,
		compensations: compensations,
	}
}

// CreateWithdrawal handles POST /api/v1/withdrawals.
func (h *RequestHandler) CreateWithdrawal(c *gin.Context) {
	var req dto.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	w, err := h.withdrawals.Create(c.Request.Context(), ports.CreateWithdrawalRequest{
		UserID:   req.UserID,
		Amount:   amount,
		MethodID: req.MethodID,
		Address:  req.Address,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWithdrawal(w))
}

// RefundWithdrawal handles POST /api/v1/withdrawals/:id/refund.
func (h *RequestHandler) RefundWithdrawal(c *gin.Context) {
	id := c.Param("id")
	if !dto.IsSafeID(id) {
		response.Error(c, apperror.Validation("invalid withdrawal id"))
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	w, err := h.withdrawals.Refund(c.Request.Context(), id, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWithdrawal(w))
}

// WithdrawalByMessage handles GET /api/v1/withdrawals/by-message.
func (h *RequestHandler) WithdrawalByMessage(c *gin.Context) {
	var q dto.MessageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	w, err := h.withdrawals.LookupByMessage(c.Request.Context(), q.Ref())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWithdrawal(w))
}

// CreatePayment handles POST /api/v1/payments.
func (h *RequestHandler) CreatePayment(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	p, err := h.payments.Create(c.Request.Context(), ports.CreatePaymentRequest{
		UserID:      req.UserID,
		Amount:      amount,
		MethodID:    req.MethodID,
		ExternalRef: req.ExternalRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromPayment(p))
}

// PaymentByMessage handles GET /api/v1/payments/by-message.
func (h *RequestHandler) PaymentByMessage(c *gin.Context) {
	var q dto.MessageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	p, err := h.payments.LookupByMessage(c.Request.Context(), q.Ref())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(p))
}

// CreateCompensation handles POST /api/v1/compensations.
func (h *RequestHandler) CreateCompensation(c *gin.Context) {
	var req dto.CreateCompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	r, err := h.compensations.Create(c.Request.Context(), req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromCompensation(r))
}

// CompensationByMessage handles GET /api/v1/compensations/by-message.
func (h *RequestHandler) CompensationByMessage(c *gin.Context) {
	var q dto.MessageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	r, err := h.compensations.LookupByMessage(c.Request.Context(), q.Ref())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromCompensation(r))
}
