package handler

import (
	"strconv"

	"agent-wallet-bridge/internal/adapter/http/dto"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// WalletHandler exposes the wallet ledger.
type WalletHandler struct {
	ledger ports.LedgerService
	locker ports.UserLocker
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService, locker ports.UserLocker) *WalletHandler {
	return &WalletHandler{ledger: ledger, locker: locker}
}

// GetBalance handles GET /api/v1/wallets/:user_id/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		UserID:  userID,
		Balance: balance.StringFixed(domain.MoneyScale),
	})
}

// ListTransactions handles GET /api/v1/wallets/:user_id/transactions?limit=N.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	txs, err := h.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromTransactions(userID, txs))
}

// Adjust handles POST /api/v1/wallets/:user_id/adjust. A negative amount
// debits the wallet and fails rather than overdrawing it.
func (h *WalletHandler) Adjust(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}

	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	delta, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	unlock := h.locker.Lock(userID)
	balance, err := h.ledger.AdjustBalance(c.Request.Context(), userID, delta, domain.TxKindManualAdjustment, req.Description)
	unlock()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		UserID:  userID,
		Balance: balance.StringFixed(domain.MoneyScale),
	})
}

// userParam reads and checks :user_id, writing the error response itself.
func userParam(c *gin.Context) (string, bool) {
	userID := c.Param("user_id")
	if !dto.IsSafeID(userID) {
		response.Error(c, apperror.Validation("invalid user id"))
		return "", false
	}
	return userID, true
}
