package service

import (
	"context"
	"fmt"
	"time"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/google/uuid"
)

// AuthServiceImpl implements ports.AuthService for configured API clients.
type AuthServiceImpl struct {
	clients  map[string]string // client id -> argon2id secret hash
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	auditSvc ports.AuditService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	clients []config.ClientConfig,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	auditSvc ports.AuditService,
) *AuthServiceImpl {
	byID := make(map[string]string, len(clients))
	for _, c := range clients {
		byID[c.ID] = c.SecretHash
	}
	return &AuthServiceImpl{
		clients:  byID,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		auditSvc: auditSvc,
	}
}

// IssueToken validates client credentials and returns a JWT.
func (s *AuthServiceImpl) IssueToken(ctx context.Context, clientID, secret string) (string, time.Time, error) {
	hash, ok := s.clients[clientID]
	if !ok || secret == "" {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(secret, hash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify secret: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(clientID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	if s.auditSvc != nil {
		s.auditSvc.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        "client:" + clientID,
			Action:       domain.AuditActionIssueToken,
			ResourceType: "token",
			CreatedAt:    time.Now().UTC(),
		})
	}

	return token, expiry, nil
}
