package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports/mocks"
	"agent-wallet-bridge/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupAuthService(t *testing.T) (*AuthServiceImpl, *mocks.MockHashService, *mocks.MockTokenService, *mocks.MockAuditService) {
	ctrl := gomock.NewController(t)
	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	auditSvc := mocks.NewMockAuditService(ctrl)

	clients := []config.ClientConfig{{ID: "bot-frontend", SecretHash: "$argon2id$hashed"}}
	return NewAuthService(clients, hashSvc, tokenSvc, auditSvc), hashSvc, tokenSvc, auditSvc
}

func TestAuthService_IssueToken_Success(t *testing.T) {
	svc, hashSvc, tokenSvc, auditSvc := setupAuthService(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	hashSvc.EXPECT().Verify("s3cret", "$argon2id$hashed").Return(true, nil)
	tokenSvc.EXPECT().Generate("bot-frontend").Return("jwt_token_here", expiry, nil)
	auditSvc.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionIssueToken, entry.Action)
		assert.Equal(t, "client:bot-frontend", entry.Actor)
	})

	token, exp, err := svc.IssueToken(ctx, "bot-frontend", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "jwt_token_here", token)
	assert.Equal(t, expiry, exp)
}

func TestAuthService_IssueToken_UnknownClient(t *testing.T) {
	svc, _, _, _ := setupAuthService(t)

	_, _, err := svc.IssueToken(context.Background(), "stranger", "s3cret")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestAuthService_IssueToken_WrongSecret(t *testing.T) {
	svc, hashSvc, _, _ := setupAuthService(t)

	hashSvc.EXPECT().Verify("guess", "$argon2id$hashed").Return(false, nil)

	_, _, err := svc.IssueToken(context.Background(), "bot-frontend", "guess")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))

	_, _, err = svc.IssueToken(context.Background(), "bot-frontend", "")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))
}

func TestAuthService_IssueToken_HashError(t *testing.T) {
	svc, hashSvc, _, _ := setupAuthService(t)

	hashSvc.EXPECT().Verify("s3cret", "$argon2id$hashed").Return(false, errors.New("invalid hash format"))

	_, _, err := svc.IssueToken(context.Background(), "bot-frontend", "s3cret")
	assert.True(t, apperror.HasCode(err, "SYS_001"))
}
