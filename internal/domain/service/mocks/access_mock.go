package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
)

var (
	_ service.RateLimiter   = (*MockRateLimiter)(nil)
	_ service.TokenRegistry = (*MockTokenRegistry)(nil)
	_ service.TokenVerifier = (*MockTokenVerifier)(nil)
)

// MockRateLimiter is a mock implementation of RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Check(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) models.Decision {
	args := m.Called(ctx, clientIdentity, policy)
	return args.Get(0).(models.Decision)
}

// MockTokenRegistry is a mock implementation of TokenRegistry
type MockTokenRegistry struct {
	mock.Mock
}

func (m *MockTokenRegistry) RegisterToken(ctx context.Context, userID, token string, expiresAt time.Time) {
	m.Called(ctx, userID, token, expiresAt)
}

func (m *MockTokenRegistry) IsBlacklisted(ctx context.Context, token string) bool {
	args := m.Called(ctx, token)
	return args.Bool(0)
}

func (m *MockTokenRegistry) BlacklistToken(ctx context.Context, token, userID string, expiresAt time.Time) {
	m.Called(ctx, token, userID, expiresAt)
}

func (m *MockTokenRegistry) InvalidateAllUserTokens(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

func (m *MockTokenRegistry) RemoveUserToken(ctx context.Context, userID, token string) {
	m.Called(ctx, userID, token)
}

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (*models.SessionClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionClaims), args.Error(1)
}
