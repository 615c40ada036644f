// Package crypto issues and verifies the session tokens presented to the gateway.
package crypto

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.TokenVerifier = (*JWTManager)(nil)

// JWTConfig configures a JWTManager.
type JWTConfig struct {
	Secret []byte
	Issuer string
	// Leeway tolerates clock skew when checking exp and iat
	Leeway time.Duration
	// Clock defaults to time.Now
	Clock func() time.Time
}

// JWTManager signs and verifies HS256 session tokens. It checks signature and
// expiry only; revocation is the token registry's concern.
type JWTManager struct {
	cfg    JWTConfig
	parser *jwt.Parser
	log    logger.Logger
}

// NewJWTManager creates a JWTManager.
func NewJWTManager(cfg JWTConfig, log logger.Logger) (*JWTManager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.ErrInvalidConfig("jwt secret must be at least 32 bytes")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Clock),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &JWTManager{
		cfg:    cfg,
		parser: jwt.NewParser(opts...),
		log:    log.WithComponent("jwt"),
	}, nil
}

// Issue signs a token for userID valid for ttl.
func (j *JWTManager) Issue(ctx context.Context, userID string, ttl time.Duration) (string, *models.SessionClaims, error) {
	if userID == "" {
		return "", nil, errors.ErrInvalidRequest("user id is required")
	}
	if ttl <= 0 {
		return "", nil, errors.ErrInvalidRequest("token ttl must be positive")
	}

	now := j.cfg.Clock().UTC().Truncate(time.Second)
	sc := &models.SessionClaims{
		UserID:    userID,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	claims := jwt.RegisteredClaims{
		ID:        sc.TokenID,
		Subject:   userID,
		Issuer:    j.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(sc.IssuedAt),
		NotBefore: jwt.NewNumericDate(sc.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sc.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.cfg.Secret)
	if err != nil {
		j.log.Error(ctx, "Failed to sign JWT", err, logger.String("user_id", userID))
		return "", nil, errors.ErrInternal.WithCause(err)
	}
	return signed, sc, nil
}

// Verify checks signature and expiry and returns the session claims. Every failure
// maps to ErrUnauthorized.
func (j *JWTManager) Verify(ctx context.Context, tokenString string) (*models.SessionClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := j.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return j.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		j.log.Debug(ctx, "Token verification failed", logger.Err(err))
		return nil, errors.ErrUnauthorized.WithCause(err)
	}
	if claims.Subject == "" {
		return nil, errors.ErrUnauthorized.WithMetadata("reason", "missing subject")
	}

	sc := &models.SessionClaims{
		UserID:  claims.Subject,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		sc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sc.ExpiresAt = claims.ExpiresAt.Time
	}
	return sc, nil
}
