package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenIssuer = "invoice-app"

// JWTClaims are the access-token claims issued by the invoicing app.
// Sub carries the account id.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AuthService verifies HS256 access tokens shared with the invoicing app.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ValidateAccessToken parses and verifies an access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.logger.Debug("rejected access token", zap.Error(err))
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}

// IssueAccessToken signs an access token for accountID. The invoicing app issues tokens
// in production; this is used by local tooling and tests.
func (s *AuthService) IssueAccessToken(accountID string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:  accountID,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
