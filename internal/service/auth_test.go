package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"
	"github.com/boddenberg/invoice-insights-bfa/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := service.NewAuthService("secret", time.Minute, zap.NewNop())

	token, err := auth.IssueAccessToken("acc-1")
	require.NoError(t, err)

	claims, err := auth.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Sub)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := service.NewAuthService("secret", time.Minute, zap.NewNop())
	other := service.NewAuthService("other-secret", time.Minute, zap.NewNop())
	expired := service.NewAuthService("secret", -time.Minute, zap.NewNop())

	wrongKey, err := other.IssueAccessToken("acc-1")
	require.NoError(t, err)
	stale, err := expired.IssueAccessToken("acc-1")
	require.NoError(t, err)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, service.JWTClaims{Sub: "acc-1", Type: "refresh"})
	refreshToken, err := refresh.SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":   "not-a-jwt",
		"wrong key": wrongKey,
		"expired":   stale,
		"refresh":   refreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateAccessToken(token)
			var unauth *domain.ErrUnauthorized
			assert.ErrorAs(t, err, &unauth)
		})
	}
}
