package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("segredo-de-teste", "sila-system", time.Hour, nil)

	issued, err := svc.GenerateToken("user-1", []string{"admin", "finance_officer"})
	require.NoError(t, err)
	require.NotEmpty(t, issued.AccessToken)
	require.Equal(t, "Bearer", issued.TokenType)
	require.EqualValues(t, 3600, issued.ExpiresIn)

	claims, err := svc.ValidateToken(context.Background(), issued.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, []string{"admin", "finance_officer"}, claims.Roles)
	require.Equal(t, "sila-system", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewJWTService("segredo-a", "sila-system", time.Hour, nil)
	verifier := NewJWTService("segredo-b", "sila-system", time.Hour, nil)

	issued, err := issuer.GenerateToken("user-1", nil)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), issued.AccessToken)
	require.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewJWTService("segredo", "sila-system", time.Hour, nil)
	svc.accessExpiry = -time.Minute

	issued, err := svc.GenerateToken("user-1", nil)
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), issued.AccessToken)
	require.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	svc := NewJWTService("segredo", "sila-system", time.Hour, nil)

	_, err := svc.ValidateToken(context.Background(), "not-a-token")
	require.Error(t, err)
}

func TestInvalidateTokenWithoutRedisIsNoop(t *testing.T) {
	svc := NewJWTService("segredo", "sila-system", time.Hour, nil)

	issued, err := svc.GenerateToken("user-1", nil)
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateToken(context.Background(), issued.AccessToken))

	// 没有黑名单能力时令牌保持有效
	_, err = svc.ValidateToken(context.Background(), issued.AccessToken)
	require.NoError(t, err)
}

func TestExtractTokenFromBearer(t *testing.T) {
	require.Equal(t, "abc123", ExtractTokenFromBearer("Bearer abc123"))
	require.Equal(t, "abc123", ExtractTokenFromBearer("abc123"))
	require.Equal(t, "", ExtractTokenFromBearer(""))
}

func TestDefaultExpiry(t *testing.T) {
	svc := NewJWTService("segredo", "sila-system", 0, nil)
	require.Equal(t, 2*time.Hour, svc.accessExpiry)
}
