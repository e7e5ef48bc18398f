package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens() *TokenService {
	return NewTokenService("test-secret", 0, 0)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokens()

	token, err := svc.IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)

	claims, err := svc.VerifyAccess(token, "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, PrincipalUser, claims.PrincipalType)
	assert.Empty(t, claims.ID)
}

func TestAccessTTLDefaults(t *testing.T) {
	assert.Equal(t, 900, newTestTokens().AccessTTLSeconds())
	assert.Equal(t, 60, NewTokenService("s", time.Minute, time.Hour).AccessTTLSeconds())
}

func TestVerifyAccessEnforcesPrincipalType(t *testing.T) {
	svc := newTestTokens()

	token, err := svc.IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(token, PrincipalAdmin)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = svc.VerifyAccess(token, PrincipalUser)
	assert.NoError(t, err)
}

func TestRefreshTokenCarriesJTI(t *testing.T) {
	svc := newTestTokens()

	token, jti, expiresAt, err := svc.IssueRefresh("user-1", PrincipalUser)
	require.NoError(t, err)
	assert.NotEmpty(t, jti)
	assert.True(t, expiresAt.After(time.Now().Add(6*24*time.Hour)))

	claims, err := svc.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	svc := newTestTokens()

	refresh, _, _, err := svc.IssueRefresh("user-1", PrincipalUser)
	require.NoError(t, err)
	_, err = svc.VerifyAccess(refresh, "")
	assert.ErrorIs(t, err, ErrWrongTokenType)

	access, err := svc.IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)
	_, err = svc.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestTamperedTokenFailsVerification(t *testing.T) {
	svc := newTestTokens()

	token, err := svc.IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.VerifyAccess(tampered, "")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestWrongSecretFailsVerification(t *testing.T) {
	token, err := newTestTokens().IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)

	other := NewTokenService("different-secret", 0, 0)
	_, err = other.VerifyAccess(token, "")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExpiredTokenReportsExpiry(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute, 0)

	token, err := svc.IssueAccess("user-1", PrincipalUser)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(token, "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}
