package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
)

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.auth.Register(ctx, RegisterInput{
		Email:    "Ada@Example.com",
		Password: "hunter2hunter2",
		Metadata: map[string]any{"plan": "free"},
	})
	require.NoError(t, err)
	// Emails are stored lowercased.
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, 900, session.ExpiresIn)

	login, err := h.auth.Login(ctx, LoginInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)
	assert.NotNil(t, login.User.LastLogin)

	principal, err := h.auth.ValidateAccess(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, principal.ID)
	assert.Equal(t, auth.PrincipalUser, principal.Type)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, RegisterInput{Email: "not-an-email", Password: "hunter2hunter2"})
	assert.Error(t, err)

	_, err = h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "short"})
	assert.Error(t, err)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	_, err = h.auth.Register(ctx, RegisterInput{Email: "ADA@example.com", Password: "hunter2hunter2"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestLoginFailureIsOpaque(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	// Unknown principal and wrong password produce the same failure.
	_, unknownErr := h.auth.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "hunter2hunter2"})
	_, wrongErr := h.auth.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.True(t, apperrors.IsAuthFailure(unknownErr))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestRefreshRotationConsumesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	pair, err := h.auth.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, pair.RefreshToken)

	// The consumed token replays as an auth failure.
	_, err = h.auth.Refresh(ctx, session.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))

	// The freshly rotated token still works.
	_, err = h.auth.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.Refresh(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))

	// Access tokens are not accepted on the refresh path.
	session, err := h.auth.Register(context.Background(),
		RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)
	_, err = h.auth.Refresh(context.Background(), session.AccessToken)
	assert.Error(t, err)
}

func TestLogoutRevokesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	principal := &auth.Principal{ID: session.User.ID, Type: auth.PrincipalUser}
	require.NoError(t, h.auth.Logout(ctx, principal))

	// The pre-logout access token hits the tombstone.
	_, err = h.auth.ValidateAccess(ctx, session.AccessToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))

	// The pre-logout refresh token is gone as well.
	_, err = h.auth.Refresh(ctx, session.RefreshToken)
	assert.Error(t, err)
}

func TestAdminLoginAndMe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.auth.EnsureAdmin(ctx, "root", "super-secret-pw"))
	// Ensuring twice is a no-op, not a conflict.
	require.NoError(t, h.auth.EnsureAdmin(ctx, "root", "different-pw-entirely"))

	session, err := h.auth.AdminLogin(ctx, AdminLoginInput{Username: "root", Password: "super-secret-pw"})
	require.NoError(t, err)
	assert.Equal(t, "root", session.Admin.Username)

	principal, err := h.auth.ValidateAccess(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())

	admin, err := h.auth.AdminMe(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, session.Admin.ID, admin.ID)

	_, err = h.auth.AdminLogin(ctx, AdminLoginInput{Username: "root", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))
}

func TestEnsureAdminRejectsShortPassword(t *testing.T) {
	h := newHarness(t)
	err := h.auth.EnsureAdmin(context.Background(), "root", "short")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalid(err))
}
