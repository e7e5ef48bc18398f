package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftbase/domain/entities"
	"swiftbase/pkg/auth"
)

func TestAuditTrailFollowsOperations(t *testing.T) {
	h := newHarness(t)
	ctx := WithRequestMeta(context.Background(), RequestMeta{IP: "10.0.0.1", UserAgent: "test-agent"})

	session, err := h.auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)
	h.mustCreateCollection(t, "posts")

	entries, total, err := h.audit.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, entities.AuditCollectionCreated, entries[0].EventType)
	assert.Equal(t, entities.AuditUserRegistered, entries[1].EventType)
	assert.Equal(t, session.User.ID, entries[1].UserID)
	assert.Equal(t, "10.0.0.1", entries[1].IP)
	assert.Equal(t, "test-agent", entries[1].UserAgent)
}

func TestAuditRecordsAdminLogoutAsAdminEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.auth.EnsureAdmin(ctx, "root", "super-secret-pw"))
	session, err := h.auth.AdminLogin(ctx, AdminLoginInput{Username: "root", Password: "super-secret-pw"})
	require.NoError(t, err)

	principal := &auth.Principal{ID: session.Admin.ID, Type: auth.PrincipalAdmin}
	require.NoError(t, h.auth.Logout(ctx, principal))

	entries, _, err := h.audit.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entities.AuditAdminLogout, entries[0].EventType)
	assert.Equal(t, "admin", entries[0].EntityType)
	assert.Equal(t, session.Admin.ID, entries[0].AdminID)
}

func TestAuditListPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		h.mustCreateCollection(t, name)
	}

	entries, total, err := h.audit.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 2)

	entries, _, err = h.audit.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
