package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/storage/database/inmem"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(inmemdb.NewSessionStore(inmemdb.Open()), time.Hour)
	ana := session.Identity{UserID: "ana-id", Username: "ana", DisplayName: "Ana", Role: policy.RoleInstructor}

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	session.NowFunc = func() time.Time { return now }
	defer func() { session.NowFunc = time.Now }()

	first, err := svc.Issue(ctx, ana)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, ana)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, now.Add(time.Hour), first.ExpiresAt)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleInstructor, got.Role)
	assert.True(t, got.IsInstructor())
	assert.False(t, got.IsAdmin())

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, first.ID))
		_, err := svc.Get(ctx, first.ID)
		assert.Equal(t, session.ErrNotFound, err)
		_, err = svc.Get(ctx, second.ID)
		assert.NoError(t, err)
	})

	t.Run("expiry", func(t *testing.T) {
		now = now.Add(time.Hour)
		_, err := svc.Get(ctx, second.ID)
		assert.Equal(t, session.ErrExpired, err)
		_, err = svc.Get(ctx, second.ID)
		assert.Equal(t, session.ErrNotFound, err)
	})

	t.Run("revoke user", func(t *testing.T) {
		a, err := svc.Issue(ctx, ana)
		require.NoError(t, err)
		b, err := svc.Issue(ctx, session.Identity{UserID: "ben-id", Role: policy.RoleInstructor})
		require.NoError(t, err)

		require.NoError(t, svc.RevokeUser(ctx, ana.UserID))
		_, err = svc.Get(ctx, a.ID)
		assert.Equal(t, session.ErrNotFound, err)
		_, err = svc.Get(ctx, b.ID)
		assert.NoError(t, err)
	})
}

func TestSession_Can(t *testing.T) {
	ana := session.Session{UserID: "ana", Role: policy.RoleInstructor}
	assert.True(t, ana.Can(policy.AssignSelf, "ana", false))
	assert.False(t, ana.Can(policy.AssignOthers, "ben", false))
	assert.True(t, ana.Can(policy.EditOwnContent, "ana", true))
	assert.False(t, ana.Can(policy.EditOwnContent, "ana", false))
	assert.False(t, session.Session{Role: "ghost"}.Can(policy.ViewLookup, "", false))
}
