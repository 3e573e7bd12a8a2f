package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the Store behavior every backend must share.
func runStoreContract(t *testing.T, st Store) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	suffix := mustSuffix(t)

	t.Run("create and get", func(t *testing.T) {
		until := now.Add(24 * time.Hour)
		created, err := st.Create(ctx, CreateTokenInput{
			Token:          "tok-" + suffix,
			UserID:         "u1-" + suffix,
			MaxSessions:    3,
			ValidFrom:      now.Add(-time.Hour),
			ValidUntil:     &until,
			AllowedIPs:     []string{"1.2.3.4", " ", "1.2.3.4"},
			AllowedStreams: []string{"s1"},
			Metadata:       map[string]any{"plan": "gold"},
			Now:            now,
		})
		require.NoError(t, err)
		require.Len(t, created.ID, 26)
		require.Equal(t, StatusActive, created.Status)

		got, err := st.GetByToken(ctx, "tok-"+suffix)
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
		require.Equal(t, "u1-"+suffix, got.UserID)
		require.Equal(t, 3, got.MaxSessions)
		require.Equal(t, []string{"1.2.3.4"}, got.AllowedIPs)
		require.Equal(t, []string{"s1"}, got.AllowedStreams)
		require.Equal(t, "gold", got.Metadata["plan"])
		require.True(t, got.ValidFrom.Equal(now.Add(-time.Hour)))
		require.NotNil(t, got.ValidUntil)
		require.True(t, got.ValidUntil.Equal(until))
	})

	t.Run("defaults", func(t *testing.T) {
		created, err := st.Create(ctx, CreateTokenInput{UserID: "u2-" + suffix, Now: now})
		require.NoError(t, err)
		require.NotEmpty(t, created.Token)
		require.Equal(t, 1, created.MaxSessions)
		require.Nil(t, created.ValidUntil)

		got, err := st.GetByToken(ctx, created.Token)
		require.NoError(t, err)
		require.Nil(t, got.AllowedIPs)
		require.Nil(t, got.AllowedStreams)
		require.Nil(t, got.ValidUntil)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := st.GetByToken(ctx, "missing-"+suffix)
		require.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("duplicate token", func(t *testing.T) {
		_, err := st.Create(ctx, CreateTokenInput{Token: "dup-" + suffix, UserID: "u3", Now: now})
		require.NoError(t, err)
		_, err = st.Create(ctx, CreateTokenInput{Token: "dup-" + suffix, UserID: "u4", Now: now})
		require.True(t, IsConflict(err), "got %v", err)
		var ce ConflictError
		require.True(t, errors.As(err, &ce))
		require.Equal(t, "token", ce.Field)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := st.Create(ctx, CreateTokenInput{Token: "x-" + suffix, Now: now})
		require.True(t, IsInvalidInput(err), "missing user_id: %v", err)

		_, err = st.Create(ctx, CreateTokenInput{Token: "y-" + suffix, UserID: "u", MaxSessions: -1, Now: now})
		require.True(t, IsInvalidInput(err), "negative max_sessions: %v", err)

		past := now.Add(-time.Hour)
		_, err = st.Create(ctx, CreateTokenInput{Token: "z-" + suffix, UserID: "u", ValidFrom: now, ValidUntil: &past, Now: now})
		require.True(t, IsInvalidInput(err), "inverted window: %v", err)
	})

	t.Run("apply transition is compare-and-set", func(t *testing.T) {
		created, err := st.Create(ctx, CreateTokenInput{Token: "tr-" + suffix, UserID: "u5", Now: now})
		require.NoError(t, err)

		require.NoError(t, st.ApplyTransition(ctx, ExpireTransition(created, now.Add(time.Minute))))
		got, err := st.GetByToken(ctx, "tr-"+suffix)
		require.NoError(t, err)
		require.Equal(t, StatusExpired, got.Status)

		// Stale From: no-op, no error.
		require.NoError(t, st.ApplyTransition(ctx, StatusTransition{
			TokenID: created.ID, From: StatusActive, To: StatusSuspended, At: now,
		}))
		got, err = st.GetByToken(ctx, "tr-"+suffix)
		require.NoError(t, err)
		require.Equal(t, StatusExpired, got.Status)

		// Unknown token id: no-op.
		require.NoError(t, st.ApplyTransition(ctx, StatusTransition{
			TokenID: "01ZZZZZZZZZZZZZZZZZZZZZZZZ", From: StatusActive, To: StatusExpired, At: now,
		}))

		err = st.ApplyTransition(ctx, StatusTransition{From: StatusActive, To: StatusExpired})
		require.True(t, IsInvalidInput(err))
	})
}

func mustSuffix(t *testing.T) string {
	t.Helper()
	id, err := NewULID(time.Now())
	require.NoError(t, err)
	return id
}
