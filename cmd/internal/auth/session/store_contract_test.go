package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// contractEnv describes a backend under test.
type contractEnv struct {
	store Store

	// newToken returns a token id usable as Row.TokenID for userID.
	newToken func(t *testing.T, userID string) string

	// exactSweepCounts is false when the database may hold other tests' rows.
	exactSweepCounts bool

	// enforcesTokenRef is true when Upsert checks the token foreign key.
	enforcesTokenRef bool
}

func runStoreContract(t *testing.T, env contractEnv) {
	t.Helper()

	ctx := context.Background()
	st := env.store
	now := time.Now().UTC().Truncate(time.Microsecond)

	row := func(t *testing.T, userID, tokenID string, expiresAt time.Time) Row {
		return Row{
			Fingerprint:   "fp-" + ulid.Make().String(),
			TokenID:       tokenID,
			UserID:        userID,
			StreamName:    "s1",
			ClientIP:      "1.2.3.4",
			Protocol:      "hls",
			StartedAt:     now,
			LastCheckedAt: now,
			ExpiresAt:     expiresAt,
		}
	}

	t.Run("upsert then get", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		r := row(t, user, env.newToken(t, user), now.Add(3*time.Minute))

		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			return tx.Upsert(ctx, r)
		}))

		var got Row
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			var err error
			got, err = tx.Get(ctx, r.Fingerprint)
			return err
		}))
		require.Equal(t, r.UserID, got.UserID)
		require.Equal(t, r.TokenID, got.TokenID)
		require.Equal(t, "hls", got.Protocol)
		require.True(t, got.ExpiresAt.Equal(r.ExpiresAt), "expires_at %v != %v", got.ExpiresAt, r.ExpiresAt)
		require.True(t, got.Live(now))
	})

	t.Run("upsert replaces existing fingerprint", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		r := row(t, user, env.newToken(t, user), now.Add(-time.Minute))
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) }))

		r.ExpiresAt = now.Add(time.Minute)
		r.Protocol = "rtmp"
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) }))

		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			got, err := tx.Get(ctx, r.Fingerprint)
			if err != nil {
				return err
			}
			require.Equal(t, "rtmp", got.Protocol)
			require.True(t, got.ExpiresAt.Equal(r.ExpiresAt))
			return nil
		}))
	})

	t.Run("get and extend missing", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		err := st.Admit(ctx, user, func(tx AdmissionTx) error {
			_, err := tx.Get(ctx, "fp-missing-"+user)
			return err
		})
		require.ErrorIs(t, err, ErrSessionNotFound)

		err = st.Admit(ctx, user, func(tx AdmissionTx) error {
			return tx.Extend(ctx, "fp-missing-"+user, now, now.Add(time.Minute))
		})
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("extend moves expiry", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		r := row(t, user, env.newToken(t, user), now.Add(time.Minute))
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) }))

		later := now.Add(30 * time.Second)
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			return tx.Extend(ctx, r.Fingerprint, later, later.Add(3*time.Minute))
		}))
		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			got, err := tx.Get(ctx, r.Fingerprint)
			if err != nil {
				return err
			}
			require.True(t, got.LastCheckedAt.Equal(later))
			require.True(t, got.ExpiresAt.Equal(later.Add(3*time.Minute)))
			require.True(t, got.StartedAt.Equal(now))
			return nil
		}))
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		r := row(t, user, env.newToken(t, user), now.Add(time.Minute))
		boom := errors.New("boom")

		err := st.Admit(ctx, user, func(tx AdmissionTx) error {
			if err := tx.Upsert(ctx, r); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = st.Admit(ctx, user, func(tx AdmissionTx) error {
			_, err := tx.Get(ctx, r.Fingerprint)
			return err
		})
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("count active", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		other := "u-" + ulid.Make().String()
		tok := env.newToken(t, user)
		otherTok := env.newToken(t, other)

		live1 := row(t, user, tok, now.Add(time.Minute))
		live2 := row(t, user, tok, now.Add(2*time.Minute))
		expired := row(t, user, tok, now.Add(-time.Second))
		atNow := row(t, user, tok, now)
		foreign := row(t, other, otherTok, now.Add(time.Minute))

		for _, r := range []Row{live1, live2, expired, atNow, foreign} {
			r := r
			require.NoError(t, st.Admit(ctx, r.UserID, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) }))
		}

		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			n, err := tx.CountActive(ctx, user, "", now)
			require.NoError(t, err)
			require.Equal(t, 2, n)

			n, err = tx.CountActive(ctx, user, live1.Fingerprint, now)
			require.NoError(t, err)
			require.Equal(t, 1, n)
			return nil
		}))
	})

	t.Run("delete expired", func(t *testing.T) {
		user := "u-" + ulid.Make().String()
		tok := env.newToken(t, user)
		base := now.Add(-time.Hour) // older than any row written by other subtests

		rows := []Row{
			row(t, user, tok, base.Add(-10*time.Second)),
			row(t, user, tok, base.Add(-time.Second)),
			row(t, user, tok, base.Add(10*time.Second)),
		}
		for _, r := range rows {
			r := r
			require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) }))
		}

		n, err := st.DeleteExpired(ctx, base)
		require.NoError(t, err)
		if env.exactSweepCounts {
			require.EqualValues(t, 2, n)
		} else {
			require.GreaterOrEqual(t, n, int64(2))
		}

		n, err = st.DeleteExpired(ctx, base)
		require.NoError(t, err)
		if env.exactSweepCounts {
			require.EqualValues(t, 0, n)
		}

		require.NoError(t, st.Admit(ctx, user, func(tx AdmissionTx) error {
			_, err := tx.Get(ctx, rows[2].Fingerprint)
			require.NoError(t, err)
			_, err = tx.Get(ctx, rows[0].Fingerprint)
			require.ErrorIs(t, err, ErrSessionNotFound)
			return nil
		}))
	})

	t.Run("concurrent admissions respect the limit", func(t *testing.T) {
		const (
			maxSessions = 3
			callers     = 16
		)
		user := "u-" + ulid.Make().String()
		tok := env.newToken(t, user)

		var (
			admitted atomic.Int32
			wg       sync.WaitGroup
			errs     = make(chan error, callers)
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := row(t, user, tok, now.Add(time.Minute))
				r.StreamName = fmt.Sprintf("s%d", i)
				err := st.Admit(ctx, user, func(tx AdmissionTx) error {
					n, err := tx.CountActive(ctx, user, r.Fingerprint, now)
					if err != nil {
						return err
					}
					if n >= maxSessions {
						return nil
					}
					if err := tx.Upsert(ctx, r); err != nil {
						return err
					}
					admitted.Add(1)
					return nil
				})
				if err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.EqualValues(t, maxSessions, admitted.Load())
	})

	if env.enforcesTokenRef {
		t.Run("upsert with deleted token", func(t *testing.T) {
			user := "u-" + ulid.Make().String()
			r := row(t, user, "missing-"+ulid.Make().String(), now.Add(time.Minute))
			err := st.Admit(ctx, user, func(tx AdmissionTx) error { return tx.Upsert(ctx, r) })
			require.ErrorIs(t, err, ErrTokenGone)
		})
	}
}
