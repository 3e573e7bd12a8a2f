package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"flussauth/cmd/internal/db/dbtest"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func sampleEntry(result Result, reason string) Entry {
	return Entry{
		ID:         ulid.Make().String(),
		OccurredAt: time.Now().UTC(),
		Token:      "abc",
		UserID:     "u1",
		StreamName: "s1",
		ClientIP:   "1.2.3.4",
		Protocol:   "hls",
		Result:     result,
		Reason:     reason,
	}
}

func TestMemorySink_BoundedOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemorySink(2)
	ctx := context.Background()
	for _, reason := range []string{"a", "b", "c"} {
		if err := s.Write(ctx, sampleEntry(ResultAllowed, reason)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got := s.Entries()
	if len(got) != 2 || got[0].Reason != "b" || got[1].Reason != "c" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, Entry) error { return f.err }

func TestTee_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a, b := NewMemorySink(0), NewMemorySink(0)
	tee := Tee{a, failingSink{err: boom}, nil, b}

	err := tee.Write(context.Background(), sampleEntry(ResultDenied, "token_not_found"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.Entries()) != 1 || len(b.Entries()) != 1 {
		t.Fatalf("every healthy sink must receive the entry")
	}

	if err := (Tee{a, b}).Write(context.Background(), sampleEntry(ResultAllowed, "new_session")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSQLiteSink_Write(t *testing.T) {
	t.Parallel()

	sqlDB := dbtest.SQLite(t)
	s, err := NewSQLiteSink(sqlDB)
	require.NoError(t, err)

	ctx := context.Background()
	e := sampleEntry(ResultDenied, "max_sessions_reached")
	e.Detail = "1/1"
	require.NoError(t, s.Write(ctx, e))

	anon := sampleEntry(ResultDenied, "token_not_found")
	anon.UserID = ""
	require.NoError(t, s.Write(ctx, anon))

	var (
		reason string
		detail *string
		userID *string
	)
	require.NoError(t, sqlDB.QueryRowContext(ctx,
		`SELECT reason, detail, user_id FROM access_logs WHERE id = ?`, e.ID,
	).Scan(&reason, &detail, &userID))
	require.Equal(t, "max_sessions_reached", reason)
	require.NotNil(t, detail)
	require.Equal(t, "1/1", *detail)

	require.NoError(t, sqlDB.QueryRowContext(ctx,
		`SELECT user_id FROM access_logs WHERE id = ?`, anon.ID,
	).Scan(&userID))
	require.Nil(t, userID)

	bad := sampleEntry("maybe", "x")
	require.Error(t, s.Write(ctx, bad), "result check constraint")
}

func TestPostgresSink_Write(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	pool := dbtest.Postgres(t)
	s, err := NewPostgresSink(pool, "")
	require.NoError(t, err)

	ctx := context.Background()
	e := sampleEntry(ResultAllowed, "new_session")
	require.NoError(t, s.Write(ctx, e))

	var result string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT result FROM flussauth.access_logs WHERE id = $1`, e.ID,
	).Scan(&result))
	require.Equal(t, "allowed", result)
}
