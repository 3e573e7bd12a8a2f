package session

import (
	"testing"

	"flussauth/cmd/identity"
	"flussauth/cmd/internal/db/dbtest"

	"github.com/stretchr/testify/require"
)

// Integration tests run against FLUSSAUTH_TEST_DATABASE_URL or a dockertest container.
func TestPostgresStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	pool := dbtest.Postgres(t)
	st, err := NewPostgresStore(pool)
	require.NoError(t, err)

	tokens, err := identity.NewPostgresStore(pool)
	require.NoError(t, err)

	runStoreContract(t, contractEnv{
		store:            st,
		newToken:         tokenSeeder(tokens),
		exactSweepCounts: false,
		enforcesTokenRef: true,
	})
}

func TestNewPostgresStore_Options(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStore(nil)
	require.Error(t, err)

	_, err = NewPostgresStore(nil, WithSchema("x;drop"))
	require.Error(t, err)
}
