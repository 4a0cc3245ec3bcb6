package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/openhab-bridge/migrations"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "ctx.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(context.Background()))

	return map[string]store.Store{
		"memory": store.NewMemory(),
		"sqlite": store.NewSQLite(db.DB),
	}
}

func TestStore_Backends(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, store.Global, "missing")
			assert.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, s.Set(ctx, store.Flow("f1"), "Light_state", "ON"))
			require.NoError(t, s.Set(ctx, store.Flow("f2"), "Light_state", "OFF"))
			require.NoError(t, s.Set(ctx, store.Node("n1"), "count", 3.0))

			v, err := s.Get(ctx, store.Flow("f1"), "Light_state")
			require.NoError(t, err)
			assert.Equal(t, "ON", v)

			str, ok := store.GetString(ctx, s, store.Flow("f2"), "Light_state")
			assert.True(t, ok)
			assert.Equal(t, "OFF", str)

			v, err = s.Get(ctx, store.Node("n1"), "count")
			require.NoError(t, err)
			assert.Equal(t, 3.0, v)

			_, ok = store.GetString(ctx, s, store.Node("n1"), "count")
			assert.False(t, ok, "non-string value")

			require.NoError(t, s.Set(ctx, store.Flow("f1"), "Light_state", "OFF"))
			str, _ = store.GetString(ctx, s, store.Flow("f1"), "Light_state")
			assert.Equal(t, "OFF", str)

			require.NoError(t, s.Set(ctx, store.Flow("f1"), "another", "x"))
			keys, err := s.Keys(ctx, store.Flow("f1"))
			require.NoError(t, err)
			assert.Equal(t, []string{"Light_state", "another"}, keys)

			require.NoError(t, s.Delete(ctx, store.Flow("f1"), "another"))
			_, err = s.Get(ctx, store.Flow("f1"), "another")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestScopes(t *testing.T) {
	assert.Equal(t, store.Scope("flow:abc"), store.Flow("abc"))
	assert.Equal(t, store.Scope("node:n1"), store.Node("n1"))
	assert.Equal(t, store.Scope("global"), store.Global)
}
