package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/restroom-finder/db"
	"github.com/Clark-Hu/restroom-finder/internal/store"
	"github.com/Clark-Hu/restroom-finder/internal/store/storetest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	pool := storetest.NewPool(t, "store_test")
	ctx := context.Background()

	// storetest already applied everything once.
	applied, err := store.Migrate(ctx, pool, db.Migrations, "migrations", nil)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHealthCheck(t *testing.T) {
	pool := storetest.NewPool(t, "store_health")
	st := store.NewWithPool(pool, nil)
	require.NoError(t, st.HealthCheck(context.Background()))
	assert.NotNil(t, st.Stats())

	var nilStore *store.Store
	assert.Error(t, nilStore.HealthCheck(context.Background()))
}

func TestMigrateMissingDir(t *testing.T) {
	pool := storetest.NewPool(t, "store_missing")
	_, err := store.Migrate(context.Background(), pool, db.Migrations, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migration files")
}
