package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
	"github.com/jimbomcb/wow-minimaps/sql/sqltest"
)

func TestMapStore_Upsert_NewerReleaseWinsName(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	store := NewMapStore(pool)

	older := release.MustPack(1, 10, 0, 1)
	newer := release.MustPack(1, 11, 0, 2)

	require.NoError(t, store.Upsert(ctx, older, resolver.MapDatabaseRow{ID: 0, Name: "OldName", Directory: "dir", RawJSON: []byte(`{}`)}))
	require.NoError(t, store.Upsert(ctx, newer, resolver.MapDatabaseRow{ID: 0, Name: "NewName", Directory: "dir", RawJSON: []byte(`{}`)}))

	var name string
	require.NoError(t, pool.QueryRow(ctx, `SELECT name FROM maps WHERE id = 0`).Scan(&name))
	assert.Equal(t, "NewName", name)
}

func TestMapStore_Upsert_OlderRescanDoesNotOverwriteName(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	store := NewMapStore(pool)

	older := release.MustPack(1, 10, 0, 1)
	newer := release.MustPack(1, 11, 0, 2)

	require.NoError(t, store.Upsert(ctx, newer, resolver.MapDatabaseRow{ID: 0, Name: "NewName", Directory: "dir", RawJSON: []byte(`{}`)}))
	require.NoError(t, store.Upsert(ctx, older, resolver.MapDatabaseRow{ID: 0, Name: "BackfilledOldName", Directory: "dir", RawJSON: []byte(`{}`)}))

	var name string
	var firstVersion int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT name, first_version FROM maps WHERE id = 0`).Scan(&name, &firstVersion))
	assert.Equal(t, "NewName", name)
	assert.EqualValues(t, older.Uint64(), firstVersion)
}

func TestMapStore_UpsertBuildMap(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	maps := NewMapStore(pool)

	r := release.MustPack(1, 11, 0, 2)
	_, err := NewProductStore(pool).UpsertBuild(ctx, r)
	require.NoError(t, err)
	require.NoError(t, maps.Upsert(ctx, r, resolver.MapDatabaseRow{ID: 0, Name: "Azeroth", Directory: "dir", RawJSON: []byte(`{}`)}))

	tiles := int16(42)
	require.NoError(t, maps.UpsertBuildMap(ctx, r, 0, &tiles, []byte{1, 2, 3}))

	var got int16
	require.NoError(t, pool.QueryRow(ctx, `SELECT tiles FROM build_maps WHERE release = $1 AND map_id = 0`, r.Uint64()).Scan(&got))
	assert.Equal(t, tiles, got)
}
