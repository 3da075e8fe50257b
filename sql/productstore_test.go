package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/sql/sqltest"
)

func TestProductStore_UpsertProduct_UnionsRegionsOnConflict(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	store := NewProductStore(pool)

	r := release.MustPack(1, 11, 2, 58238)
	_, err := store.UpsertBuild(ctx, r)
	require.NoError(t, err)

	id1, created1, newRegions1, err := store.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	assert.True(t, created1)
	assert.Equal(t, []string{"us"}, newRegions1)

	id2, created2, newRegions2, err := store.UpsertProduct(ctx, r, "wow", []string{"eu"})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)
	assert.Equal(t, []string{"eu"}, newRegions2)

	_, _, newRegions3, err := store.UpsertProduct(ctx, r, "wow", []string{"eu"})
	require.NoError(t, err)
	assert.Empty(t, newRegions3)

	var regions []string
	require.NoError(t, pool.QueryRow(ctx, `SELECT regions FROM products WHERE id = $1`, id1).Scan(&regions))
	assert.ElementsMatch(t, []string{"us", "eu"}, regions)
}

func TestProductStore_LastOracleSequence_EmptyReturnsNotOK(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	store := NewProductStore(pool)

	_, ok, err := store.LastOracleSequence(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProductStore_RecordOracleSequence_OverwritesOnEachTick(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	store := NewProductStore(pool)

	require.NoError(t, store.RecordOracleSequence(ctx, 100))
	got, ok, err := store.LastOracleSequence(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, got)

	require.NoError(t, store.RecordOracleSequence(ctx, 101))
	got, ok, err = store.LastOracleSequence(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101, got)
}
