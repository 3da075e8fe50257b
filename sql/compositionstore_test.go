package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/composition"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
	"github.com/jimbomcb/wow-minimaps/sql/sqltest"
)

func TestCompositionStore_Publish_InsertsCompositionAndBuildMap(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)

	r := release.MustPack(1, 11, 0, 2)
	products := NewProductStore(pool)
	maps := NewMapStore(pool)
	comps := NewCompositionStore(pool)

	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	require.NoError(t, maps.Upsert(ctx, r, resolver.MapDatabaseRow{ID: 0, Name: "Azeroth", Directory: "dir", RawJSON: []byte(`{}`)}))
	require.NoError(t, maps.Upsert(ctx, r, resolver.MapDatabaseRow{ID: 1, Name: "Kalimdor", Directory: "dir", RawJSON: []byte(`{}`)}))

	comp := composition.New()
	comp.AddTile(0, composition.Coord{X: 0, Y: 0}, digest.Sum([]byte("tile")))
	hash := comp.Hash()

	pubs := []Publication{
		{MapID: 0, ProductID: productID, Hash: &hash, Comp: comp},
		{MapID: 1, ProductID: productID, Hash: nil},
	}
	require.NoError(t, comps.Publish(ctx, r, pubs))

	var tiles int
	require.NoError(t, pool.QueryRow(ctx, `SELECT tiles FROM compositions WHERE hash = $1`, hash.Bytes()).Scan(&tiles))
	assert.Equal(t, 1, tiles)

	var linked int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM composition_products WHERE composition_hash = $1 AND product_id = $2`, hash.Bytes(), productID).Scan(&linked))
	assert.Equal(t, 1, linked)

	var bmTiles *int16
	var bmHash []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT tiles, composition_hash FROM build_maps WHERE release = $1 AND map_id = 0`, r.Uint64()).Scan(&bmTiles, &bmHash))
	require.NotNil(t, bmTiles)
	assert.EqualValues(t, 1, *bmTiles)
	assert.Equal(t, hash.Bytes(), bmHash)

	var presenceTiles *int16
	require.NoError(t, pool.QueryRow(ctx, `SELECT tiles FROM build_maps WHERE release = $1 AND map_id = 1`, r.Uint64()).Scan(&presenceTiles))
	assert.Nil(t, presenceTiles)
}

func TestCompositionStore_Publish_BatchesInGroupsOfThree(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)

	r := release.MustPack(1, 11, 0, 2)
	products := NewProductStore(pool)
	maps := NewMapStore(pool)
	comps := NewCompositionStore(pool)
	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)

	var pubs []Publication
	for i := 0; i < 7; i++ {
		require.NoError(t, maps.Upsert(ctx, r, resolver.MapDatabaseRow{ID: i, Name: "map", Directory: "dir", RawJSON: []byte(`{}`)}))
		pubs = append(pubs, Publication{MapID: i, ProductID: productID, Hash: nil})
	}
	require.NoError(t, comps.Publish(ctx, r, pubs))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM build_maps WHERE release = $1`, r.Uint64()).Scan(&count))
	assert.Equal(t, 7, count)
}
