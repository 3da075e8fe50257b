package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/digest"
)

func hashFromByte(b byte) digest.Digest {
	var d digest.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func TestHash_DeterministicAcrossInsertionOrder(t *testing.T) {
	hA := hashFromByte(0xAA)
	hB := hashFromByte(0xBB)
	hC := hashFromByte(0xCC)

	c1 := New()
	c1.AddTile(0, Coord{0, 0}, hA)
	c1.AddTile(0, Coord{1, 0}, hB)
	c1.AddTile(1, Coord{0, 0}, hC)
	c1.AddMissing(Coord{2, 2})

	c2 := New()
	c2.AddMissing(Coord{2, 2})
	c2.AddTile(1, Coord{0, 0}, hC)
	c2.AddTile(0, Coord{1, 0}, hB)
	c2.AddTile(0, Coord{0, 0}, hA)

	assert.Equal(t, c1.Hash(), c2.Hash())
}

func TestHash_SensitiveToSingleCoordHashChange(t *testing.T) {
	hA := hashFromByte(0xAA)
	hB := hashFromByte(0xBB)

	base := New()
	base.AddTile(0, Coord{0, 0}, hA)

	changed := New()
	changed.AddTile(0, Coord{0, 0}, hB)

	assert.NotEqual(t, base.Hash(), changed.Hash())
}

func TestHash_SensitiveToMissingSet(t *testing.T) {
	hA := hashFromByte(0xAA)

	base := New()
	base.AddTile(0, Coord{0, 0}, hA)

	withMissing := New()
	withMissing.AddTile(0, Coord{0, 0}, hA)
	withMissing.AddMissing(Coord{1, 1})

	assert.NotEqual(t, base.Hash(), withMissing.Hash())
}

func TestHash_SensitiveToCoordinatePermutation(t *testing.T) {
	// Same hash value, different coordinate assignment, must differ.
	h := hashFromByte(0xAA)

	a := New()
	a.AddTile(0, Coord{0, 0}, h)
	a.AddTile(0, Coord{1, 0}, hashFromByte(0xBB))

	b := New()
	b.AddTile(0, Coord{1, 0}, h)
	b.AddTile(0, Coord{0, 0}, hashFromByte(0xBB))

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHash_LevelIndependence_EmptyLevelIgnored(t *testing.T) {
	h := hashFromByte(0xAA)

	withEmptyLevel := New()
	withEmptyLevel.AddTile(0, Coord{0, 0}, h)
	withEmptyLevel.Levels[3] = Level{} // present but empty

	withoutLevel := New()
	withoutLevel.AddTile(0, Coord{0, 0}, h)

	assert.Equal(t, withoutLevel.Hash(), withEmptyLevel.Hash())
}

func TestScenario1_TwoSingleTileMaps(t *testing.T) {
	tileA, err := digest.FromHex("deadbeef000000000000000000000000")
	require.NoError(t, err)
	tileB, err := digest.FromHex("cafebabe000000000000000000000000")
	require.NoError(t, err)

	compA := New()
	compA.AddTile(0, Coord{0, 0}, tileA)

	compB := New()
	compB.AddTile(0, Coord{0, 0}, tileB)

	assert.NotEqual(t, compA.Hash(), compB.Hash())
	assert.Equal(t, 1, compA.TileCount())
	assert.Equal(t, 1, compB.TileCount())
	assert.Empty(t, compA.Missing)
}

func TestScenario2_FourEqualTilesL0AndL1(t *testing.T) {
	h := hashFromByte(0x42)

	c := New()
	for _, co := range []Coord{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		c.AddTile(0, co, h)
	}

	// Row-major order (ty outer, tx inner): (0,0),(1,0),(0,1),(1,1).
	concat := append(append(append(append([]byte{}, h[:]...), h[:]...), h[:]...), h[:]...)
	lodHash := digest.Sum(concat)

	c.AddTile(1, Coord{0, 0}, lodHash)

	assert.Len(t, c.Levels[0], 4)
	assert.Len(t, c.Levels[1], 1)
	assert.Equal(t, lodHash, c.Levels[1][Coord{0, 0}])
}

func TestScenario3_MissingTileInLOD1Block(t *testing.T) {
	h00 := hashFromByte(0x01)
	h10 := hashFromByte(0x02)
	h01 := hashFromByte(0x03)
	zero := digest.Zero()

	concat := append(append(append(append([]byte{}, h00[:]...), h10[:]...), h01[:]...), zero[:]...)
	want := digest.Sum(concat)

	c := New()
	c.AddTile(0, Coord{0, 0}, h00)
	c.AddTile(0, Coord{1, 0}, h10)
	c.AddTile(0, Coord{0, 1}, h01)
	c.AddMissing(Coord{1, 1})
	c.AddTile(1, Coord{0, 0}, want)

	assert.Equal(t, want, c.Levels[1][Coord{0, 0}])
}

func TestExtents_NoCells(t *testing.T) {
	c := New()
	_, ok := c.Extents()
	assert.False(t, ok)
}

func TestExtents_ComputesBoundingBoxPlusOne(t *testing.T) {
	c := New()
	h := hashFromByte(0x01)
	c.AddTile(0, Coord{2, 3}, h)
	c.AddTile(0, Coord{5, 1}, h)
	c.AddMissing(Coord{6, 0})

	ext, ok := c.Extents()
	require.True(t, ok)
	assert.Equal(t, Extents{MinX: 2, MinY: 0, MaxX: 7, MaxY: 4}, ext)
}
