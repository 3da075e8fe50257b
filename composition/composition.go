// Package composition implements the per-map composition object and its
// deterministic, order-independent hash.
package composition

import (
	"crypto/md5"
	"encoding/binary"
	"sort"

	"github.com/jimbomcb/wow-minimaps/digest"
)

// Coord is a signed tile grid coordinate. The game constrains it to
// [0,63]x[0,63] but the type itself must not assume that range.
type Coord struct {
	X, Y int16
}

// Less gives the (x,y) primary-x ordering requires when
// serializing a level's entries.
func (c Coord) Less(other Coord) bool {
	if c.X != other.X {
		return c.X < other.X
	}
	return c.Y < other.Y
}

// Level is one LOD level's tile map: coordinate to content hash. At L0
// this is the hash of the raw tile at that cell; at L>0 it is the LOD
// tile hash computed by the lod package.
type Level map[Coord]digest.Digest

// Composition is the tuple defines: per-level tile maps, the
// set of missing L0 coordinates, and an optional tile size.
type Composition struct {
	Levels   map[int]Level
	Missing  map[Coord]struct{}
	TileSize *int16
}

// New returns an empty composition ready to be populated.
func New() *Composition {
	return &Composition{
		Levels:  map[int]Level{},
		Missing: map[Coord]struct{}{},
	}
}

// AddTile records a content hash at (level, coord), creating the level map
// if needed.
func (c *Composition) AddTile(level int, coord Coord, hash digest.Digest) {
	l, ok := c.Levels[level]
	if !ok {
		l = Level{}
		c.Levels[level] = l
	}
	l[coord] = hash
}

// AddMissing records an L0 coordinate that has no tile content.
func (c *Composition) AddMissing(coord Coord) {
	c.Missing[coord] = struct{}{}
}

// sortedLevels returns the levels present in ascending order, skipping any
// level whose map is empty — "Level independence": the
// composition hash must not depend on the presence of an empty level.
func (c *Composition) sortedLevels() []int {
	levels := make([]int, 0, len(c.Levels))
	for l, entries := range c.Levels {
		if len(entries) > 0 {
			levels = append(levels, l)
		}
	}
	sort.Ints(levels)
	return levels
}

func (c *Composition) sortedMissing() []Coord {
	coords := make([]Coord, 0, len(c.Missing))
	for co := range c.Missing {
		coords = append(coords, co)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords
}

// Hash computes the deterministic, order-independent 128-bit composition
// hash described in: for each non-empty level in ascending
// order, emit the level byte, a u32-LE entry count, then each (x,y,hash)
// entry sorted by (x,y); finally emit the missing-coordinate set the same
// way, preceded by its own u32-LE count.
func (c *Composition) Hash() digest.Digest {
	h := md5.New()
	var u32 [4]byte
	var i32 [4]byte

	for _, level := range c.sortedLevels() {
		entries := c.Levels[level]
		h.Write([]byte{byte(level)})

		coords := make([]Coord, 0, len(entries))
		for co := range entries {
			coords = append(coords, co)
		}
		sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

		binary.LittleEndian.PutUint32(u32[:], uint32(len(coords)))
		h.Write(u32[:])

		for _, co := range coords {
			binary.LittleEndian.PutUint32(i32[:], uint32(int32(co.X)))
			h.Write(i32[:])
			binary.LittleEndian.PutUint32(i32[:], uint32(int32(co.Y)))
			h.Write(i32[:])
			hash := entries[co]
			h.Write(hash[:])
		}
	}

	missing := c.sortedMissing()
	binary.LittleEndian.PutUint32(u32[:], uint32(len(missing)))
	h.Write(u32[:])
	for _, co := range missing {
		binary.LittleEndian.PutUint32(i32[:], uint32(int32(co.X)))
		h.Write(i32[:])
		binary.LittleEndian.PutUint32(i32[:], uint32(int32(co.Y)))
		h.Write(i32[:])
	}

	var out digest.Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Extents is the bounding box over L0 occupied cells plus missing cells,
//: min is the component-wise minimum, max is the
// component-wise maximum plus (1,1) so max-min gives (width,height).
type Extents struct {
	MinX, MinY int16
	MaxX, MaxY int16
}

// Extents computes the bounding box, or returns (Extents{}, false) if the
// composition has no L0 cells and no missing cells at all.
func (c *Composition) Extents() (Extents, bool) {
	var (
		minX, minY, maxX, maxY int16
		any                    bool
	)
	consider := func(co Coord) {
		if !any {
			minX, minY, maxX, maxY = co.X, co.Y, co.X, co.Y
			any = true
			return
		}
		if co.X < minX {
			minX = co.X
		}
		if co.Y < minY {
			minY = co.Y
		}
		if co.X > maxX {
			maxX = co.X
		}
		if co.Y > maxY {
			maxY = co.Y
		}
	}
	if l0, ok := c.Levels[0]; ok {
		for co := range l0 {
			consider(co)
		}
	}
	for co := range c.Missing {
		consider(co)
	}
	if !any {
		return Extents{}, false
	}
	return Extents{MinX: minX, MinY: minY, MaxX: maxX + 1, MaxY: maxY + 1}, true
}

// TileCount returns the number of L0 tiles present, used to populate the
// build_maps.tiles column.
func (c *Composition) TileCount() int {
	return len(c.Levels[0])
}
