// Package lod builds the multi-level LOD tile hierarchy from a map's
// base-level (L0) tile grid, and (in synth.go) synthesizes the actual LOD
// tile images for C5.
package lod

import (
	"sort"

	"github.com/jimbomcb/wow-minimaps/composition"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
)

// GridSize is the fixed 64x64 base-tile grid every map's WDT addresses.
const GridSize = 64

// Component describes one entry in a LOD tile's component list: either the
// content hash of a present base tile, or the zero digest for a missing
// one. Present distinguishes a genuinely-zero hash (theoretically
// possible) from a missing entry, though in practice content hashes of
// real tile bytes never collide with the all-zero placeholder.
type Component struct {
	Hash    digest.Digest
	Present bool
}

// TileEntry ties a LOD tile hash to the level it was built at and its
// ordered component list, the value half of the map calls
// "lod_tile_hash -> (level, component_list)".
type TileEntry struct {
	Level      int
	Components []Component
}

// Hierarchy is the result of building every configured level above L0 for
// one map: a global lod_tile_hash -> TileEntry table (deduplicated across
// the whole scan, not just this map — see Builder) plus, for each level,
// the (X,Y) block origin -> lod_tile_hash map to fold into a
// composition.Composition.
type Hierarchy struct {
	// Levels[level][Coord{X,Y}] = lod tile hash, one entry per non-empty block.
	Levels map[int]map[composition.Coord]digest.Digest
}

// Builder accumulates the global lod_tile_hash -> TileEntry table across
// every map processed in one scan. It is safe for concurrent use by the
// bounded per-map parallel loop of step 4.
type Builder struct {
	mu      chan struct{} // 1-buffered mutex; avoids importing sync for a single critical section
	entries map[digest.Digest]TileEntry
}

// NewBuilder returns an empty, concurrency-safe hierarchy builder.
func NewBuilder() *Builder {
	b := &Builder{
		mu:      make(chan struct{}, 1),
		entries: map[digest.Digest]TileEntry{},
	}
	b.mu <- struct{}{}
	return b
}

func (b *Builder) lock()   { <-b.mu }
func (b *Builder) unlock() { b.mu <- struct{}{} }

// Entries returns a snapshot of the global lod_tile_hash table.
func (b *Builder) Entries() map[digest.Digest]TileEntry {
	b.lock()
	defer b.unlock()
	out := make(map[digest.Digest]TileEntry, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

// BuildForMap constructs every configured level above L0 for one map's L0
// grid and folds the resulting lod_tile_hash entries into the shared
// Builder and the per-map composition. levels must be a subset of
// {1..6}; L0 itself is assumed already present in comp.
func (b *Builder) BuildForMap(comp *composition.Composition, levels []int) error {
	l0 := comp.Levels[0]

	sortedLevels := append([]int(nil), levels...)
	sort.Ints(sortedLevels)

	for _, level := range sortedLevels {
		if level < 1 || level > 6 {
			return errs.Fmt("lod: level %d outside supported range [1,6]", level)
		}
		f := 1 << uint(level)
		if GridSize%f != 0 {
			return errs.Fmt("lod: stride %d does not evenly divide grid size %d", f, GridSize)
		}

		for X := int16(0); int(X) <= GridSize-f; X += int16(f) {
			for Y := int16(0); int(Y) <= GridSize-f; Y += int16(f) {
				components := make([]Component, 0, f*f)
				any := false
				for ty := 0; ty < f; ty++ {
					for tx := 0; tx < f; tx++ {
						coord := composition.Coord{X: X + int16(tx), Y: Y + int16(ty)}
						if h, ok := l0[coord]; ok {
							components = append(components, Component{Hash: h, Present: true})
							any = true
						} else {
							components = append(components, Component{})
						}
					}
				}
				if !any {
					continue
				}

				hash := hashComponents(components)
				if err := b.record(hash, level, components); err != nil {
					return err
				}
				comp.AddTile(level, composition.Coord{X: X, Y: Y}, hash)
			}
		}
	}
	return nil
}

func hashComponents(components []Component) digest.Digest {
	buf := make([]byte, 0, len(components)*digest.Size)
	for _, c := range components {
		if c.Present {
			buf = append(buf, c.Hash.Bytes()...)
		} else {
			var z digest.Digest
			buf = append(buf, z.Bytes()...)
		}
	}
	return digest.Sum(buf)
}

// record folds a newly-computed lod_tile_hash into the global table. If the
// hash already exists, its component list MUST match exactly; a mismatch is a data integrity fault that must fail the scan
// loudly rather than silently keep the stale entry.
func (b *Builder) record(hash digest.Digest, level int, components []Component) error {
	b.lock()
	defer b.unlock()

	existing, ok := b.entries[hash]
	if !ok {
		b.entries[hash] = TileEntry{Level: level, Components: components}
		return nil
	}
	if existing.Level != level || !sameComponents(existing.Components, components) {
		return errs.Fmt("lod: hash collision on %s: existing component list at level %d differs from new list at level %d", hash.Hex(), existing.Level, level)
	}
	return nil
}

func sameComponents(a, b []Component) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Present != b[i].Present || a[i].Hash != b[i].Hash {
			return false
		}
	}
	return true
}
