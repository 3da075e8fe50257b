package buildscan

import (
	"context"

	"github.com/jimbomcb/wow-minimaps/composition"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/lod"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// extractMap runs step 4 for a single map: resolve its WDT,
// parse the minimap-tile grid, look up each entry's content key, and fold
// the resulting composition into the shared LOD builder. Returns the
// content-hash -> file-id map this map contributed, for step 6's fetch
// phase.
func (s *Scanner) extractMap(ctx context.Context, fs resolver.Filesystem, r release.R, row resolver.MapDatabaseRow, builder *lod.Builder) (mapResult, map[digest.Digest]uint32, error) {
	wdtFileID, ok, err := s.resolveWdtFileID(ctx, r, row)
	if err != nil {
		return mapResult{}, nil, err
	}
	if !ok || wdtFileID == 0 {
		return mapResult{mapID: row.ID, noContent: true}, nil, nil
	}

	stream, err := resolver.OpenFile(ctx, fs, wdtFileID, false)
	if err != nil {
		if kr, ok := resolver.AsKeyRequired(err); ok {
			return mapResult{mapID: row.ID, encryptedKeys: map[string]bool{kr.Name: true}}, nil, nil
		}
		return mapResult{}, nil, errs.WrapFmt(err, "buildscan: opening WDT %d for map %d", wdtFileID, row.ID)
	}
	defer stream.Close()

	entries, err := ParseMAID(stream)
	if err != nil {
		// No MAID chunk (or an empty one) means this map has no minimap
		// imagery to extract — recorded as presence-without-imagery, not a
		// scan failure.
		return mapResult{mapID: row.ID, noContent: true}, nil, nil
	}
	if len(entries) == 0 {
		return mapResult{mapID: row.ID, noContent: true}, nil, nil
	}

	comp := composition.New()
	hashToFileID := map[digest.Digest]uint32{}
	for _, e := range entries {
		coord := composition.Coord{X: e.X, Y: e.Y}
		hash, ok, err := fs.ContentKeyForFileID(ctx, e.FileID)
		if err != nil {
			return mapResult{}, nil, errs.WrapFmt(err, "buildscan: resolving content key for file id %d", e.FileID)
		}
		if !ok {
			comp.AddMissing(coord)
			continue
		}
		comp.AddTile(0, coord, hash)
		hashToFileID[hash] = e.FileID
	}

	if err := builder.BuildForMap(comp, s.levels); err != nil {
		return mapResult{}, nil, errs.WrapFmt(err, "buildscan: building LOD hierarchy for map %d", row.ID)
	}

	return mapResult{mapID: row.ID, comp: comp}, hashToFileID, nil
}
