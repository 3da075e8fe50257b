package sql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/composition"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/release"
)

// CompositionStore implements composition publish (step 8).
type CompositionStore struct {
	pool *pgxpool.Pool
}

func NewCompositionStore(pool *pgxpool.Pool) *CompositionStore { return &CompositionStore{pool: pool} }

// Publication is one per-map result of the build scan, either a composition
// (hash set, non-nil) or a presence-without-imagery placeholder (hash nil).
type Publication struct {
	MapID     int
	ProductID int64
	Hash      *digest.Digest
	Comp      *composition.Composition
}

// publishBatchSize batches publication writes to avoid exceeding the wire
// buffer: compositions can be large (thousands of tile hashes per level),
// so this is deliberately much smaller than pipeline.BatchSize.
const publishBatchSize = 3

// Publish writes pubs, batched publishBatchSize at a time, preserving the
// ordering guarantee that compositions are inserted before the build_maps
// rows that reference their hash.
func (s *CompositionStore) Publish(ctx context.Context, r release.R, pubs []Publication) error {
	for start := 0; start < len(pubs); start += publishBatchSize {
		end := start + publishBatchSize
		if end > len(pubs) {
			end = len(pubs)
		}
		if err := s.publishBatch(ctx, r, pubs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *CompositionStore) publishBatch(ctx context.Context, r release.R, pubs []Publication) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.WrapFmt(err, "sql: beginning composition publish batch")
	}
	defer tx.Rollback(ctx)

	for _, p := range pubs {
		if p.Hash == nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO build_maps (release, map_id, tiles, composition_hash)
				VALUES ($1, $2, NULL, NULL)
				ON CONFLICT (release, map_id) DO UPDATE SET tiles = NULL, composition_hash = NULL
			`, r.Uint64(), p.MapID); err != nil {
				return errs.WrapFmt(err, "sql: recording presence-without-imagery for map %d", p.MapID)
			}
			continue
		}

		extentsJSON, err := marshalExtents(p.Comp)
		if err != nil {
			return err
		}
		compJSON, err := json.Marshal(serializeComposition(p.Comp))
		if err != nil {
			return errs.WrapFmt(err, "sql: marshalling composition for map %d", p.MapID)
		}
		tiles := p.Comp.TileCount()

		if _, err := tx.Exec(ctx, `
			INSERT INTO compositions (hash, composition, tiles, extents)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (hash) DO NOTHING
		`, p.Hash.Bytes(), compJSON, tiles, extentsJSON); err != nil {
			return errs.WrapFmt(err, "sql: inserting composition for map %d", p.MapID)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO composition_products (composition_hash, product_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, p.Hash.Bytes(), p.ProductID); err != nil {
			return errs.WrapFmt(err, "sql: linking composition to product %d", p.ProductID)
		}

		tiles16 := int16(tiles)
		if _, err := tx.Exec(ctx, `
			INSERT INTO build_maps (release, map_id, tiles, composition_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (release, map_id) DO UPDATE SET tiles = EXCLUDED.tiles, composition_hash = EXCLUDED.composition_hash
		`, r.Uint64(), p.MapID, tiles16, p.Hash.Bytes()); err != nil {
			return errs.WrapFmt(err, "sql: upserting build_map for map %d", p.MapID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.WrapFmt(err, "sql: committing composition publish batch")
	}
	return nil
}

func marshalExtents(c *composition.Composition) ([]byte, error) {
	ext, ok := c.Extents()
	if !ok {
		return nil, nil
	}
	b, err := json.Marshal(ext)
	if err != nil {
		return nil, errs.WrapFmt(err, "sql: marshalling extents")
	}
	return b, nil
}

// serializableComposition is the jsonb rendering of a composition object.
// Coordinates render as "x,y" keys since JSON object keys must be strings.
type serializableComposition struct {
	Levels  map[int]map[string]string `json:"levels"`
	Missing []string                  `json:"missing"`
}

func serializeComposition(c *composition.Composition) serializableComposition {
	out := serializableComposition{Levels: map[int]map[string]string{}}
	for level, entries := range c.Levels {
		m := make(map[string]string, len(entries))
		for coord, hash := range entries {
			m[coordKey(coord)] = hash.Hex()
		}
		out.Levels[level] = m
	}
	for coord := range c.Missing {
		out.Missing = append(out.Missing, coordKey(coord))
	}
	return out
}

func coordKey(c composition.Coord) string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}
