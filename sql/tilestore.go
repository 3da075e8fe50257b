package sql

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/pipeline"
)

// TileStore implements pipeline.TileWriter against the tiles table. It is
// the single consumer of the bounded pipeline.Queue shared by C4 and C5.
type TileStore struct {
	pool *pgxpool.Pool
}

func NewTileStore(pool *pgxpool.Pool) *TileStore { return &TileStore{pool: pool} }

// InsertTileBatch inserts batch, skipping any hash already present. Uses a
// single pgx.Batch round trip regardless of batch size.
func (s *TileStore) InsertTileBatch(ctx context.Context, batch []pipeline.TileWrite) error {
	if len(batch) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, w := range batch {
		b.Queue(`
			INSERT INTO tiles (hash, tile_size) VALUES ($1, $2)
			ON CONFLICT (hash) DO NOTHING
		`, w.Hash.Bytes(), w.TileSize)
	}
	res := s.pool.SendBatch(ctx, b)
	defer res.Close()
	for range batch {
		if _, err := res.Exec(); err != nil {
			return errs.WrapFmt(err, "sql: batch-inserting tiles")
		}
	}
	return nil
}

// ExistingSizes returns the tile_size of every hash in hashes that is
// already present; the difference between hashes and this result is the
// work set for stages C4/C5.
func (s *TileStore) ExistingSizes(ctx context.Context, hashes []digest.Digest) (map[digest.Digest]int16, error) {
	out := make(map[digest.Digest]int16, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	raw := make([][]byte, len(hashes))
	for i, h := range hashes {
		raw[i] = h.Bytes()
	}

	rows, err := s.pool.Query(ctx, `SELECT hash, tile_size FROM tiles WHERE hash = ANY($1)`, raw)
	if err != nil {
		return nil, errs.WrapFmt(err, "sql: querying existing tile sizes")
	}
	defer rows.Close()

	for rows.Next() {
		var hashBytes []byte
		var size int16
		if err := rows.Scan(&hashBytes, &size); err != nil {
			return nil, errs.WrapFmt(err, "sql: scanning existing tile size")
		}
		h, err := digest.FromBytes(hashBytes)
		if err != nil {
			return nil, errs.WrapFmt(err, "sql: parsing tile hash")
		}
		out[h] = size
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapFmt(err, "sql: iterating existing tile sizes")
	}
	return out, nil
}
