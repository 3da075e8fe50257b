package sql

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// MapStore persists the map catalogue with
// last-writer-wins-by-release semantics.
type MapStore struct {
	pool *pgxpool.Pool
}

func NewMapStore(pool *pgxpool.Pool) *MapStore { return &MapStore{pool: pool} }

// Upsert records row as observed at release r. If a map with this id
// already exists, its name/meta fields are overwritten only if r is newer
// than every release this map has previously been observed at; name_history
// always gains an entry for r regardless. The whole thing is one
// INSERT ... ON CONFLICT statement so two scans racing on the same map id
// can never interleave a read-then-write and let an older release clobber
// a newer one: Postgres/CockroachDB serialize conflicting upserts on the
// same row at the storage layer, so there is no read to go stale.
func (s *MapStore) Upsert(ctx context.Context, r release.R, row resolver.MapDatabaseRow) error {
	rv := int64(r.Uint64())
	history, _ := json.Marshal(map[int64]string{rv: row.Name})

	_, err := s.pool.Exec(ctx, `
		INSERT INTO maps (id, json, directory, name, name_history, first_version, last_version)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			json = CASE WHEN $6 > maps.last_version THEN EXCLUDED.json ELSE maps.json END,
			directory = CASE WHEN $6 > maps.last_version THEN EXCLUDED.directory ELSE maps.directory END,
			name = CASE WHEN $6 > maps.last_version THEN EXCLUDED.name ELSE maps.name END,
			name_history = maps.name_history || EXCLUDED.name_history,
			first_version = LEAST(maps.first_version, EXCLUDED.first_version),
			last_version = GREATEST(maps.last_version, EXCLUDED.last_version)
	`, row.ID, row.RawJSON, row.Directory, row.Name, history, rv)
	if err != nil {
		return errs.WrapFmt(err, "sql: upserting map %d", row.ID)
	}
	return nil
}

// UpsertBuildMap records that map_id appears in release r, with the given
// tile count and composition hash once C3/C4/C5 have finished for it.
func (s *MapStore) UpsertBuildMap(ctx context.Context, r release.R, mapID int, tiles *int16, compositionHash []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO build_maps (release, map_id, tiles, composition_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (release, map_id) DO UPDATE SET
			tiles = EXCLUDED.tiles,
			composition_hash = EXCLUDED.composition_hash
	`, r.Uint64(), mapID, tiles, compositionHash)
	if err != nil {
		return errs.WrapFmt(err, "sql: upserting build_map (%s, %d)", r, mapID)
	}
	return nil
}
