// Package schema defines the row types and DDL: one Go struct per table,
// plus the literal CREATE TABLE statements cmd/atlas-schema applies.
package schema

import "time"

// ScanState is the enum for the scans table's state column.
type ScanState string

const (
	ScanPending               ScanState = "pending"
	ScanFullDecrypt           ScanState = "full_decrypt"
	ScanEncryptedBuild        ScanState = "encrypted_build"
	ScanEncryptedMapDatabase  ScanState = "encrypted_map_database"
	ScanPartialDecrypt        ScanState = "partial_decrypt"
	ScanException             ScanState = "exception"
)

// BuildRow is the builds table: one row per discovered release.
type BuildRow struct {
	ID      int64 // packed release.R
	Version string
}

// ProductRow is the products table.
type ProductRow struct {
	ID        int64
	Release   int64
	Product   string
	Regions   []string
}

// ProductSourceRow is the product_sources table.
type ProductSourceRow struct {
	ProductID     int64
	ConfigBuild   string
	ConfigCDN     string
	ConfigProduct string
	Regions       []string
	FirstSeen     time.Time
}

// ScanRow is the scans table.
type ScanRow struct {
	ProductID      int64
	State          ScanState
	LastScanned    *time.Time
	ScanTime       *time.Duration
	Exception      *string
	EncryptedKey   *string
	EncryptedMaps  map[string][]int // key name -> map ids, JSON column
}

// MapRow is the maps table.
type MapRow struct {
	ID          int
	JSON        []byte
	Directory   string
	Name        string
	NameHistory map[int64]string // release -> name
	FirstVersion int64
	LastVersion  int64
}

// BuildMapRow is the build_maps table.
type BuildMapRow struct {
	Release          int64
	MapID            int
	Tiles            *int16
	CompositionHash  []byte // 16 bytes, nullable
}

// TileRow is the tiles table.
type TileRow struct {
	Hash      [16]byte
	TileSize  int16
	FirstSeen time.Time
}

// CompositionRow is the compositions table.
type CompositionRow struct {
	Hash        [16]byte
	Composition []byte // jsonb
	Tiles       int16
	Extents     []byte // jsonb, nullable
}

// CompositionProductLinkRow is the (composition_hash, product_id) link
// table.
type CompositionProductLinkRow struct {
	CompositionHash [16]byte
	ProductID       int64
}

// EventRow is the events table backing the event log's persistence.
type EventRow struct {
	ID        string // uuid
	Kind      string
	At        time.Time
	ProductID int64
	Detail    string
}

// OracleStateRow is the oracle_state table: a singleton row recording the
// upstream oracle's own sequence id as of the last completed poll tick, so
// the next tick's advisory short-circuit compares oracle state against
// oracle state rather than against an unrelated release field.
type OracleStateRow struct {
	SequenceID int64
}

// EncodeBuildVersionFunc backs the builds table's check constraint below.
// Implemented as a SQL function rather than in Go so the constraint holds
// regardless of which process inserted the row; must be applied before
// DDL, which references it.
const EncodeBuildVersionFunc = `
CREATE OR REPLACE FUNCTION encode_build_version(version TEXT) RETURNS BIGINT AS $$
	SELECT (
		(split_part(version, '.', 1)::BIGINT << 52) |
		(split_part(version, '.', 2)::BIGINT << 42) |
		(split_part(version, '.', 3)::BIGINT << 32) |
		split_part(version, '.', 4)::BIGINT
	)
$$ LANGUAGE SQL IMMUTABLE;
`

// DecodeBuildVersionFunc is EncodeBuildVersionFunc's inverse, exposed for
// ad-hoc SQL queries/reports that need a human-readable version string
// without round-tripping through Go (release.R.String() is the
// authoritative Go-side inverse; this mirrors it in SQL).
const DecodeBuildVersionFunc = `
CREATE OR REPLACE FUNCTION decode_build_version(id BIGINT) RETURNS TEXT AS $$
	SELECT
		((id >> 52) & 2047)::TEXT || '.' ||
		((id >> 42) & 1023)::TEXT || '.' ||
		((id >> 32) & 1023)::TEXT || '.' ||
		(id & 4294967295)::TEXT
$$ LANGUAGE SQL IMMUTABLE;
`

// DDL is the full set of CREATE TABLE statements, applied verbatim by
// cmd/atlas-schema. This intentionally hand-writes DDL rather than
// generating it from the Go structs above: the stored functions the
// tables' check constraints reference have no Go-struct analogue.
const DDL = `
CREATE TABLE IF NOT EXISTS builds (
	id BIGINT PRIMARY KEY,
	version TEXT NOT NULL,
	CONSTRAINT builds_version_matches_id CHECK (encode_build_version(version) = id)
);

CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	release BIGINT NOT NULL REFERENCES builds(id),
	product_name TEXT NOT NULL,
	regions TEXT[] NOT NULL DEFAULT '{}',
	UNIQUE (release, product_name)
);

CREATE TABLE IF NOT EXISTS product_sources (
	product_id BIGINT NOT NULL REFERENCES products(id),
	config_build TEXT NOT NULL,
	config_cdn TEXT NOT NULL,
	config_product TEXT NOT NULL,
	regions TEXT[] NOT NULL DEFAULT '{}',
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_id, config_build, config_cdn, config_product)
);

CREATE TABLE IF NOT EXISTS scans (
	product_id BIGINT PRIMARY KEY REFERENCES products(id),
	state TEXT NOT NULL DEFAULT 'pending',
	last_scanned TIMESTAMPTZ,
	scan_time_ms BIGINT,
	exception TEXT,
	encrypted_key TEXT,
	encrypted_maps JSONB
);

CREATE TABLE IF NOT EXISTS maps (
	id INT PRIMARY KEY,
	json JSONB NOT NULL,
	directory TEXT NOT NULL,
	name TEXT NOT NULL,
	name_history JSONB NOT NULL DEFAULT '{}',
	first_version BIGINT NOT NULL,
	last_version BIGINT NOT NULL,
	parent INT GENERATED ALWAYS AS (
		COALESCE((json->>'CosmeticParentMapID')::int, (json->>'ParentMapID')::int)
	) STORED
);

CREATE TABLE IF NOT EXISTS tiles (
	hash BYTEA PRIMARY KEY,
	tile_size SMALLINT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS compositions (
	hash BYTEA PRIMARY KEY,
	composition JSONB NOT NULL,
	tiles SMALLINT NOT NULL,
	extents JSONB
);

CREATE TABLE IF NOT EXISTS composition_products (
	composition_hash BYTEA NOT NULL REFERENCES compositions(hash),
	product_id BIGINT NOT NULL REFERENCES products(id),
	PRIMARY KEY (composition_hash, product_id)
);

CREATE TABLE IF NOT EXISTS build_maps (
	release BIGINT NOT NULL REFERENCES builds(id),
	map_id INT NOT NULL REFERENCES maps(id),
	tiles SMALLINT,
	composition_hash BYTEA REFERENCES compositions(hash),
	PRIMARY KEY (release, map_id)
);

CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	at TIMESTAMPTZ NOT NULL DEFAULT now(),
	product_id BIGINT,
	detail TEXT
);

CREATE TABLE IF NOT EXISTS oracle_state (
	id BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
	sequence_id BIGINT NOT NULL
);
`
