package sql

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// ProductStore persists products and their observed source configs.
type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore { return &ProductStore{pool: pool} }

// UpsertBuild inserts r's build row if absent. Idempotent: the same
// release is re-observed on every poll tick that still reports it.
// Returns whether the row was newly inserted, so the version poller can
// emit a new_build event only once per release.
func (s *ProductStore) UpsertBuild(ctx context.Context, r release.R) (created bool, err error) {
	err = s.pool.QueryRow(ctx, `
		INSERT INTO builds (id, version) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET id = builds.id
		RETURNING xmax = 0
	`, r.Uint64(), r.String()).Scan(&created)
	if err != nil {
		return false, errs.WrapFmt(err, "sql: upserting build %s", r)
	}
	return created, nil
}

// UpsertProduct inserts (release, product) if absent, unioning regions into
// the existing row's region set otherwise. Returns the product's id,
// whether it was newly created, and which of regions were not already
// recorded for this product before the call, so the version poller can
// emit a new_regions event for an existing product without a separate
// read (the single CTE below reads the pre-update row and upserts in one
// round trip, so there is no window for a concurrent writer to race it).
func (s *ProductStore) UpsertProduct(ctx context.Context, r release.R, product string, regions []string) (id int64, created bool, newRegions []string, err error) {
	var beforeRegions []string
	err = s.pool.QueryRow(ctx, `
		WITH before AS (
			SELECT regions FROM products WHERE release = $1 AND product_name = $2
		), upserted AS (
			INSERT INTO products (release, product_name, regions)
			VALUES ($1, $2, $3)
			ON CONFLICT (release, product_name) DO UPDATE SET
				regions = (
					SELECT ARRAY(SELECT DISTINCT unnest(products.regions || EXCLUDED.regions))
				)
			RETURNING id, (xmax = 0) AS created
		)
		SELECT upserted.id, upserted.created, COALESCE(before.regions, '{}')
		FROM upserted LEFT JOIN before ON true
	`, r.Uint64(), product, regions).Scan(&id, &created, &beforeRegions)
	if err != nil {
		return 0, false, nil, errs.WrapFmt(err, "sql: upserting product %s/%s", r, product)
	}

	before := make(map[string]bool, len(beforeRegions))
	for _, reg := range beforeRegions {
		before[reg] = true
	}
	for _, reg := range regions {
		if !before[reg] {
			newRegions = append(newRegions, reg)
		}
	}
	return id, created, newRegions, nil
}

// UpsertSource records a newly observed (build,cdn,product) config triple
// for productID; if the triple is already recorded, regions are unioned
// into its existing region set.
func (s *ProductStore) UpsertSource(ctx context.Context, productID int64, cfgBuild, cfgCDN, cfgProduct string, regions []string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_sources (product_id, config_build, config_cdn, config_product, regions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, config_build, config_cdn, config_product) DO UPDATE SET
			regions = (
				SELECT ARRAY(SELECT DISTINCT unnest(product_sources.regions || EXCLUDED.regions))
			)
	`, productID, cfgBuild, cfgCDN, cfgProduct, regions)
	if err != nil {
		return errs.WrapFmt(err, "sql: upserting source for product %d", productID)
	}
	return nil
}

// LastOracleSequence returns the oracle sequence id recorded at the end of
// the previous poll tick, used for the version poller's advisory
// short-circuit: if the oracle reports no newer sequence than this, the
// tick can skip straight to no-op. ok is false if no tick has ever
// completed.
func (s *ProductStore) LastOracleSequence(ctx context.Context) (seq int, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT sequence_id FROM oracle_state WHERE id`).Scan(&seq)
	if errs.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.WrapFmt(err, "sql: reading last oracle sequence")
	}
	return seq, true, nil
}

// RecordOracleSequence upserts the oracle sequence id observed this tick,
// overwriting whatever the previous tick recorded.
func (s *ProductStore) RecordOracleSequence(ctx context.Context, seq int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle_state (id, sequence_id) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE SET sequence_id = EXCLUDED.sequence_id
	`, seq)
	if err != nil {
		return errs.WrapFmt(err, "sql: recording oracle sequence %d", seq)
	}
	return nil
}

// Sources loads productID's release and every observed source config: the
// Build Scanner's (C3) inputs are a product id and its release R, plus
// every product_sources config recorded for that product.
func (s *ProductStore) Sources(ctx context.Context, productID int64) (r release.R, name string, sources []resolver.SourceConfig, err error) {
	var releaseID int64
	err = s.pool.QueryRow(ctx, `SELECT release, product_name FROM products WHERE id = $1`, productID).Scan(&releaseID, &name)
	if err != nil {
		return 0, "", nil, errs.WrapFmt(err, "sql: reading product %d", productID)
	}
	r = release.FromUint64(uint64(releaseID))

	rows, err := s.pool.Query(ctx, `
		SELECT config_build, config_cdn, config_product FROM product_sources WHERE product_id = $1
		ORDER BY first_seen
	`, productID)
	if err != nil {
		return 0, "", nil, errs.WrapFmt(err, "sql: reading sources for product %d", productID)
	}
	defer rows.Close()

	for rows.Next() {
		var cfg resolver.SourceConfig
		if err := rows.Scan(&cfg.ConfigBuild, &cfg.ConfigCDN, &cfg.ConfigProduct); err != nil {
			return 0, "", nil, errs.WrapFmt(err, "sql: scanning source for product %d", productID)
		}
		cfg.ProductName = name
		sources = append(sources, cfg)
	}
	if err := rows.Err(); err != nil {
		return 0, "", nil, errs.WrapFmt(err, "sql: iterating sources for product %d", productID)
	}
	return r, name, sources, nil
}
