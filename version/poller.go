// Package version implements the Version Poller (C1): the periodic job
// that reconciles the upstream oracle's reported releases into the
// relational store and enqueues scans for new products.
package version

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jimbomcb/wow-minimaps/config"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/eventlog"
	"github.com/jimbomcb/wow-minimaps/obslog"
	"github.com/jimbomcb/wow-minimaps/oracle"
	"github.com/jimbomcb/wow-minimaps/release"
)

// Oracle is the narrow collaborator this package needs from oracle.Client,
// named so tests can fake it without standing up an HTTP server.
type Oracle interface {
	Summary(ctx context.Context) (oracle.Summary, error)
	Versions(ctx context.Context, product string) ([]oracle.VersionRow, error)
}

// Store is the narrow persistence surface C1 needs, satisfied by
// sql.ProductStore/sql.ScanStore composed together; kept as an interface so
// the reconciliation logic below can be tested without a database.
type Store interface {
	UpsertBuild(ctx context.Context, r release.R) (created bool, err error)
	UpsertProduct(ctx context.Context, r release.R, product string, regions []string) (id int64, created bool, newRegions []string, err error)
	UpsertSource(ctx context.Context, productID int64, cfgBuild, cfgCDN, cfgProduct string, regions []string) error
	EnsurePendingScan(ctx context.Context, productID int64) error
	LastOracleSequence(ctx context.Context) (seq int, ok bool, err error)
	RecordOracleSequence(ctx context.Context, seq int) error
}

// Poller runs one tick of C1 on demand or on a timer.
type Poller struct {
	oracle   Oracle
	store    Store
	log      *eventlog.Log
	globs    []string
	excludes []string
}

// New returns a Poller matching products against globs, minus any that also
// match excludes.
func New(o Oracle, store Store, log *eventlog.Log, globs, excludes []string) *Poller {
	return &Poller{oracle: o, store: store, log: log, globs: globs, excludes: excludes}
}

// Run blocks, ticking every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := p.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass. A product whose version page is not
// found is logged and skipped; any other per-product fetch failure ends
// the tick with an error before the oracle sequence is recorded.
func (p *Poller) Tick(ctx context.Context) error {
	summary, err := p.oracle.Summary(ctx)
	if err != nil {
		return errs.WrapFmt(err, "version: fetching oracle summary")
	}

	if last, ok, err := p.store.LastOracleSequence(ctx); err == nil && ok {
		if summary.SequenceID <= last {
			return nil
		}
	}

	grouped := map[groupKey][]string{} // group -> ordered regions

	for _, entry := range summary.Products {
		if entry.Flags == "cdn" {
			continue
		}
		if !config.MatchesGlob(entry.Product, p.globs) {
			continue
		}
		if config.MatchesGlob(entry.Product, p.excludes) {
			continue
		}

		rows, err := p.oracle.Versions(ctx, entry.Product)
		if err != nil {
			var notFound *oracle.ProductNotFound
			if errs.As(err, &notFound) {
				obslog.Warnf("version: product %s not found upstream, skipping", entry.Product)
				continue
			}
			return errs.WrapFmt(err, "version: fetching versions for %s", entry.Product)
		}

		for _, row := range rows {
			r, err := parseVersionName(row.VersionName)
			if err != nil {
				continue
			}
			key := groupKey{Release: r, Product: entry.Product, Build: row.BuildConfig, CDN: row.CDNConfig, ProductCfg: row.ProductConfig}
			grouped[key] = appendUnique(grouped[key], row.Region)
		}
	}

	keys := make([]groupKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Release != keys[j].Release {
			return keys[i].Release.Less(keys[j].Release)
		}
		return keys[i].Product < keys[j].Product
	})

	for _, key := range keys {
		regions := grouped[key]

		buildCreated, err := p.store.UpsertBuild(ctx, key.Release)
		if err != nil {
			return errs.WrapFmt(err, "version: upserting build %s", key.Release)
		}

		productID, productCreated, newRegions, err := p.store.UpsertProduct(ctx, key.Release, key.Product, regions)
		if err != nil {
			return errs.WrapFmt(err, "version: upserting product %s/%s", key.Release, key.Product)
		}

		if p.log != nil {
			if buildCreated {
				_ = p.log.Emit(ctx, eventlog.KindNewBuild, productID, key.Release.String())
			}
			if productCreated {
				_ = p.log.Emit(ctx, eventlog.KindNewProduct, productID, key.Product)
			} else if len(newRegions) > 0 {
				_ = p.log.Emit(ctx, eventlog.KindNewRegions, productID, strings.Join(newRegions, ","))
			}
		}

		if err := p.store.UpsertSource(ctx, productID, key.Build, key.CDN, key.ProductCfg, regions); err != nil {
			return errs.WrapFmt(err, "version: upserting source for product %d", productID)
		}
		if err := p.store.EnsurePendingScan(ctx, productID); err != nil {
			return errs.WrapFmt(err, "version: enqueueing scan for product %d", productID)
		}
	}

	if err := p.store.RecordOracleSequence(ctx, summary.SequenceID); err != nil {
		return errs.WrapFmt(err, "version: recording oracle sequence %d", summary.SequenceID)
	}
	return nil
}

// groupKey is the reconciliation grain names: "Group by
// (release, product_name, config_build, config_cdn, config_product)".
type groupKey struct {
	Release    release.R
	Product    string
	Build      string
	CDN        string
	ProductCfg string
}

// parseVersionName parses a "e.a.b.c" version string into a release.R.
func parseVersionName(s string) (release.R, error) {
	return release.Parse(strings.TrimSpace(s))
}

func appendUnique(regions []string, region string) []string {
	for _, r := range regions {
		if r == region {
			return regions
		}
	}
	return append(regions, region)
}
