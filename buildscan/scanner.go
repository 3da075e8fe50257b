// Package buildscan implements the Build Scanner (C3), the
// core of this pipeline: for one product's release, resolves its content
// filesystem, walks its map catalogue, extracts each map's minimap tile
// grid, builds the LOD hierarchy, materialises missing tile imagery, and
// publishes the resulting compositions.
package buildscan

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jimbomcb/wow-minimaps/blobstore"
	"github.com/jimbomcb/wow-minimaps/composition"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/lod"
	"github.com/jimbomcb/wow-minimaps/pipeline"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/resolver"
	"github.com/jimbomcb/wow-minimaps/scandispatch"
	"github.com/jimbomcb/wow-minimaps/sql"
	"github.com/jimbomcb/wow-minimaps/sql/schema"
	"github.com/jimbomcb/wow-minimaps/tile"
)

// KeyInstaller installs the local cache of (key-name, key-value) TACT
// decryption key pairs into a resolver, implemented
// by keystore.Store.
type KeyInstaller interface {
	InstallAll(ctx context.Context, res resolver.Resolver) error
}

// ListfileResolver resolves a path to a file id.
type ListfileResolver interface {
	Resolve(ctx context.Context, path string) (uint32, bool, error)
}

// MapStore upserts the map catalogue (implemented by sql.MapStore).
type MapStore interface {
	Upsert(ctx context.Context, r release.R, row resolver.MapDatabaseRow) error
}

// CompositionPublisher publishes per-map compositions (implemented by
// sql.CompositionStore).
type CompositionPublisher interface {
	Publish(ctx context.Context, r release.R, pubs []sql.Publication) error
}

// TileSizer answers the delta query step 5.
type TileSizer interface {
	ExistingSizes(ctx context.Context, hashes []digest.Digest) (map[digest.Digest]int16, error)
}

// MapAddWdtFileID is the release at which the map database row gained a
// WdtFileDataID column, below which the WDT file id must instead be
// resolved through the listfile cache.
var MapAddWdtFileID = release.MustPack(8, 1, 0, 27826)

// Scanner runs one C3 build scan.
type Scanner struct {
	resolver     resolver.Resolver
	keys         KeyInstaller
	listfiles    ListfileResolver
	maps         MapStore
	comps        CompositionPublisher
	tileSizes    TileSizer
	tileWriter   pipeline.TileWriter
	blobs        blobstore.Store
	materialiser *tile.Materialiser
	synth        *lod.Synthesiser
	levels       []int // generated LOD levels, excluding L0
	concurrency  int
	specificMaps map[int]bool // nil means "all maps"
}

// Config tunes a Scanner's behaviour from the worker's parsed
// configuration.
type Config struct {
	GeneratedLevels []int
	SingleThread    bool
	SpecificMaps    []int
}

// New returns a Scanner.
func New(
	res resolver.Resolver,
	keys KeyInstaller,
	listfiles ListfileResolver,
	maps MapStore,
	comps CompositionPublisher,
	tileSizes TileSizer,
	tileWriter pipeline.TileWriter,
	blobs blobstore.Store,
	materialiser *tile.Materialiser,
	synth *lod.Synthesiser,
	cfg Config,
) *Scanner {
	concurrency := runtime.NumCPU()
	if cfg.SingleThread {
		concurrency = 1
	}

	var specific map[int]bool
	if len(cfg.SpecificMaps) > 0 {
		specific = make(map[int]bool, len(cfg.SpecificMaps))
		for _, id := range cfg.SpecificMaps {
			specific[id] = true
		}
	}

	return &Scanner{
		resolver:     res,
		keys:         keys,
		listfiles:    listfiles,
		maps:         maps,
		comps:        comps,
		tileSizes:    tileSizes,
		tileWriter:   tileWriter,
		blobs:        blobs,
		materialiser: materialiser,
		synth:        synth,
		levels:       cfg.GeneratedLevels,
		concurrency:  concurrency,
		specificMaps: specific,
	}
}

// mapResult is one map's extraction outcome, folded into the scan's
// aggregate state after the bounded parallel loop of step 4.
type mapResult struct {
	mapID         int
	comp          *composition.Composition
	noContent     bool            // no WDT / empty MAID: presence-without-imagery
	encryptedKeys map[string]bool // key names this map's WDT failed to decrypt under
}

// Scan runs the full C3 workflow for productID's release r, using sources
// as the candidate (product, source config) pairs.
func (s *Scanner) Scan(ctx context.Context, productID int64, r release.R, sources []resolver.SourceConfig) (scandispatch.Result, error) {
	if len(sources) == 0 {
		return scandispatch.Result{}, errs.Fmt("buildscan: product %d has no source configs", productID)
	}

	// Step 1 — key load.
	if err := s.keys.InstallAll(ctx, s.resolver); err != nil {
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: installing cached keys")
	}

	// Step 2 — filesystem resolution. Ambiguity over which source config to
	// prefer when several exist is deliberately resolved by always taking
	// the first (see DESIGN.md Open Question).
	cfg := sources[0]
	fs, err := s.resolver.ResolveFilesystem(ctx, cfg)
	if err != nil {
		if kr, ok := resolver.AsKeyRequired(err); ok {
			return scandispatch.Result{State: schema.ScanEncryptedBuild, EncryptedKey: kr.Name}, nil
		}
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: resolving filesystem for product %d", productID)
	}

	// Step 3 — map catalogue.
	mapDB, err := s.resolver.OpenMapDatabase(ctx, fs)
	if err != nil {
		if kr, ok := resolver.AsKeyRequired(err); ok {
			return scandispatch.Result{State: schema.ScanEncryptedMapDatabase, EncryptedKey: kr.Name}, nil
		}
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: opening map database for product %d", productID)
	}
	rows, err := mapDB.Rows(ctx)
	if err != nil {
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: reading map database rows for product %d", productID)
	}

	working := make([]resolver.MapDatabaseRow, 0, len(rows))
	for _, row := range rows {
		if err := s.maps.Upsert(ctx, r, row); err != nil {
			return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: upserting map %d", row.ID)
		}
		if s.specificMaps != nil && !s.specificMaps[row.ID] {
			continue
		}
		working = append(working, row)
	}

	// Step 4 — parallel per-map extraction.
	builder := lod.NewBuilder()
	results := make([]mapResult, len(working))
	perMapFileIDs := make([]map[digest.Digest]uint32, len(working))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, row := range working {
		i, row := i, row
		g.Go(func() error {
			mr, fileIDs, err := s.extractMap(gctx, fs, r, row, builder)
			if err != nil {
				return errs.WrapFmt(err, "buildscan: extracting map %d", row.ID)
			}
			results[i] = mr
			perMapFileIDs[i] = fileIDs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scandispatch.Result{}, err
	}

	hashToFileID := map[digest.Digest]uint32{}
	for _, m := range perMapFileIDs {
		for h, id := range m {
			hashToFileID[h] = id
		}
	}

	// Step 5 — delta. Union all base-level and LOD hashes across every map's
	// composition, then ask the store which are already present.
	allHashes, baseHashes, lodEntries := collectHashes(results, builder)
	existing, err := s.tileSizes.ExistingSizes(ctx, allHashes)
	if err != nil {
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: computing tile delta")
	}

	// Steps 6/7 push completed tile writes onto the materialiser's and
	// synthesiser's shared queue: one long-lived bounded queue
	// with a single consumer drain loop started once at process wiring
	// time (cmd/atlas-ingest), not per scan. Scan only needs to wait for
	// every push to have happened before moving on to publish.
	componentSizes, err := s.materializeAndSynthesize(ctx, fs, hashToFileID, baseHashes, lodEntries, existing)
	if err != nil {
		return scandispatch.Result{}, err
	}

	// Step 8 — composition publish.
	pubs := make([]sql.Publication, 0, len(results))
	encryptedMaps := map[string][]int{}
	for _, mr := range results {
		for key := range mr.encryptedKeys {
			encryptedMaps[key] = append(encryptedMaps[key], mr.mapID)
		}
		if mr.noContent || mr.comp == nil {
			pubs = append(pubs, sql.Publication{MapID: mr.mapID, ProductID: productID, Hash: nil})
			continue
		}
		for _, hash := range mr.comp.Levels[0] {
			if sz, ok := componentSizes[hash]; ok {
				tileSize := int16(sz)
				mr.comp.TileSize = &tileSize
				break
			}
		}
		hash := mr.comp.Hash()
		pubs = append(pubs, sql.Publication{MapID: mr.mapID, ProductID: productID, Hash: &hash, Comp: mr.comp})
	}
	if err := s.comps.Publish(ctx, r, pubs); err != nil {
		return scandispatch.Result{}, errs.WrapFmt(err, "buildscan: publishing compositions for product %d", productID)
	}

	// Step 9 — classify.
	if len(encryptedMaps) > 0 {
		return scandispatch.Result{State: schema.ScanPartialDecrypt, EncryptedMaps: encryptedMaps}, nil
	}
	return scandispatch.Result{State: schema.ScanFullDecrypt}, nil
}

// materializeAndSynthesize runs steps 6 and 7: base tile materialisation,
// then — barrier'd after step 6 fully completes — LOD synthesis. Both
// stages push their results onto the Scanner's shared pipeline queue via
// s.materialiser/s.synth.
func (s *Scanner) materializeAndSynthesize(
	ctx context.Context,
	fs resolver.Filesystem,
	hashToFileID map[digest.Digest]uint32,
	baseHashes []digest.Digest,
	lodEntries map[digest.Digest]lod.TileEntry,
	existing map[digest.Digest]int16,
) (map[digest.Digest]int, error) {
	// Step 6 — base tile materialisation.
	fetchGroup, fctx := errgroup.WithContext(ctx)
	fetchGroup.SetLimit(s.concurrency)
	for _, h := range baseHashes {
		if _, ok := existing[h]; ok {
			continue
		}
		fileID, ok := hashToFileID[h]
		if !ok {
			continue
		}
		fetchGroup.Go(func() error {
			descs, err := fs.OpenFileID(fctx, fileID, "")
			if err != nil {
				return err
			}
			if len(descs) == 0 {
				return errs.Fmt("buildscan: file id %d has no descriptors", fileID)
			}
			_, err = s.materialiser.Materialise(fctx, fs, descs[0])
			return err
		})
	}
	if err := fetchGroup.Wait(); err != nil {
		return nil, err
	}

	// Step 7 — LOD materialisation, barrier'd after step 6 completes: every
	// base-level hash this scan needed is now either freshly written or was
	// already present.
	refreshed, err := s.tileSizes.ExistingSizes(ctx, baseHashes)
	if err != nil {
		return nil, errs.WrapFmt(err, "buildscan: refreshing base tile sizes after materialisation")
	}
	componentSizes := make(map[digest.Digest]int, len(refreshed))
	for h, sz := range refreshed {
		componentSizes[h] = int(sz)
	}
	for h, sz := range existing {
		if _, ok := componentSizes[h]; !ok {
			componentSizes[h] = int(sz)
		}
	}

	lodGroup, lctx := errgroup.WithContext(ctx)
	lodGroup.SetLimit(s.concurrency)
	for h, entry := range lodEntries {
		if _, ok := existing[h]; ok {
			continue
		}
		h, entry := h, entry
		lodGroup.Go(func() error {
			return s.synth.Synthesize(lctx, h, entry, componentSizes, s.loadComponent)
		})
	}
	if err := lodGroup.Wait(); err != nil {
		return nil, err
	}
	return componentSizes, nil
}

// loadComponent resolves a LOD component hash to its decoded image by
// fetching it from the blob store. Components are always base (L0) tile
// hashes, which step 6 has written to the blob store (or a prior scan
// did) before step 7 asks for them.
func (s *Scanner) loadComponent(ctx context.Context, hash digest.Digest) (image.Image, error) {
	r, err := s.blobs.Get(ctx, hash)
	if err != nil {
		return nil, errs.WrapFmt(err, "buildscan: loading component %s", hash.Hex())
	}
	defer r.Close()
	img, _, err := tile.Decode(r)
	if err != nil {
		return nil, errs.WrapFmt(err, "buildscan: decoding component %s", hash.Hex())
	}
	return img, nil
}

// collectHashes unions every map's base-level and LOD tile hashes into the
// work set step 5 describes.
func collectHashes(results []mapResult, builder *lod.Builder) (all, base []digest.Digest, lodEntries map[digest.Digest]lod.TileEntry) {
	baseSet := map[digest.Digest]bool{}
	for _, mr := range results {
		if mr.comp == nil {
			continue
		}
		for _, h := range mr.comp.Levels[0] {
			baseSet[h] = true
		}
	}
	for h := range baseSet {
		base = append(base, h)
	}

	lodEntries = builder.Entries()

	allSet := make(map[digest.Digest]bool, len(baseSet)+len(lodEntries))
	for h := range baseSet {
		allSet[h] = true
	}
	for h := range lodEntries {
		allSet[h] = true
	}
	all = make([]digest.Digest, 0, len(allSet))
	for h := range allSet {
		all = append(all, h)
	}
	return all, base, lodEntries
}

// resolveWdtFileID determines a map's WDT file id:
// read directly from the row for releases on or after MapAddWdtFileID,
// otherwise fall back to resolving the conventional listfile path. ok is
// false only when no listfile resolver is configured to attempt the
// fallback; a zero result with ok=true means "confirmed no WDT."
func (s *Scanner) resolveWdtFileID(ctx context.Context, r release.R, row resolver.MapDatabaseRow) (id uint32, ok bool, err error) {
	if !r.Less(MapAddWdtFileID) {
		if row.WdtFileDataID != nil {
			return *row.WdtFileDataID, true, nil
		}
		return 0, true, nil
	}

	if s.listfiles == nil {
		return 0, false, nil
	}
	path := fmt.Sprintf("world/maps/%s/%s.wdt", row.Directory, row.Directory)
	resolved, found, err := s.listfiles.Resolve(ctx, path)
	if err != nil {
		return 0, false, errs.WrapFmt(err, "buildscan: resolving listfile path %s", path)
	}
	if !found {
		return 0, true, nil
	}
	return resolved, true, nil
}
