package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/eventlog"
	"github.com/jimbomcb/wow-minimaps/oracle"
	"github.com/jimbomcb/wow-minimaps/release"
)

type fakeOracle struct {
	summary  oracle.Summary
	versions map[string][]oracle.VersionRow
	err      map[string]error
}

func (f *fakeOracle) Summary(ctx context.Context) (oracle.Summary, error) { return f.summary, nil }

func (f *fakeOracle) Versions(ctx context.Context, product string) ([]oracle.VersionRow, error) {
	if err, ok := f.err[product]; ok {
		return nil, err
	}
	return f.versions[product], nil
}

type sourceKey struct {
	productID                    int64
	cfgBuild, cfgCDN, cfgProduct string
}

type fakeStore struct {
	builds           map[release.R]bool
	products         map[string]int64 // "release/product" -> id
	regions          map[int64][]string
	sources          map[sourceKey][]string
	pendingScans     map[int64]bool
	nextProductID    int64
	lastOracleSeq    int
	hasLastOracleSeq bool
	recordedSeqs     []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		builds:       map[release.R]bool{},
		products:     map[string]int64{},
		regions:      map[int64][]string{},
		sources:      map[sourceKey][]string{},
		pendingScans: map[int64]bool{},
	}
}

func (f *fakeStore) UpsertBuild(ctx context.Context, r release.R) (bool, error) {
	if f.builds[r] {
		return false, nil
	}
	f.builds[r] = true
	return true, nil
}

func (f *fakeStore) UpsertProduct(ctx context.Context, r release.R, product string, regions []string) (int64, bool, []string, error) {
	key := r.String() + "/" + product
	if id, ok := f.products[key]; ok {
		existing := map[string]bool{}
		for _, reg := range f.regions[id] {
			existing[reg] = true
		}
		var newRegions []string
		for _, reg := range regions {
			if !existing[reg] {
				newRegions = append(newRegions, reg)
			}
			f.regions[id] = appendUnique(f.regions[id], reg)
		}
		return id, false, newRegions, nil
	}
	f.nextProductID++
	id := f.nextProductID
	f.products[key] = id
	f.regions[id] = append([]string{}, regions...)
	return id, true, nil, nil
}

func (f *fakeStore) UpsertSource(ctx context.Context, productID int64, cfgBuild, cfgCDN, cfgProduct string, regions []string) error {
	key := sourceKey{productID, cfgBuild, cfgCDN, cfgProduct}
	f.sources[key] = regions
	return nil
}

func (f *fakeStore) EnsurePendingScan(ctx context.Context, productID int64) error {
	f.pendingScans[productID] = true
	return nil
}

func (f *fakeStore) LastOracleSequence(ctx context.Context) (int, bool, error) {
	return f.lastOracleSeq, f.hasLastOracleSeq, nil
}

func (f *fakeStore) RecordOracleSequence(ctx context.Context, seq int) error {
	f.recordedSeqs = append(f.recordedSeqs, seq)
	return nil
}

func TestTick_GroupsByReleaseProductAndConfigTriple(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 100,
			Products:   []oracle.SummaryEntry{{Product: "wow", SeqN: 100}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {
				{Region: "us", BuildConfig: "b1", CDNConfig: "c1", ProductConfig: "p1", VersionName: "1.11.2.58238"},
				{Region: "eu", BuildConfig: "b1", CDNConfig: "c1", ProductConfig: "p1", VersionName: "1.11.2.58238"},
			},
		},
	}
	store := newFakeStore()
	log := eventlog.New(nil)

	var newBuilds, newProducts int
	log.Subscribe(func(ev eventlog.Event) {
		switch ev.Kind {
		case eventlog.KindNewBuild:
			newBuilds++
		case eventlog.KindNewProduct:
			newProducts++
		}
	})

	p := New(o, store, log, []string{"wow"}, nil)
	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, 1, newBuilds)
	assert.Equal(t, 1, newProducts)

	r := release.MustPack(1, 11, 2, 58238)
	assert.True(t, store.builds[r])

	key := r.String() + "/wow"
	id, ok := store.products[key]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"us", "eu"}, store.regions[id])
	assert.True(t, store.pendingScans[id])
	assert.Equal(t, []int{100}, store.recordedSeqs)
}

func TestTick_SkipsProductsNotMatchingGlobs(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 1,
			Products:   []oracle.SummaryEntry{{Product: "d3", SeqN: 1}},
		},
		versions: map[string][]oracle.VersionRow{
			"d3": {{Region: "us", VersionName: "1.1.1.1"}},
		},
	}
	store := newFakeStore()
	p := New(o, store, eventlog.New(nil), []string{"wow*"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.Empty(t, store.products)
}

func TestTick_SkipsExcludedProducts(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 1,
			Products:   []oracle.SummaryEntry{{Product: "wow_classic"}, {Product: "wow"}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow_classic": {{Region: "us", VersionName: "1.1.1.1"}},
			"wow":         {{Region: "us", VersionName: "1.1.1.2"}},
		},
	}
	store := newFakeStore()
	p := New(o, store, eventlog.New(nil), []string{"wow*"}, []string{"wow_classic"})
	require.NoError(t, p.Tick(context.Background()))

	assert.Len(t, store.products, 1)
	_, ok := store.products[release.MustPack(1, 1, 1, 2).String()+"/wow"]
	assert.True(t, ok)
}

func TestTick_SkipsCDNProducts(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 1,
			Products:   []oracle.SummaryEntry{{Product: "wow", SeqN: 1, Flags: "cdn"}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {{Region: "us", VersionName: "1.1.1.1"}},
		},
	}
	store := newFakeStore()
	p := New(o, store, eventlog.New(nil), []string{"wow"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.Empty(t, store.products)
}

func TestTick_ProductNotFoundIsSkippedNotFatal(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 1,
			Products: []oracle.SummaryEntry{
				{Product: "gone", SeqN: 1},
				{Product: "wow", SeqN: 1},
			},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {{Region: "us", VersionName: "1.1.1.1"}},
		},
		err: map[string]error{
			"gone": &oracle.ProductNotFound{Product: "gone"},
		},
	}
	store := newFakeStore()
	p := New(o, store, eventlog.New(nil), []string{"*"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.NotEmpty(t, store.products)
}

func TestTick_UnchangedOracleSequenceShortCircuits(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 58238,
			Products:   []oracle.SummaryEntry{{Product: "wow", SeqN: 58238}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {{Region: "us", VersionName: "1.11.2.58238"}},
		},
	}
	store := newFakeStore()
	store.lastOracleSeq = 58238
	store.hasLastOracleSeq = true

	p := New(o, store, eventlog.New(nil), []string{"wow"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.Empty(t, store.products)
	assert.Empty(t, store.recordedSeqs)
}

func TestTick_AdvancedOracleSequenceProceedsAndRecords(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 58239,
			Products:   []oracle.SummaryEntry{{Product: "wow", SeqN: 58239}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {{Region: "us", VersionName: "1.11.2.58239"}},
		},
	}
	store := newFakeStore()
	store.lastOracleSeq = 58238
	store.hasLastOracleSeq = true

	p := New(o, store, eventlog.New(nil), []string{"wow"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.NotEmpty(t, store.products)
	assert.Equal(t, []int{58239}, store.recordedSeqs)
}

func TestTick_EmitsNewRegionsForExistingProduct(t *testing.T) {
	o := &fakeOracle{
		summary: oracle.Summary{
			SequenceID: 1,
			Products:   []oracle.SummaryEntry{{Product: "wow"}},
		},
		versions: map[string][]oracle.VersionRow{
			"wow": {{Region: "us", VersionName: "1.11.2.58238"}},
		},
	}
	store := newFakeStore()
	r := release.MustPack(1, 11, 2, 58238)
	store.products[r.String()+"/wow"] = 1
	store.regions[1] = []string{"us"}
	store.builds[r] = true

	log := eventlog.New(nil)
	var regionEvents []string
	log.Subscribe(func(ev eventlog.Event) {
		if ev.Kind == eventlog.KindNewRegions {
			regionEvents = append(regionEvents, ev.Detail)
		}
	})

	o.versions["wow"] = append(o.versions["wow"], oracle.VersionRow{Region: "eu", VersionName: "1.11.2.58238"})

	p := New(o, store, log, []string{"wow"}, nil)
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, []string{"eu"}, regionEvents)
}
