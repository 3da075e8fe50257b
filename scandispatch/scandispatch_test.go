package scandispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/eventlog"
	"github.com/jimbomcb/wow-minimaps/release"
	"github.com/jimbomcb/wow-minimaps/sql"
	"github.com/jimbomcb/wow-minimaps/sql/schema"
	"github.com/jimbomcb/wow-minimaps/sql/sqltest"
)

func TestDispatcher_Tick_NoPendingScanReturnsFalse(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	scans := sql.NewScanStore(pool)

	d := New(scans, func(ctx context.Context, cs sql.ClaimedScan) (Result, error) {
		t.Fatal("scanner should not run with no pending scan")
		return Result{}, nil
	}, nil, true)

	claimed, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDispatcher_Tick_RecordsTerminalState(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	products := sql.NewProductStore(pool)
	scans := sql.NewScanStore(pool)

	r := release.MustPack(1, 11, 0, 1)
	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	require.NoError(t, scans.EnsurePending(ctx, productID))

	d := New(scans, func(ctx context.Context, cs sql.ClaimedScan) (Result, error) {
		assert.Equal(t, productID, cs.ProductID)
		return Result{State: schema.ScanFullDecrypt}, nil
	}, nil, true)

	claimed, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM scans WHERE product_id = $1`, productID).Scan(&state))
	assert.Equal(t, string(schema.ScanFullDecrypt), state)
}

func TestDispatcher_Tick_EncryptedBuildRecordsKeyName(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	products := sql.NewProductStore(pool)
	scans := sql.NewScanStore(pool)

	r := release.MustPack(1, 11, 0, 2)
	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	require.NoError(t, scans.EnsurePending(ctx, productID))

	d := New(scans, func(ctx context.Context, cs sql.ClaimedScan) (Result, error) {
		return Result{State: schema.ScanEncryptedBuild, EncryptedKey: "some_build_key"}, nil
	}, nil, true)

	_, err = d.Tick(ctx)
	require.NoError(t, err)

	var state string
	var key *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state, encrypted_key FROM scans WHERE product_id = $1`, productID).Scan(&state, &key))
	assert.Equal(t, string(schema.ScanEncryptedBuild), state)
	require.NotNil(t, key)
	assert.Equal(t, "some_build_key", *key)
}

func TestDispatcher_Tick_CaptureExceptionsRecordsExceptionText(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	products := sql.NewProductStore(pool)
	scans := sql.NewScanStore(pool)

	r := release.MustPack(1, 11, 0, 3)
	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	require.NoError(t, scans.EnsurePending(ctx, productID))

	log := eventlog.New(nil)
	var failed int
	log.Subscribe(func(ev eventlog.Event) {
		if ev.Kind == eventlog.KindScanFailed {
			failed++
		}
	})

	d := New(scans, func(ctx context.Context, cs sql.ClaimedScan) (Result, error) {
		return Result{}, assert.AnError
	}, log, true)

	claimed, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 1, failed)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM scans WHERE product_id = $1`, productID).Scan(&state))
	assert.Equal(t, string(schema.ScanException), state)
}

func TestDispatcher_Tick_DebugModeAbandonsClaimOnError(t *testing.T) {
	ctx := context.Background()
	pool := sqltest.NewCockroachDBForTests(ctx, t)
	products := sql.NewProductStore(pool)
	scans := sql.NewScanStore(pool)

	r := release.MustPack(1, 11, 0, 4)
	_, err := products.UpsertBuild(ctx, r)
	require.NoError(t, err)
	productID, _, _, err := products.UpsertProduct(ctx, r, "wow", []string{"us"})
	require.NoError(t, err)
	require.NoError(t, scans.EnsurePending(ctx, productID))

	d := New(scans, func(ctx context.Context, cs sql.ClaimedScan) (Result, error) {
		return Result{}, assert.AnError
	}, nil, false)

	_, err = d.Tick(ctx)
	require.Error(t, err)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM scans WHERE product_id = $1`, productID).Scan(&state))
	assert.Equal(t, string(schema.ScanPending), state)
}
