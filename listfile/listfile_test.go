package listfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls    int
	body     []byte
	etag     string
	lastETag string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, etag string) ([]byte, string, bool, error) {
	f.calls++
	f.lastETag = etag
	if etag == f.etag && etag != "" {
		return nil, etag, true, nil
	}
	return f.body, f.etag, false, nil
}

func TestResolve_CaseInsensitive(t *testing.T) {
	f := &fakeFetcher{body: []byte("1234;world/maps/azeroth/azeroth.wdt\n5;OTHER/PATH\n"), etag: "v1"}
	c, err := New(f, "http://example/listfile.csv")
	require.NoError(t, err)

	id, ok, err := c.Resolve(context.Background(), "World/Maps/Azeroth/Azeroth.WDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1234, id)

	id, ok, err = c.Resolve(context.Background(), "other/path")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 5, id)
}

func TestResolve_MissDoesNotRefetchWithinCooldown(t *testing.T) {
	f := &fakeFetcher{body: []byte("1;a\n"), etag: "v1"}
	c, err := New(f, "http://example/listfile.csv")
	require.NoError(t, err)

	_, ok, err := c.Resolve(context.Background(), "does/not/exist")
	require.NoError(t, err)
	assert.False(t, ok)
	callsAfterFirst := f.calls

	_, ok, err = c.Resolve(context.Background(), "does/not/exist")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, callsAfterFirst, f.calls, "should not refetch for a cached negative")
}

func TestResolve_UsesETagOnSubsequentFetches(t *testing.T) {
	f := &fakeFetcher{body: []byte("1;a\n"), etag: "v1"}
	c, err := New(f, "http://example/listfile.csv")
	require.NoError(t, err)

	_, _, _ = c.Resolve(context.Background(), "a")
	require.NoError(t, c.refresh(context.Background()))
	assert.GreaterOrEqual(t, f.calls, 2)
	assert.Equal(t, "v1", f.lastETag)
}
