package keystore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimbomcb/wow-minimaps/resolver"
)

type fakeResolver struct {
	installed map[string]string
}

func (f *fakeResolver) InstallKey(ctx context.Context, name, value string) error {
	if f.installed == nil {
		f.installed = map[string]string{}
	}
	f.installed[name] = value
	return nil
}
func (f *fakeResolver) ResolveFilesystem(ctx context.Context, cfg resolver.SourceConfig) (resolver.Filesystem, error) {
	return nil, nil
}
func (f *fakeResolver) OpenMapDatabase(ctx context.Context, fs resolver.Filesystem) (resolver.MapDatabase, error) {
	return nil, nil
}

func TestLoad_MissingFileIsEmptyNotError(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, s.All())
}

func TestLoad_ParsesKeyValueLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tact_keys")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nf21c5ca430f434d1 abc123\n\nFEEDFACE deadbeef\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	v, ok := s.Lookup("F21C5CA430F434D1")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)

	v, ok = s.Lookup("feedface")
	require.True(t, ok)
	assert.Equal(t, "deadbeef", v)
}

func TestInstallAll_InstallsEveryCachedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tact_keys")
	require.NoError(t, os.WriteFile(path, []byte("f21c5ca430f434d1 abc123\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	fr := &fakeResolver{}
	require.NoError(t, s.InstallAll(context.Background(), fr))
	assert.Equal(t, "abc123", fr.installed["F21C5CA430F434D1"])
}
