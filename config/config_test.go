package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
poll_interval: 45s
product_globs: ["wow", "wow_beta*"]
cache_path: /var/cache/wowminimaps
database_url: postgres://localhost/wowminimaps
resolver_driver: casc
blob_store_endpoint: /var/lib/wowminimaps/blobs
compression:
  baseline:
    type: lossless
    method: 4
    quality: 100
  lod:
    type: lossy
    method: 4
    quality: 90
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"wow", "wow_beta*"}, cfg.ProductGlobs)
	assert.Contains(t, cfg.LODLevels, 0)
	assert.Len(t, cfg.LODLevels, 7)
	assert.False(t, cfg.SingleThread)
	assert.True(t, cfg.CatchScanExceptions)
}

func TestLoad_RejectsLossyBaseline(t *testing.T) {
	bad := strings.Replace(sampleYAML, "type: lossless", "type: lossy", 1)
	_, err := Load(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestValidate_RequiresLODLevelZero(t *testing.T) {
	cfg := &Config{
		LODLevels:   []int{1, 2},
		DatabaseURL: "postgres://x",
	}
	cfg.Compression.Baseline.Type = "lossless"
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidate_RejectsOutOfRangeLevel(t *testing.T) {
	cfg := &Config{
		LODLevels:   []int{0, 7},
		DatabaseURL: "postgres://x",
	}
	cfg.Compression.Baseline.Type = "lossless"
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestMatchesGlob(t *testing.T) {
	assert.True(t, MatchesGlob("wow_classic_era", []string{"wow_classic*"}))
	assert.True(t, MatchesGlob("wowt", []string{"wow?"}))
	assert.False(t, MatchesGlob("wowzers", []string{"wow?"}))
	assert.True(t, MatchesGlob("anything", []string{"*"}))
}

func TestGeneratedLevels_ExcludesZero(t *testing.T) {
	cfg := &Config{LODLevels: []int{0, 1, 2}}
	assert.Equal(t, []int{1, 2}, cfg.GeneratedLevels())
}
