// Package config implements the CLI surface: a single configuration file
// path plus environment-overridable settings, using spf13/viper for the
// file+env layering and spf13/cobra (in cmd/) for the command tree.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/tile"
)

// CompressionConfig configures one compression tier.
type CompressionConfig struct {
	Type    string `mapstructure:"type"`
	Method  int    `mapstructure:"method"`
	Quality int    `mapstructure:"quality"`
}

func (c CompressionConfig) toSpec() tile.CompressionSpec {
	return tile.CompressionSpec{Type: tile.Format(c.Type), Method: c.Method, Quality: c.Quality}
}

// Config is the full worker configuration.
type Config struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ProductGlobs        []string      `mapstructure:"product_globs"`
	ProductExcludes     []string      `mapstructure:"product_excludes"`
	SpecificMaps        []int         `mapstructure:"specific_maps"`
	SingleThread        bool          `mapstructure:"single_thread"`
	CatchScanExceptions bool          `mapstructure:"catch_scan_exceptions"`
	CachePath           string        `mapstructure:"cache_path"`
	LODLevels           []int         `mapstructure:"lod_levels"`

	Compression struct {
		Baseline CompressionConfig `mapstructure:"baseline"`
		LOD      CompressionConfig `mapstructure:"lod"`
	} `mapstructure:"compression"`

	BlobStoreEndpoint string `mapstructure:"blob_store_endpoint"`
	DatabaseURL       string `mapstructure:"database_url"`
	MetricsAddr       string `mapstructure:"metrics_addr"`

	Cache struct {
		RedisAddr string `mapstructure:"redis_addr"`
	} `mapstructure:"cache"`

	OracleURL   string `mapstructure:"oracle_url"`
	ListfileURL string `mapstructure:"listfile_url"`

	// ResolverDriver names the registered resolver.Resolver driver to open
	// (the external content-resolver collaborator); the
	// driver's own package must be blank-imported by main so it registers
	// itself. ResolverConfig is passed through verbatim.
	ResolverDriver string            `mapstructure:"resolver_driver"`
	ResolverConfig map[string]string `mapstructure:"resolver_config"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("single_thread", false)
	v.SetDefault("catch_scan_exceptions", true)
	v.SetDefault("lod_levels", []int{0, 1, 2, 3, 4, 5, 6})
	v.SetDefault("compression.baseline.type", "lossless")
	v.SetDefault("compression.baseline.method", 4)
	v.SetDefault("compression.baseline.quality", 100)
	v.SetDefault("compression.lod.type", "lossy")
	v.SetDefault("compression.lod.method", 4)
	v.SetDefault("compression.lod.quality", 90)
	v.SetDefault("metrics_addr", ":9090")
}

// Load reads path (any format viper supports — YAML, TOML, JSON) and
// layers WOWMINIMAPS_-prefixed environment variables on top. Dots in config keys map to
// underscores in the environment, e.g. WOWMINIMAPS_COMPRESSION_LOD_QUALITY.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetConfigFile(path)

	v.SetEnvPrefix("WOWMINIMAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.WrapFmt(err, "config: reading %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.WrapFmt(err, "config: unmarshalling %s", path)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the startup invariants: baseline compression must be
// lossless, lod_levels must contain 0, and lod_levels must be a subset of
// {0..6}.
func Validate(cfg *Config) error {
	if err := tile.ValidateBaselineSpec(cfg.Compression.Baseline.toSpec()); err != nil {
		return errs.WrapFmt(err, "config: invalid baseline compression")
	}

	hasZero := false
	seen := map[int]bool{}
	for _, l := range cfg.LODLevels {
		if l < 0 || l > 6 {
			return errs.Fmt("config: lod_levels entry %d outside [0,6]", l)
		}
		if seen[l] {
			return errs.Fmt("config: lod_levels contains duplicate entry %d", l)
		}
		seen[l] = true
		if l == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return errs.Fmt("config: lod_levels must contain 0")
	}
	if cfg.DatabaseURL == "" {
		return errs.Fmt("config: database_url is required")
	}
	if cfg.ResolverDriver == "" {
		return errs.Fmt("config: resolver_driver is required")
	}
	return nil
}

// BaselineSpec and LODSpec adapt the parsed config into the tile
// package's compression spec type.
func (c *Config) BaselineSpec() tile.CompressionSpec { return c.Compression.Baseline.toSpec() }
func (c *Config) LODSpec() tile.CompressionSpec      { return c.Compression.LOD.toSpec() }

// GeneratedLevels returns the configured LOD levels excluding L0 (which is
// always implicit from the raw tile grid, never "generated").
func (c *Config) GeneratedLevels() []int {
	out := make([]int, 0, len(c.LODLevels))
	for _, l := range c.LODLevels {
		if l != 0 {
			out = append(out, l)
		}
	}
	return out
}

// MatchesGlob reports whether name matches any of globs, using the
// wildcard semantics requires ('*' and '?').
func MatchesGlob(name string, globs []string) bool {
	for _, g := range globs {
		if globMatch(g, name) {
			return true
		}
	}
	return false
}

// globMatch implements '*' (any run of characters) and '?' (any single
// character) glob matching without pulling in path/filepath's Match
// (which additionally treats '/' specially — product names have no path
// semantics, so a dedicated matcher avoids surprising escaping rules).
func globMatch(pattern, name string) bool {
	return globMatchRec([]rune(pattern), []rune(name))
}

func globMatchRec(pattern, name []rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == '*' {
		for i := 0; i <= len(name); i++ {
			if globMatchRec(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	if pattern[0] == '?' || pattern[0] == name[0] {
		return globMatchRec(pattern[1:], name[1:])
	}
	return false
}
