package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Config holds all tool configuration.
type Config struct {
	Trace     TraceConfig     `yaml:"trace" toml:"trace"`
	Reconcile ReconcileConfig `yaml:"reconcile" toml:"reconcile"`
	Timeline  TimelineConfig  `yaml:"timeline" toml:"timeline"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// TraceConfig locates the per-rank trace files.
type TraceConfig struct {
	Dir         string `envconfig:"INTERPOL_TRACE_DIR" yaml:"dir" toml:"dir"`
	Pattern     string `envconfig:"INTERPOL_TRACE_PATTERN" yaml:"pattern" toml:"pattern"`
	Ranks       int    `envconfig:"INTERPOL_RANKS" yaml:"ranks" toml:"ranks"`
	Reference   int    `envconfig:"INTERPOL_REFERENCE_RANK" yaml:"reference_rank" toml:"reference_rank"`
	Compression string `envconfig:"INTERPOL_COMPRESSION" yaml:"compression" toml:"compression"`
}

// ReconcileConfig tunes the reconciliation pass.
type ReconcileConfig struct {
	Workers           int  `envconfig:"INTERPOL_WORKERS" yaml:"workers" toml:"workers"`
	AllowRecorrection bool `envconfig:"INTERPOL_ALLOW_RECORRECTION" yaml:"allow_recorrection" toml:"allow_recorrection"`
	DryRun            bool `envconfig:"INTERPOL_DRY_RUN" yaml:"dry_run" toml:"dry_run"`
}

// TimelineConfig controls the optional outputs built from corrected traces.
type TimelineConfig struct {
	MergedPath           string  `envconfig:"INTERPOL_MERGED_PATH" yaml:"merged_path" toml:"merged_path"`
	ChromePath           string  `envconfig:"INTERPOL_CHROME_PATH" yaml:"chrome_path" toml:"chrome_path"`
	CyclesPerMicrosecond float64 `envconfig:"INTERPOL_CYCLES_PER_US" yaml:"cycles_per_us" toml:"cycles_per_us"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	TextfilePath string `envconfig:"INTERPOL_METRICS_FILE" yaml:"textfile" toml:"textfile"`
}

var compressions = map[string]bool{"none": true, "gzip": true, "zstd": true}

// Load loads configuration from environment variables on top of Default.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a YAML or TOML file, chosen by extension, over Default and
// then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, traceerr.New(traceerr.KindConfig, "load config", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, traceerr.Configf("unsupported config file %q", path)
	}
	if err != nil {
		return nil, traceerr.New(traceerr.KindConfig, "decode "+path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return traceerr.New(traceerr.KindConfig, "load environment", fmt.Errorf("failed to load config: %w", err))
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Trace: TraceConfig{
			Dir:         ".",
			Pattern:     "rank*_traces.json",
			Compression: "none",
		},
		Timeline: TimelineConfig{
			CyclesPerMicrosecond: 1000,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks values that do not depend on the file system.
func (c *Config) Validate() error {
	switch {
	case c.Trace.Ranks < 0:
		return traceerr.Configf("rank count %d is negative", c.Trace.Ranks)
	case c.Trace.Reference < 0:
		return traceerr.Configf("reference rank %d is negative", c.Trace.Reference)
	case c.Trace.Ranks > 0 && c.Trace.Reference >= c.Trace.Ranks:
		return traceerr.Configf("reference rank %d outside 0..%d", c.Trace.Reference, c.Trace.Ranks-1)
	case !compressions[c.Trace.Compression]:
		return traceerr.Configf("unknown compression %q", c.Trace.Compression)
	case c.Reconcile.Workers < 0:
		return traceerr.Configf("worker count %d is negative", c.Reconcile.Workers)
	case c.Timeline.CyclesPerMicrosecond <= 0:
		return traceerr.Configf("cycles per microsecond must be positive, got %v", c.Timeline.CyclesPerMicrosecond)
	}
	return nil
}

// TracePattern joins the directory and file pattern.
func (c *Config) TracePattern() string {
	if c.Trace.Dir == "" || filepath.IsAbs(c.Trace.Pattern) {
		return c.Trace.Pattern
	}
	return filepath.Join(c.Trace.Dir, c.Trace.Pattern)
}
