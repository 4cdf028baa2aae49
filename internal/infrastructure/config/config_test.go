package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ".", cfg.Trace.Dir)
	assert.Equal(t, "rank*_traces.json", cfg.Trace.Pattern)
	assert.Zero(t, cfg.Trace.Ranks)
	assert.Zero(t, cfg.Trace.Reference)
	assert.Equal(t, "none", cfg.Trace.Compression)

	assert.Zero(t, cfg.Reconcile.Workers)
	assert.False(t, cfg.Reconcile.AllowRecorrection)

	assert.Equal(t, 1000.0, cfg.Timeline.CyclesPerMicrosecond)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"INTERPOL_TRACE_DIR":          "/scratch/run7",
		"INTERPOL_TRACE_PATTERN":      "trace_*.json.zst",
		"INTERPOL_RANKS":              "16",
		"INTERPOL_REFERENCE_RANK":     "2",
		"INTERPOL_COMPRESSION":        "zstd",
		"INTERPOL_WORKERS":            "4",
		"INTERPOL_ALLOW_RECORRECTION": "true",
		"INTERPOL_DRY_RUN":            "true",
		"INTERPOL_CHROME_PATH":        "run7.trace.json",
		"INTERPOL_CYCLES_PER_US":      "2400",
		"LOG_LEVEL":                   "debug",
		"LOG_DEV":                     "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/scratch/run7", cfg.Trace.Dir)
	assert.Equal(t, "trace_*.json.zst", cfg.Trace.Pattern)
	assert.Equal(t, 16, cfg.Trace.Ranks)
	assert.Equal(t, 2, cfg.Trace.Reference)
	assert.Equal(t, "zstd", cfg.Trace.Compression)
	assert.Equal(t, 4, cfg.Reconcile.Workers)
	assert.True(t, cfg.Reconcile.AllowRecorrection)
	assert.True(t, cfg.Reconcile.DryRun)
	assert.Equal(t, "run7.trace.json", cfg.Timeline.ChromePath)
	assert.Equal(t, 2400.0, cfg.Timeline.CyclesPerMicrosecond)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "/scratch/run7/trace_*.json.zst", cfg.TracePattern())
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("INTERPOL_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Reconcile.Workers)
	assert.Equal(t, "rank*_traces.json", cfg.Trace.Pattern)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsMalformedEnvironment(t *testing.T) {
	t.Setenv("INTERPOL_RANKS", "many")

	_, err := Load()
	assert.ErrorIs(t, err, traceerr.ErrConfig)
	assert.NotNil(t, LoadOrDefault())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "interpol.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
trace:
  dir: /data/traces
  pattern: r*.json.gz
  ranks: 8
  compression: gzip
reconcile:
  workers: 2
timeline:
  merged_path: merged.json
logging:
  level: warn
`), 0o644))

	tomlPath := filepath.Join(dir, "interpol.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[trace]
pattern = "r*.json"
reference_rank = 1
ranks = 4

[metrics]
textfile = "/var/lib/node_exporter/interpol.prom"
`), 0o644))

	tests := []struct {
		name  string
		path  string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "yaml",
			path: yamlPath,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/data/traces", cfg.Trace.Dir)
				assert.Equal(t, "r*.json.gz", cfg.Trace.Pattern)
				assert.Equal(t, 8, cfg.Trace.Ranks)
				assert.Equal(t, "gzip", cfg.Trace.Compression)
				assert.Equal(t, 2, cfg.Reconcile.Workers)
				assert.Equal(t, "merged.json", cfg.Timeline.MergedPath)
				assert.Equal(t, "warn", cfg.Logging.Level)
				assert.Equal(t, 1000.0, cfg.Timeline.CyclesPerMicrosecond)
			},
		},
		{
			name: "toml",
			path: tomlPath,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "r*.json", cfg.Trace.Pattern)
				assert.Equal(t, 1, cfg.Trace.Reference)
				assert.Equal(t, 4, cfg.Trace.Ranks)
				assert.Equal(t, "/var/lib/node_exporter/interpol.prom", cfg.Metrics.TextfilePath)
				assert.Equal(t, ".", cfg.Trace.Dir)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(tt.path)
			require.NoError(t, err)
			tt.check(t, cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interpol.yml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, traceerr.ErrConfig)

	ini := filepath.Join(dir, "interpol.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.ErrorIs(t, err, traceerr.ErrConfig)

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[trace\npattern ="), 0o644))
	_, err = LoadFile(broken)
	assert.ErrorIs(t, err, traceerr.ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative ranks", func(c *Config) { c.Trace.Ranks = -1 }},
		{"negative reference", func(c *Config) { c.Trace.Reference = -2 }},
		{"reference past ranks", func(c *Config) { c.Trace.Ranks = 2; c.Trace.Reference = 2 }},
		{"unknown compression", func(c *Config) { c.Trace.Compression = "lz4" }},
		{"negative workers", func(c *Config) { c.Reconcile.Workers = -1 }},
		{"zero cycle rate", func(c *Config) { c.Timeline.CyclesPerMicrosecond = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), traceerr.ErrConfig)
		})
	}
}
