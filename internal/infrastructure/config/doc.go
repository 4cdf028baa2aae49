// Package config provides configuration for the trace tools.
//
// Values start from Default, are overlaid by an optional YAML or TOML file,
// then by environment variables. CLI flags override everything.
//
// Configuration Sections:
//   - Trace: trace directory, file pattern, rank count, reference rank, compression
//   - Reconcile: worker count and the re-correction override
//   - Timeline: merged trace and Chrome export outputs
//   - Logging: log level and output format
//   - Metrics: Prometheus textfile output
//
// Example Usage:
//
//	cfg, err := config.LoadFile("interpol.yaml")
//	if err != nil {
//		return err
//	}
//	pattern := cfg.TracePattern()
//
// Environment Variables:
//   - INTERPOL_TRACE_DIR, INTERPOL_TRACE_PATTERN, INTERPOL_RANKS
//   - INTERPOL_REFERENCE_RANK, INTERPOL_COMPRESSION
//   - INTERPOL_WORKERS, INTERPOL_ALLOW_RECORRECTION, INTERPOL_DRY_RUN
//   - INTERPOL_MERGED_PATH, INTERPOL_CHROME_PATH, INTERPOL_CYCLES_PER_US
//   - INTERPOL_METRICS_FILE, LOG_LEVEL, LOG_DEV
package config
