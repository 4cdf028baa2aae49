// Command interpol-sync is the offline pass run after an instrumented MPI job
// has finished. It rewrites every rank's trace file onto the reference
// rank's clock and can merge the corrected traces into one timeline.
//
// Configuration:
//   - Defaults
//   - A YAML or TOML file (-config)
//   - Environment variables (INTERPOL_*, LOG_LEVEL, LOG_DEV)
//   - CLI flags, which override everything else
//
// Usage:
//
//	# Reconcile rank0_traces.json .. rankN_traces.json in ./run42
//	interpol-sync -dir run42
//
//	# Four ranks, gzip files, merged and Chrome outputs
//	interpol-sync -dir run42 -pattern 'rank*_traces.json.gz' -ranks 4 \
//	    -merged merged.json.zst -chrome trace.json
//
//	# Show the drift report without touching any file
//	interpol-sync -dir run42 -dry-run
//
// Exit status is 0 on success, 1 when reconciliation fails and 2 for
// invalid configuration. Nothing is rewritten unless every rank succeeds.
//
// Signals:
//   - SIGINT, SIGTERM: abort before any file is replaced
package main
