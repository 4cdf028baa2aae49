// Package logging builds the zap loggers used by the capture library and the
// offline tools.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output goes to stderr by default, leaving stdout to reports.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Component("reconcile")
//	log.Info("Rank reconciled", logging.Rank(3), zap.Float64("ratio", ratio))
package logging
