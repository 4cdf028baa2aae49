// Package timeline works on reconciled traces: it merges the per-rank traces
// of a run into one ordered trace, joins asynchronous requests with their
// completions, and exports the result for trace viewers.
package timeline
