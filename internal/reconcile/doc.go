// Package reconcile rewrites the raw counter values of every rank of a run
// onto the timebase of one reference rank.
//
// Each rank's drift is measured between its first Init and its last Finalize.
// Its tsc values are scaled by the ratio of the reference span to its own
// span and then re-originated to its own Init. Ranks therefore agree in rate,
// and agree at zero only as far as the barrier before Init released every
// rank at the same instant.
package reconcile
