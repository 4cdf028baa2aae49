/*
Package monitoring provides Prometheus metrics for trace capture and
reconciliation.

# Overview

Capture and reconciliation are short-lived batch steps, so metrics are not
served over HTTP. Each Metrics value owns a registry and is written to a
file with WriteTextfile, where a node exporter textfile collector picks it up.

# Usage

	metrics := monitoring.NewMetrics(nil)

	timer := monitoring.NewTimer(metrics.ReconcileDuration)
	// ... reconcile ...
	timer.Stop()

	if err := metrics.WriteTextfile("/var/lib/node_exporter/interpol.prom"); err != nil {
		return err
	}

Every method is safe on a nil *Metrics.
*/
package monitoring
