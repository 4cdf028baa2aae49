/*
Package tracing times the phases of the offline batch passes.

A Tracer hands out spans that nest through the context. Finished spans are
logged at debug level, or at warn level when they carry an error, and kept
so that callers can report where a batch spent its time.

	span, ctx := tracer.StartSpan(ctx, "reconcile")
	defer span.Finish()
	span.SetTag("ranks", "16")
*/
package tracing
