package tracefile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Writer persists sealed rank traces under a file pattern.
type Writer struct {
	pattern     Pattern
	compression Compression
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression overrides the compression inferred from the pattern.
func WithCompression(c Compression) WriterOption {
	return func(w *Writer) { w.compression = c }
}

// WithLogger sets the writer's logger.
func WithLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics records flush size and latency into m.
func WithMetrics(m *monitoring.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a writer for p.
func NewWriter(p Pattern, opts ...WriterOption) *Writer {
	w := &Writer{
		pattern:     p,
		compression: p.Compression(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Pattern returns the file pattern the writer flushes to.
func (w *Writer) Pattern() Pattern {
	return w.pattern
}

// Flush writes the full trace of rank, in append order, and returns the
// file path.
func (w *Writer) Flush(ctx context.Context, rank int, session string, trace event.Trace) (string, error) {
	path := w.pattern.Path(rank)
	if err := ctx.Err(); err != nil {
		return "", traceerr.ForRank(traceerr.KindIO, rank, path, "flush", err)
	}

	start := time.Now()
	size, err := Write(path, NewDocument(rank, session, trace), w.compression)
	if err != nil {
		w.logger.Error("Failed to flush trace", zap.Int("rank", rank), zap.String("path", path), zap.Error(err))
		return "", err
	}
	elapsed := time.Since(start)
	w.metrics.RecordFlush(elapsed, size)

	w.logger.Info("Trace flushed",
		zap.Int("rank", rank),
		zap.String("path", path),
		zap.Int("events", len(trace)),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", elapsed))
	return path, nil
}
