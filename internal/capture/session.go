package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Flusher persists a sealed trace and returns where it went.
type Flusher interface {
	Flush(ctx context.Context, rank int, session string, trace event.Trace) (string, error)
}

// Barrier blocks until every rank of the job has reached it.
type Barrier interface {
	Wait(ctx context.Context) error
}

// BarrierFunc adapts a function to Barrier.
type BarrierFunc func(ctx context.Context) error

// Wait calls f.
func (f BarrierFunc) Wait(ctx context.Context) error { return f(ctx) }

// Trigger runs the post-run pass over all size ranks. Only rank 0 calls it,
// once every rank has flushed.
type Trigger interface {
	Run(ctx context.Context, size int) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, size int) error

// Run calls f.
func (f TriggerFunc) Run(ctx context.Context, size int) error { return f(ctx, size) }

// Config describes the rank a Session captures for.
type Config struct {
	Rank int
	Size int

	// Writer is required.
	Writer  Flusher
	Barrier Barrier
	Trigger Trigger

	Counter  Counter
	Clock    func() time.Time
	Capacity int

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

func (c *Config) setDefaults() error {
	switch {
	case c.Size <= 0:
		return traceerr.Configf("job size must be positive, got %d", c.Size)
	case c.Rank < 0 || c.Rank >= c.Size:
		return traceerr.Configf("rank %d outside 0..%d", c.Rank, c.Size-1)
	case c.Writer == nil:
		return traceerr.Configf("capture session needs a trace writer")
	}
	if c.Barrier == nil {
		c.Barrier = BarrierFunc(func(context.Context) error { return nil })
	}
	if c.Counter == nil {
		c.Counter = DefaultCounter()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

// ErrFinalized is returned by a second Finalize.
var ErrFinalized = errors.New("session already finalized")

// Session is the capture context of one rank, from Init to Finalize.
type Session struct {
	cfg    Config
	id     uuid.UUID
	rank   int32
	buffer *Buffer
	logger *zap.Logger

	finalizeOnce sync.Once
	path         string
	finalizeErr  error
}

// Init opens a session and records the Init anchor.
func Init(cfg Config) (*Session, error) {
	s, err := open(cfg)
	if err != nil {
		return nil, err
	}
	s.Record(event.Init(s.rank, s.Now(), event.Seconds(s.cfg.Clock())))
	return s, nil
}

// InitThread opens a session and records an InitThread anchor carrying the
// negotiated thread support levels.
func InitThread(cfg Config, required, provided int32) (*Session, error) {
	s, err := open(cfg)
	if err != nil {
		return nil, err
	}
	s.Record(event.InitThread(s.rank, s.Now(), event.Seconds(s.cfg.Clock()), required, provided))
	return s, nil
}

func open(cfg Config) (*Session, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	id := uuid.New()
	s := &Session{
		cfg:    cfg,
		id:     id,
		rank:   int32(cfg.Rank),
		buffer: NewBuffer(int32(cfg.Rank), cfg.Capacity),
		logger: cfg.Logger.With(zap.Int("rank", cfg.Rank), zap.String("session", id.String())),
	}
	s.logger.Debug("Capture session opened", zap.Int("size", cfg.Size))
	return s, nil
}

// ID returns the session identifier stamped into the trace header.
func (s *Session) ID() string { return s.id.String() }

// Rank returns the rank this session captures for.
func (s *Session) Rank() int32 { return s.rank }

// Size returns the number of ranks in the job.
func (s *Session) Size() int { return s.cfg.Size }

// Now samples the session's counter.
func (s *Session) Now() uint64 { return s.cfg.Counter.Now() }

// Record appends e to the rank's buffer.
func (s *Session) Record(e event.CallEvent) {
	s.buffer.Append(e)
}

// Measure runs op and returns its counter bracket.
func (s *Session) Measure(op func()) event.Stamp {
	start := s.cfg.Counter.Now()
	op()
	return event.Stamp{TSC: start, Duration: s.cfg.Counter.Now() - start}
}

// MeasureErr is Measure for operations that fail.
func (s *Session) MeasureErr(op func() error) (event.Stamp, error) {
	var err error
	stamp := s.Measure(func() { err = op() })
	return stamp, err
}

// Trace returns a copy of the events recorded so far.
func (s *Session) Trace() event.Trace {
	return s.buffer.Snapshot()
}

// Finalize seals the session and flushes its trace. Every rank first meets
// at the barrier, records its Finalize anchor, flushes, and meets again;
// then rank 0 runs the trigger. It returns the trace file path. Only the
// first call does any work.
func (s *Session) Finalize(ctx context.Context) (string, error) {
	called := false
	s.finalizeOnce.Do(func() {
		called = true
		s.path, s.finalizeErr = s.finalize(ctx)
	})
	if !called {
		return s.path, ErrFinalized
	}
	return s.path, s.finalizeErr
}

func (s *Session) finalize(ctx context.Context) (string, error) {
	rank := int(s.rank)
	if err := s.cfg.Barrier.Wait(ctx); err != nil {
		return "", traceerr.ForRank(traceerr.KindIO, rank, "", "finalize barrier", err)
	}

	s.Record(event.Finalize(s.rank, s.Now(), event.Seconds(s.cfg.Clock())))
	trace := s.buffer.Seal()
	s.cfg.Metrics.RecordSeal(countByName(trace))

	path, err := s.cfg.Writer.Flush(ctx, rank, s.ID(), trace)
	if err != nil {
		return "", traceerr.WithRank(err, traceerr.KindIO, rank, "", "flush")
	}
	s.logger.Info("Capture session sealed", zap.Int("events", len(trace)), zap.String("path", path))

	if err := s.cfg.Barrier.Wait(ctx); err != nil {
		return path, traceerr.ForRank(traceerr.KindIO, rank, path, "flush barrier", err)
	}

	if rank == 0 && s.cfg.Trigger != nil {
		if err := s.cfg.Trigger.Run(ctx, s.cfg.Size); err != nil {
			s.logger.Error("Post-run pass failed", zap.Error(err))
			return path, fmt.Errorf("post-run pass: %w", err)
		}
	}
	return path, nil
}

func countByName(trace event.Trace) map[string]int {
	counts := make(map[string]int)
	for kind, n := range trace.CountByKind() {
		counts[kind.String()] = n
	}
	return counts
}
