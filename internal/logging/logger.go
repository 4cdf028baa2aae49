package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap.Logger with helpers for rank-scoped children.
type Logger struct {
	*zap.Logger
}

// Config selects the level, encoding and sinks.
type Config struct {
	Level       string // zap level name; empty means info
	Development bool   // console encoding with colors and stack traces
	OutputPaths []string
}

// DefaultConfig logs JSON at info level to stderr; stdout is kept for reports.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stderr"}}
}

func DevelopmentConfig() Config {
	return Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}
}

// New builds a logger from cfg. An unknown level is an error.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}
	sinks := cfg.OutputPaths
	if len(sinks) == 0 {
		sinks = []string{"stderr"}
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     jsonEncoder(),
		OutputPaths:       sinks,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development {
		zc.Encoding = "console"
		zc.EncoderConfig = consoleEncoder()
	}

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// NewDefault is New(DefaultConfig()), falling back to Nop.
func NewDefault() *Logger {
	if l, err := New(DefaultConfig()); err == nil {
		return l
	}
	return Nop()
}

func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap adopts an existing zap logger, typically one built by zaptest.
// A nil logger becomes Nop.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{Logger: l}
}

// Component returns a child named after a pipeline stage.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// ForRank tags every entry with the rank number.
func (l *Logger) ForRank(rank int) *Logger {
	return &Logger{Logger: l.Logger.With(Rank(rank))}
}

func Rank(rank int) zap.Field { return zap.Int("rank", rank) }

func Path(path string) zap.Field { return zap.String("path", path) }

func jsonEncoder() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

func consoleEncoder() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return ec
}
