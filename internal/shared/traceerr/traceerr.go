// Package traceerr defines the error taxonomy shared by capture, storage and
// reconciliation.
//
// Every failure carries a Kind so callers can branch with errors.Is against
// the per-kind sentinels, and the rank and file it concerns so a failed batch
// can say exactly which input was at fault:
//
//	var terr *traceerr.Error
//	if errors.As(err, &terr) {
//		logger.Error("rank failed", zap.Int("rank", terr.Rank), zap.String("path", terr.Path))
//	}
//	if errors.Is(err, traceerr.ErrData) { ... }
package traceerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindCapture Kind = iota + 1
	KindConfig
	KindIO
	KindParse
	KindData
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is for every *Error of the same kind.
var (
	ErrCapture = errors.New("capture error")
	ErrConfig  = errors.New("config error")
	ErrIO      = errors.New("io error")
	ErrParse   = errors.New("parse error")
	ErrData    = errors.New("data error")
)

// NoRank marks an error that is not tied to a single rank.
const NoRank = -1

// Error is a classified failure, optionally scoped to a rank and a file.
type Error struct {
	Kind Kind
	Rank int
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(" error")
	if e.Op != "" {
		sb.WriteString(" during ")
		sb.WriteString(e.Op)
	}
	if e.Rank != NoRank {
		fmt.Fprintf(&sb, " (rank %d", e.Rank)
		if e.Path != "" {
			fmt.Fprintf(&sb, ", %s", e.Path)
		}
		sb.WriteString(")")
	} else if e.Path != "" {
		fmt.Fprintf(&sb, " (%s)", e.Path)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindCapture:
		return ErrCapture
	case KindConfig:
		return ErrConfig
	case KindIO:
		return ErrIO
	case KindParse:
		return ErrParse
	case KindData:
		return ErrData
	default:
		return nil
	}
}

// New creates an error of the given kind that is not scoped to a rank.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Rank: NoRank, Op: op, Err: err}
}

// ForRank creates an error of the given kind scoped to a rank and its file.
func ForRank(kind Kind, rank int, path, op string, err error) *Error {
	return &Error{Kind: kind, Rank: rank, Path: path, Op: op, Err: err}
}

// Configf creates a config error from a format string.
func Configf(format string, args ...interface{}) *Error {
	return New(KindConfig, "", fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return 0
}

// WithRank returns a copy of err scoped to rank and path when err is an
// *Error without a rank; any other error is wrapped with the given kind.
func WithRank(err error, kind Kind, rank int, path, op string) error {
	if err == nil {
		return nil
	}
	var terr *Error
	if errors.As(err, &terr) {
		scoped := *terr
		if scoped.Rank == NoRank {
			scoped.Rank = rank
		}
		if scoped.Path == "" {
			scoped.Path = path
		}
		if scoped.Op == "" {
			scoped.Op = op
		}
		return &scoped
	}
	return ForRank(kind, rank, path, op, err)
}
