package tracefile

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

const (
	// Format identifies interpol trace documents.
	Format = "interpol-trace"
	// Version is the document layout written by this package.
	Version = 1
	// MergedRank is the header rank of a merged multi-rank trace.
	MergedRank = -1
)

// Clock describes the timebase of a document's tsc values.
type Clock struct {
	Corrected     bool       `json:"corrected"`
	ReferenceRank int        `json:"reference_rank"`
	Ratio         float64    `json:"ratio,omitempty"`
	OriginTSC     uint64     `json:"origin_tsc,omitempty"`
	RunID         string     `json:"run_id,omitempty"`
	CorrectedAt   *time.Time `json:"corrected_at,omitempty"`
}

// Document is the on-disk form of one rank's trace, or of a merged trace.
type Document struct {
	Format  string      `json:"format"`
	Version int         `json:"version"`
	Rank    int         `json:"rank"`
	Ranks   int         `json:"ranks,omitempty"`
	Session string      `json:"session,omitempty"`
	Clock   Clock       `json:"clock"`
	Events  event.Trace `json:"events"`
}

// NewDocument wraps the raw, uncorrected trace of rank.
func NewDocument(rank int, session string, events event.Trace) *Document {
	if events == nil {
		events = event.Trace{}
	}
	return &Document{
		Format:  Format,
		Version: Version,
		Rank:    rank,
		Session: session,
		Events:  events,
	}
}

// Corrected reports whether the document's tsc values were already rewritten.
func (d *Document) Corrected() bool {
	return d.Clock.Corrected
}

// Validate checks the header and every event.
func (d *Document) Validate() error {
	if d.Format != Format {
		return fmt.Errorf("format %q, want %q", d.Format, Format)
	}
	if d.Version < 1 || d.Version > Version {
		return fmt.Errorf("unsupported version %d", d.Version)
	}
	if d.Rank < MergedRank {
		return fmt.Errorf("invalid rank %d", d.Rank)
	}
	for i := range d.Events {
		e := &d.Events[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if d.Rank != MergedRank && int(e.CurrentRank) != d.Rank {
			return fmt.Errorf("event %d: current_rank %d in the trace of rank %d", i, e.CurrentRank, d.Rank)
		}
	}
	return nil
}

// validate wraps Validate failures as parse errors scoped to path.
func (d *Document) validate(path string) error {
	if err := d.Validate(); err != nil {
		return traceerr.ForRank(traceerr.KindParse, d.Rank, path, "validate", err)
	}
	return nil
}
