package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// ErrNotCorrected is wrapped by the data error returned when a trace on the
// raw counter timebase is given to an operation that needs corrected times.
var ErrNotCorrected = errors.New("trace not corrected")

// Merge combines the corrected traces of a run, docs[i] holding rank i, into
// one trace ordered by signed tick offset. Events with equal tsc are ordered by rank and
// then by their position in the rank's trace.
func Merge(docs []*tracefile.Document) (*tracefile.Document, error) {
	if len(docs) == 0 {
		return nil, traceerr.Configf("no traces to merge")
	}

	total := 0
	for i, doc := range docs {
		if doc == nil {
			return nil, traceerr.ForRank(traceerr.KindData, i, "", "merge", errors.New("missing trace"))
		}
		if !doc.Corrected() {
			return nil, traceerr.ForRank(traceerr.KindData, doc.Rank, "", "merge", ErrNotCorrected)
		}
		if doc.Rank != i {
			return nil, traceerr.ForRank(traceerr.KindData, doc.Rank, "", "merge",
				fmt.Errorf("trace of rank %d in slot %d", doc.Rank, i))
		}
		if doc.Clock.RunID != docs[0].Clock.RunID {
			return nil, traceerr.ForRank(traceerr.KindData, doc.Rank, "", "merge",
				fmt.Errorf("corrected by run %q, rank 0 by run %q", doc.Clock.RunID, docs[0].Clock.RunID))
		}
		total += len(doc.Events)
	}

	events := make(event.Trace, 0, total)
	for _, doc := range docs {
		events = append(events, doc.Events...)
	}
	// Ranks were appended in order, so a stable sort keeps each rank's
	// append order among equal keys.
	sort.SliceStable(events, func(i, j int) bool {
		if oi, oj := events[i].Offset(), events[j].Offset(); oi != oj {
			return oi < oj
		}
		return events[i].CurrentRank < events[j].CurrentRank
	})

	head := docs[0]
	merged := tracefile.NewDocument(tracefile.MergedRank, head.Session, events)
	merged.Ranks = len(docs)
	merged.Clock = tracefile.Clock{
		Corrected:     true,
		ReferenceRank: head.Clock.ReferenceRank,
		RunID:         head.Clock.RunID,
		CorrectedAt:   head.Clock.CorrectedAt,
	}
	return merged, nil
}
