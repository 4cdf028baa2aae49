package timeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/shared/id"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// Trace Event Format phases.
const (
	PhaseComplete   = "X"
	PhaseInstant    = "i"
	PhaseAsyncBegin = "b"
	PhaseAsyncEnd   = "e"
	PhaseMetadata   = "M"
)

// ChromeEvent is one entry of a Chrome trace.
//
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU
type ChromeEvent struct {
	Name      string                 `json:"name"`
	Category  string                 `json:"cat,omitempty"`
	Phase     string                 `json:"ph"`
	Timestamp float64                `json:"ts"`
	Duration  float64                `json:"dur,omitempty"`
	ProcessID int                    `json:"pid"`
	ThreadID  int                    `json:"tid"`
	ID        string                 `json:"id,omitempty"`
	Scope     string                 `json:"s,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
}

// ChromeTrace is the JSON object form of a Chrome trace.
type ChromeTrace struct {
	TraceEvents     []ChromeEvent     `json:"traceEvents"`
	DisplayTimeUnit string            `json:"displayTimeUnit,omitempty"`
	OtherData       map[string]string `json:"otherData,omitempty"`
}

// Chrome converts a corrected trace to Chrome events. Every rank becomes a
// process; calls become complete events, anchors become instants and
// completed requests become async spans. Counter ticks are divided by
// cyclesPerMicrosecond.
func Chrome(doc *tracefile.Document, cyclesPerMicrosecond float64) (*ChromeTrace, error) {
	if cyclesPerMicrosecond <= 0 {
		return nil, traceerr.Configf("cycles per microsecond must be positive, got %v", cyclesPerMicrosecond)
	}
	if !doc.Corrected() {
		return nil, traceerr.ForRank(traceerr.KindData, doc.Rank, "", "export", ErrNotCorrected)
	}
	us := func(ticks int64) float64 {
		return float64(ticks) / cyclesPerMicrosecond
	}

	ranks := doc.Ranks
	if doc.Rank != tracefile.MergedRank {
		ranks = doc.Rank + 1
	}
	out := &ChromeTrace{
		TraceEvents:     make([]ChromeEvent, 0, len(doc.Events)+2*ranks),
		DisplayTimeUnit: "ns",
		OtherData: map[string]string{
			"session":   doc.Session,
			"run_id":    doc.Clock.RunID,
			"export_id": id.NewExportID().String(),
		},
	}

	seen := make(map[int32]bool)
	for i := range doc.Events {
		e := &doc.Events[i]
		if !seen[e.CurrentRank] {
			seen[e.CurrentRank] = true
			out.TraceEvents = append(out.TraceEvents, processMetadata(int(e.CurrentRank))...)
		}

		ce := ChromeEvent{
			Name:      e.Kind.String(),
			Category:  "mpi",
			Phase:     PhaseComplete,
			Timestamp: us(e.Offset()),
			Duration:  us(int64(e.Duration)),
			ProcessID: int(e.CurrentRank),
			Args:      callArgs(e),
		}
		if e.Kind.IsAnchor() {
			ce.Phase = PhaseInstant
			ce.Duration = 0
			ce.Scope = "p"
		}
		out.TraceEvents = append(out.TraceEvents, ce)
	}

	for _, r := range Requests(doc.Events) {
		if !r.Complete {
			continue
		}
		spanID := strconv.Itoa(int(r.Rank)) + ":" + strconv.FormatUint(uint64(uint32(r.HandleID)), 16)
		span := ChromeEvent{
			Name:      r.Kind.String(),
			Category:  "request",
			Phase:     PhaseAsyncBegin,
			Timestamp: us(int64(r.Issued)),
			ProcessID: int(r.Rank),
			ID:        spanID,
			Args:      map[string]interface{}{"handle_id": r.HandleID, "polls": r.Polls},
		}
		out.TraceEvents = append(out.TraceEvents, span)
		span.Phase = PhaseAsyncEnd
		span.Timestamp = us(int64(r.Completed))
		span.Args = nil
		out.TraceEvents = append(out.TraceEvents, span)
	}
	return out, nil
}

func processMetadata(rank int) []ChromeEvent {
	return []ChromeEvent{
		{
			Name:      "process_name",
			Phase:     PhaseMetadata,
			ProcessID: rank,
			Args:      map[string]interface{}{"name": fmt.Sprintf("rank %d", rank)},
		},
		{
			Name:      "process_sort_index",
			Phase:     PhaseMetadata,
			ProcessID: rank,
			Args:      map[string]interface{}{"sort_index": rank},
		},
	}
}

func callArgs(e *event.CallEvent) map[string]interface{} {
	args := make(map[string]interface{})
	set := func(name string, v int32) {
		if v != event.None {
			args[name] = v
		}
	}
	set("partner", e.PartnerRank)
	set("comm", e.CommID)
	set("tag", e.Tag)
	set("handle_id", e.HandleID)
	set("required_thread_level", e.RequiredThreadLevel)
	set("provided_thread_level", e.ProvidedThreadLevel)
	if e.BytesSent > 0 {
		args["bytes_sent"] = e.BytesSent
	}
	if e.BytesReceived > 0 {
		args["bytes_received"] = e.BytesReceived
	}
	if e.ReduceOp != event.OpNone {
		args["op"] = e.ReduceOp.String()
	}
	if e.Kind == event.KindTest {
		args["finished"] = e.Finished
	}
	if e.WallTime != event.WallTimeUnset {
		args["wall_time"] = e.WallTime
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// ExportChrome writes doc to w as a Chrome trace.
func ExportChrome(w io.Writer, doc *tracefile.Document, cyclesPerMicrosecond float64) error {
	trace, err := Chrome(doc, cyclesPerMicrosecond)
	if err != nil {
		return err
	}
	if err := sonic.ConfigStd.NewEncoder(w).Encode(trace); err != nil {
		return traceerr.New(traceerr.KindIO, "export", err)
	}
	return nil
}

// WriteChrome exports doc to the file at path.
func WriteChrome(path string, doc *tracefile.Document, cyclesPerMicrosecond float64) error {
	f, err := os.Create(path)
	if err != nil {
		return traceerr.ForRank(traceerr.KindIO, doc.Rank, path, "create", err)
	}
	w := bufio.NewWriter(f)
	if err := ExportChrome(w, doc, cyclesPerMicrosecond); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return traceerr.ForRank(traceerr.KindIO, doc.Rank, path, "write", err)
	}
	if err := f.Close(); err != nil {
		return traceerr.ForRank(traceerr.KindIO, doc.Rank, path, "close", err)
	}
	return nil
}
