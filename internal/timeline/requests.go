package timeline

import (
	"github.com/GriffinCanCode/interpol/internal/event"
)

// Request is the lifecycle of one asynchronous operation: the call that
// issued it and the Test or Wait that saw it complete.
type Request struct {
	Rank     int32      `json:"rank"`
	HandleID int32      `json:"handle_id"`
	Kind     event.Kind `json:"kind"`
	Issued   uint64     `json:"issued_tsc"`
	// Completed is the tsc of the completing call. It is meaningful only
	// when Complete is set.
	Completed uint64 `json:"completed_tsc,omitempty"`
	Complete  bool   `json:"complete"`
	// Polls counts the Test calls made on the request, the completing one
	// included.
	Polls int `json:"polls"`
}

// Latency returns the ticks between issue and completion.
func (r Request) Latency() uint64 {
	if !r.Complete {
		return 0
	}
	// Modular difference, so corrected values below the origin work too.
	d := int64(r.Completed - r.Issued)
	if d < 0 {
		return 0
	}
	return uint64(d)
}

type requestKey struct {
	rank   int32
	handle int32
}

// Requests joins every asynchronous call in trace with the Test and Wait
// events that carry the same handle_id on the same rank. trace may hold one
// rank or a merged run. Requests are returned in issue order; completions
// with no open request are skipped.
//
// Handle ids are hashes, so two live requests may share one. A request
// issued while another with its id is still open replaces it, and the older
// one is reported incomplete.
func Requests(trace event.Trace) []Request {
	var out []Request
	open := make(map[requestKey]int)

	for i := range trace {
		e := &trace[i]
		if e.HandleID == event.None {
			continue
		}
		key := requestKey{rank: e.CurrentRank, handle: e.HandleID}

		switch {
		case e.Kind.IsAsync():
			open[key] = len(out)
			out = append(out, Request{
				Rank:     e.CurrentRank,
				HandleID: e.HandleID,
				Kind:     e.Kind,
				Issued:   e.TSC,
			})
		case e.Kind.IsCompletion():
			idx, ok := open[key]
			if !ok {
				continue
			}
			r := &out[idx]
			if e.Kind == event.KindTest {
				r.Polls++
				if !e.Finished {
					continue
				}
			}
			r.Completed = e.TSC
			r.Complete = true
			delete(open, key)
		}
	}
	return out
}
