package event

// Trace is the ordered event sequence of one rank, in append order.
type Trace []CallEvent

// FirstInit returns the index of the first Init or InitThread event.
func (t Trace) FirstInit() (int, bool) {
	for i := range t {
		if t[i].Kind.IsInit() {
			return i, true
		}
	}
	return -1, false
}

// LastFinalize returns the index of the last Finalize event.
func (t Trace) LastFinalize() (int, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Kind == KindFinalize {
			return i, true
		}
	}
	return -1, false
}

// Disorder returns the index of the first event whose tsc is lower than its
// predecessor's, or -1 when the trace is non-decreasing.
func (t Trace) Disorder() int {
	for i := 1; i < len(t); i++ {
		if t[i].TSC < t[i-1].TSC {
			return i
		}
	}
	return -1
}

// OffsetDisorder is Disorder for corrected traces, comparing Offset.
func (t Trace) OffsetDisorder() int {
	for i := 1; i < len(t); i++ {
		if t[i].Offset() < t[i-1].Offset() {
			return i
		}
	}
	return -1
}

// Clone returns a copy of t that shares no memory with it.
func (t Trace) Clone() Trace {
	if t == nil {
		return nil
	}
	out := make(Trace, len(t))
	copy(out, t)
	return out
}

// CountByKind tallies events per kind.
func (t Trace) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for i := range t {
		counts[t[i].Kind]++
	}
	return counts
}
