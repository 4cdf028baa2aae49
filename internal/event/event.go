package event

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels carried by fields that are meaningless for an event's kind.
const (
	// WallTimeUnset is the wall_time of every non-anchor event.
	WallTimeUnset = -1.0
	// None marks an absent rank, communicator, handle, tag or thread level.
	None int32 = -1
)

// MPI thread support levels.
const (
	ThreadSingle int32 = iota
	ThreadFunneled
	ThreadSerialized
	ThreadMultiple
)

// CallEvent describes one intercepted call. Field names in the JSON tags are
// the on-disk interop contract.
type CallEvent struct {
	Kind                Kind     `json:"kind"`
	WallTime            float64  `json:"wall_time"`
	TSC                 uint64   `json:"tsc"`
	Duration            uint64   `json:"duration"`
	CurrentRank         int32    `json:"current_rank"`
	PartnerRank         int32    `json:"partner_rank"`
	BytesSent           uint32   `json:"bytes_sent"`
	BytesReceived       uint32   `json:"bytes_received"`
	CommID              int32    `json:"comm_id"`
	HandleID            int32    `json:"handle_id"`
	Tag                 int32    `json:"tag"`
	RequiredThreadLevel int32    `json:"required_thread_level"`
	ProvidedThreadLevel int32    `json:"provided_thread_level"`
	ReduceOp            ReduceOp `json:"reduce_op"`
	Finished            bool     `json:"finished"`
}

// Offset reads a corrected tsc as signed ticks from the rank's Init. Values
// before the origin are stored modulo 2^64 and come back negative.
func (e CallEvent) Offset() int64 {
	return int64(e.TSC)
}

// Stamp is the counter bracket of a measured operation.
type Stamp struct {
	TSC      uint64
	Duration uint64
}

// blank returns an event of kind k with every optional field at its sentinel.
func blank(k Kind, rank int32, at Stamp) CallEvent {
	return CallEvent{
		Kind:                k,
		WallTime:            WallTimeUnset,
		TSC:                 at.TSC,
		Duration:            at.Duration,
		CurrentRank:         rank,
		PartnerRank:         None,
		CommID:              None,
		HandleID:            None,
		Tag:                 None,
		RequiredThreadLevel: None,
		ProvidedThreadLevel: None,
		ReduceOp:            OpNone,
	}
}

// Seconds converts t to the floating-point seconds stored in wall_time.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Init records MPI_Init.
func Init(rank int32, tsc uint64, wall float64) CallEvent {
	e := blank(KindInit, rank, Stamp{TSC: tsc})
	e.WallTime = wall
	return e
}

// InitThread records MPI_Init_thread with the negotiated thread levels.
func InitThread(rank int32, tsc uint64, wall float64, required, provided int32) CallEvent {
	e := blank(KindInitThread, rank, Stamp{TSC: tsc})
	e.WallTime = wall
	e.RequiredThreadLevel = required
	e.ProvidedThreadLevel = provided
	return e
}

// Finalize records MPI_Finalize.
func Finalize(rank int32, tsc uint64, wall float64) CallEvent {
	e := blank(KindFinalize, rank, Stamp{TSC: tsc})
	e.WallTime = wall
	return e
}

// Send records a blocking send to dest.
func Send(rank, dest int32, bytes uint32, comm, tag int32, at Stamp) CallEvent {
	e := blank(KindSend, rank, at)
	e.PartnerRank = dest
	e.BytesSent = bytes
	e.CommID = comm
	e.Tag = tag
	return e
}

// Recv records a blocking receive from source.
func Recv(rank, source int32, bytes uint32, comm, tag int32, at Stamp) CallEvent {
	e := blank(KindRecv, rank, at)
	e.PartnerRank = source
	e.BytesReceived = bytes
	e.CommID = comm
	e.Tag = tag
	return e
}

// Isend records a non-blocking send identified by handle.
func Isend(rank, dest int32, bytes uint32, comm, handle, tag int32, at Stamp) CallEvent {
	e := Send(rank, dest, bytes, comm, tag, at)
	e.Kind = KindIsend
	e.HandleID = handle
	return e
}

// Irecv records a non-blocking receive identified by handle.
func Irecv(rank, source int32, bytes uint32, comm, handle, tag int32, at Stamp) CallEvent {
	e := Recv(rank, source, bytes, comm, tag, at)
	e.Kind = KindIrecv
	e.HandleID = handle
	return e
}

// Test records a completion poll of handle.
func Test(rank, handle int32, finished bool, at Stamp) CallEvent {
	e := blank(KindTest, rank, at)
	e.HandleID = handle
	e.Finished = finished
	return e
}

// Wait records a blocking completion of handle.
func Wait(rank, handle int32, at Stamp) CallEvent {
	e := blank(KindWait, rank, at)
	e.HandleID = handle
	return e
}

// Barrier records a blocking barrier on comm.
func Barrier(rank, comm int32, at Stamp) CallEvent {
	e := blank(KindBarrier, rank, at)
	e.CommID = comm
	return e
}

// Ibarrier records a non-blocking barrier on comm.
func Ibarrier(rank, comm, handle int32, at Stamp) CallEvent {
	e := Barrier(rank, comm, at)
	e.Kind = KindIbarrier
	e.HandleID = handle
	return e
}

// Ibcast records a non-blocking broadcast from root. The root sends bytes,
// every other rank receives them.
func Ibcast(rank, root int32, bytes uint32, comm, handle int32, at Stamp) CallEvent {
	e := blank(KindIbcast, rank, at)
	e.PartnerRank = root
	if rank == root {
		e.BytesSent = bytes
	} else {
		e.BytesReceived = bytes
	}
	e.CommID = comm
	e.HandleID = handle
	return e
}

// Igather records a non-blocking gather to root.
func Igather(rank, root int32, sent, received uint32, comm, handle int32, at Stamp) CallEvent {
	e := blank(KindIgather, rank, at)
	e.PartnerRank = root
	e.BytesSent = sent
	e.BytesReceived = received
	e.CommID = comm
	e.HandleID = handle
	return e
}

// Ireduce records a non-blocking reduction of bytes with op to root.
func Ireduce(rank, root int32, bytes uint32, op ReduceOp, comm, handle int32, at Stamp) CallEvent {
	e := blank(KindIreduce, rank, at)
	e.PartnerRank = root
	e.BytesSent = bytes
	e.ReduceOp = op
	e.CommID = comm
	e.HandleID = handle
	return e
}

// Iscatter records a non-blocking scatter from root.
func Iscatter(rank, root int32, sent, received uint32, comm, handle int32, at Stamp) CallEvent {
	e := Igather(rank, root, sent, received, comm, handle, at)
	e.Kind = KindIscatter
	return e
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid call event")

// Validate checks that e's kind is known and that every field its kind does
// not use carries its sentinel.
func (e CallEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalid, int8(e.Kind))
	}
	if e.CurrentRank < 0 {
		return e.invalid("negative current_rank %d", e.CurrentRank)
	}
	if !e.ReduceOp.Valid() {
		return e.invalid("unknown reduce_op %d", int8(e.ReduceOp))
	}

	if e.Kind.IsAnchor() {
		if e.Duration != 0 {
			return e.invalid("anchor duration %d, want 0", e.Duration)
		}
		if e.WallTime == WallTimeUnset {
			return e.invalid("anchor without wall_time")
		}
	} else if e.WallTime != WallTimeUnset {
		return e.invalid("wall_time %v set on a non-anchor", e.WallTime)
	}

	if e.Kind != KindInitThread && (e.RequiredThreadLevel != None || e.ProvidedThreadLevel != None) {
		return e.invalid("thread levels set")
	}
	if e.Kind != KindIreduce && e.ReduceOp != OpNone {
		return e.invalid("reduce_op %s set", e.ReduceOp)
	}
	if e.Kind != KindTest && e.Finished {
		return e.invalid("finished set")
	}
	if !e.Kind.HasHandle() && e.HandleID != None {
		return e.invalid("handle_id %d set", e.HandleID)
	}
	return nil
}

func (e CallEvent) invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, e.Kind, fmt.Sprintf(format, args...))
}
