package event

import "fmt"

// Kind identifies the intercepted operation.
type Kind int8

const (
	KindInit Kind = iota
	KindInitThread
	KindFinalize
	KindSend
	KindRecv
	KindIsend
	KindIrecv
	KindTest
	KindWait
	KindBarrier
	KindIbarrier
	KindIbcast
	KindIgather
	KindIreduce
	KindIscatter
)

var kindNames = [...]string{
	KindInit:       "Init",
	KindInitThread: "InitThread",
	KindFinalize:   "Finalize",
	KindSend:       "Send",
	KindRecv:       "Recv",
	KindIsend:      "Isend",
	KindIrecv:      "Irecv",
	KindTest:       "Test",
	KindWait:       "Wait",
	KindBarrier:    "Barrier",
	KindIbarrier:   "Ibarrier",
	KindIbcast:     "Ibcast",
	KindIgather:    "Igather",
	KindIreduce:    "Ireduce",
	KindIscatter:   "Iscatter",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is a declared kind.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < len(kindNames)
}

// String returns the symbolic name used in trace files.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int8(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown call kind %d", int8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a kind from its name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind returns the kind with the given symbolic name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown call kind %q", name)
}

// IsInit reports whether k opens a rank's trace.
func (k Kind) IsInit() bool {
	return k == KindInit || k == KindInitThread
}

// IsAnchor reports whether k is a clock synchronization anchor.
func (k Kind) IsAnchor() bool {
	return k.IsInit() || k == KindFinalize
}

// IsAsync reports whether k starts a request completed later by Test or Wait.
func (k Kind) IsAsync() bool {
	switch k {
	case KindIsend, KindIrecv, KindIbarrier, KindIbcast, KindIgather, KindIreduce, KindIscatter:
		return true
	}
	return false
}

// IsCompletion reports whether k polls or completes an asynchronous request.
func (k Kind) IsCompletion() bool {
	return k == KindTest || k == KindWait
}

// HasHandle reports whether events of kind k carry a handle_id.
func (k Kind) HasHandle() bool {
	return k.IsAsync() || k.IsCompletion()
}

// ReduceOp is the reduction operator of a reduction collective.
type ReduceOp int8

// OpNone marks events that are not reductions.
const OpNone ReduceOp = -1

const (
	OpNull ReduceOp = iota
	OpMax
	OpMin
	OpSum
	OpProd
	OpLand
	OpBand
	OpLor
	OpBor
	OpLxor
	OpBxor
	OpMinloc
	OpMaxloc
	OpReplace
)

const opNoneName = "None"

var opNames = [...]string{
	OpNull:    "Null",
	OpMax:     "Max",
	OpMin:     "Min",
	OpSum:     "Sum",
	OpProd:    "Prod",
	OpLand:    "Land",
	OpBand:    "Band",
	OpLor:     "Lor",
	OpBor:     "Bor",
	OpLxor:    "Lxor",
	OpBxor:    "Bxor",
	OpMinloc:  "Minloc",
	OpMaxloc:  "Maxloc",
	OpReplace: "Replace",
}

// Valid reports whether op is OpNone or a declared operator.
func (op ReduceOp) Valid() bool {
	return op == OpNone || (op >= 0 && int(op) < len(opNames))
}

func (op ReduceOp) String() string {
	switch {
	case op == OpNone:
		return opNoneName
	case op.Valid():
		return opNames[op]
	default:
		return fmt.Sprintf("ReduceOp(%d)", int8(op))
	}
}

// MarshalText encodes the operator by name.
func (op ReduceOp) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unknown reduce op %d", int8(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText decodes an operator from its name.
func (op *ReduceOp) UnmarshalText(text []byte) error {
	parsed, err := ParseReduceOp(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ParseReduceOp returns the operator with the given symbolic name.
func ParseReduceOp(name string) (ReduceOp, error) {
	if name == opNoneName {
		return OpNone, nil
	}
	for i, n := range opNames {
		if n == name {
			return ReduceOp(i), nil
		}
	}
	return OpNone, fmt.Errorf("unknown reduce op %q", name)
}
