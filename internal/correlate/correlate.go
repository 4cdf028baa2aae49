// Package correlate maps opaque asynchronous-request handles to small stable
// identifiers so that events about the same in-flight request (an Isend and
// its later Wait, say) can be joined without keeping the handle itself.
//
// The identifier is Bob Jenkins' one-at-a-time hash over the raw bytes of
// the handle. It is deterministic, but distinct handles may collide in the
// 32-bit space and nothing here detects it.
package correlate

import (
	"encoding/binary"
	"fmt"
)

// Algorithm names a handle hashing scheme.
type Algorithm string

const (
	// OneAtATime is the 32-bit hash written by the capture library.
	OneAtATime Algorithm = "one-at-a-time"
	// OneAtATime64 mixes over a 64-bit state and folds the result to 32
	// bits, for handles wider than a pointer.
	OneAtATime64 Algorithm = "one-at-a-time-64"
)

// Sum32 returns the one-at-a-time hash of data.
func Sum32(data []byte) uint32 {
	var h uint32
	for _, b := range data {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// Sum64 runs the same mixing steps over a 64-bit state.
func Sum64(data []byte) uint64 {
	var h uint64
	for _, b := range data {
		h += uint64(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// Handle is the raw byte image of a request handle. It is immutable and
// comparable.
type Handle struct {
	raw string
}

// NewHandle copies raw into a Handle.
func NewHandle(raw []byte) Handle {
	return Handle{raw: string(raw)}
}

// HandleFromInt32 wraps an integer request handle, such as a Fortran
// MPI_Fint, in its little-endian byte image.
func HandleFromInt32(v int32) Handle {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return NewHandle(buf[:])
}

// HandleFromUint64 wraps a pointer-sized request handle in its little-endian
// byte image.
func HandleFromUint64(v uint64) Handle {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return NewHandle(buf[:])
}

// Bytes returns a copy of the handle's bytes.
func (h Handle) Bytes() []byte {
	return []byte(h.raw)
}

// Len returns the number of bytes in the handle.
func (h Handle) Len() int {
	return len(h.raw)
}

// Sum32 returns the one-at-a-time hash of the handle.
func (h Handle) Sum32() uint32 {
	return Sum32([]byte(h.raw))
}

// ID returns the handle_id stored in trace events: the 32-bit hash
// reinterpreted as a signed integer.
func (h Handle) ID() int32 {
	return int32(h.Sum32())
}

// Fold64 xors the halves of a 64-bit hash into 32 bits.
func Fold64(h uint64) uint32 {
	return uint32(h>>32) ^ uint32(h)
}

// Correlator hashes handles with a fixed algorithm.
type Correlator struct {
	algorithm Algorithm
	sum       func([]byte) uint32
}

// New creates a correlator for the given algorithm.
func New(algorithm Algorithm) (*Correlator, error) {
	c := &Correlator{algorithm: algorithm}
	switch algorithm {
	case OneAtATime:
		c.sum = Sum32
	case OneAtATime64:
		c.sum = func(data []byte) uint32 { return Fold64(Sum64(data)) }
	default:
		return nil, fmt.Errorf("unknown handle hash algorithm %q", algorithm)
	}
	return c, nil
}

// Default returns a correlator using the one-at-a-time hash
func Default() *Correlator {
	return &Correlator{algorithm: OneAtATime, sum: Sum32}
}

// Algorithm returns the hashing scheme in use.
func (c *Correlator) Algorithm() Algorithm {
	return c.algorithm
}

// Correlate returns the handle_id for raw handle bytes.
func (c *Correlator) Correlate(raw []byte) int32 {
	return int32(c.sum(raw))
}

// CorrelateHandle returns the handle_id for h.
func (c *Correlator) CorrelateHandle(h Handle) int32 {
	return c.Correlate([]byte(h.raw))
}
