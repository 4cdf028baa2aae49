package tracefile

import (
	"strconv"
	"strings"

	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Marker is the placeholder replaced by the decimal rank in a file pattern.
const Marker = "*"

// DefaultPattern is the file name the capture side uses when none is given.
const DefaultPattern = "rank*_traces.json"

// Pattern maps ranks to trace file paths.
type Pattern struct {
	prefix string
	suffix string
}

// ParsePattern validates that s contains exactly one marker.
func ParsePattern(s string) (Pattern, error) {
	switch n := strings.Count(s, Marker); n {
	case 1:
		i := strings.Index(s, Marker)
		return Pattern{prefix: s[:i], suffix: s[i+len(Marker):]}, nil
	case 0:
		return Pattern{}, traceerr.Configf("file pattern %q has no %q marker", s, Marker)
	default:
		return Pattern{}, traceerr.Configf("file pattern %q has %d %q markers, want exactly one", s, n, Marker)
	}
}

// MustParsePattern is ParsePattern for patterns known at compile time.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Path returns the trace file of rank.
func (p Pattern) Path(rank int) string {
	return p.prefix + strconv.Itoa(rank) + p.suffix
}

// Paths returns the trace files of ranks 0..n-1.
func (p Pattern) Paths(n int) ([]string, error) {
	if n <= 0 {
		return nil, traceerr.Configf("rank count must be positive, got %d", n)
	}
	paths := make([]string, n)
	for rank := range paths {
		paths[rank] = p.Path(rank)
	}
	return paths, nil
}

// Rank extracts the rank from a path produced by Path. Only the canonical
// decimal form is accepted, so "rank01" does not match rank 1.
func (p Pattern) Rank(path string) (int, bool) {
	if len(path) <= len(p.prefix)+len(p.suffix) ||
		!strings.HasPrefix(path, p.prefix) || !strings.HasSuffix(path, p.suffix) {
		return 0, false
	}
	digits := path[len(p.prefix) : len(path)-len(p.suffix)]
	rank, err := strconv.Atoi(digits)
	if err != nil || rank < 0 || strconv.Itoa(rank) != digits {
		return 0, false
	}
	return rank, true
}

// Compression returns the compression implied by the pattern's suffix.
func (p Pattern) Compression() Compression {
	return CompressionFor(p.suffix)
}

func (p Pattern) String() string {
	return p.prefix + Marker + p.suffix
}

// escapeGlob quotes every doublestar metacharacter in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '*', '?', '[', ']', '{', '}':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
