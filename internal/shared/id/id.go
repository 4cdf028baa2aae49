// Package id generates the identifiers stamped into trace headers.
//
// Reconciliation runs are named by prefixed ULIDs so that repeated
// corrections of the same directory sort by time in logs and headers.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one reconciliation run.
type RunID string

// ExportID identifies one timeline export.
type ExportID string

const (
	RunPrefix    = "run"
	ExportPrefix = "exp"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
	now       func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader, now: time.Now}
}

// NewGeneratorWithEntropy creates a generator with a fixed entropy source
// and clock, for tests that need reproducible identifiers.
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRunID generates a run ID from g.
func (g *Generator) NewRunID() RunID {
	return RunID(g.GenerateWithPrefix(RunPrefix))
}

// NewExportID generates an export ID from g.
func (g *Generator) NewExportID() ExportID {
	return ExportID(g.GenerateWithPrefix(ExportPrefix))
}

// NewRunID generates a run ID from the default generator.
func NewRunID() RunID {
	return Default().NewRunID()
}

// NewExportID generates an export ID from the default generator.
func NewExportID() ExportID {
	return Default().NewExportID()
}

func (id RunID) String() string    { return string(id) }
func (id ExportID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID, with or without a prefix.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Parse parses a ULID string, stripping a prefix if present.
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the creation time from an ID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
