package tracefile

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Read loads and validates the trace at path. rank is the rank the caller
// expects the file to hold, or a negative value to accept any rank; a
// mismatch is a data error.
func Read(path string, rank int) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, traceerr.ForRank(traceerr.KindIO, rank, path, "read", err)
	}

	doc, err := Decode(data, rank)
	if err != nil {
		return nil, traceerr.ForRank(traceerr.KindParse, rank, path, "decode", err)
	}
	if err := doc.validate(path); err != nil {
		return nil, traceerr.WithRank(err, traceerr.KindParse, rank, path, "validate")
	}
	if rank >= 0 && doc.Rank != rank {
		return nil, traceerr.ForRank(traceerr.KindData, rank, path, "read",
			errors.New("file holds the trace of another rank"))
	}
	return doc, nil
}

// Staged is a fully written temporary file waiting to replace its target.
type Staged struct {
	Target string
	temp   string
	rank   int
	size   int64

	// Set by Commit: backup holds a hard link to the replaced file, or
	// created records that there was none.
	committed bool
	backup    string
	created   bool
}

// Size returns the number of bytes written.
func (s *Staged) Size() int64 {
	return s.size
}

// Commit renames the staged file over its target. The replaced file is
// kept as a hard link next to it until Release, so that Rollback can put it
// back.
func (s *Staged) Commit() error {
	backup := strings.TrimSuffix(s.temp, ".tmp") + ".bak"
	switch err := os.Link(s.Target, backup); {
	case err == nil:
		s.backup = backup
	case errors.Is(err, fs.ErrNotExist):
		s.created = true
	default:
		return traceerr.ForRank(traceerr.KindIO, s.rank, s.Target, "backup", err)
	}

	if err := os.Rename(s.temp, s.Target); err != nil {
		s.Release()
		s.created = false
		return traceerr.ForRank(traceerr.KindIO, s.rank, s.Target, "commit", err)
	}
	s.committed = true
	return nil
}

// Rollback restores the file a successful Commit replaced, or removes the
// target if Commit created it. It does nothing before Commit.
func (s *Staged) Rollback() error {
	if !s.committed {
		return nil
	}
	var err error
	switch {
	case s.backup != "":
		err = os.Rename(s.backup, s.Target)
		s.backup = ""
	case s.created:
		err = os.Remove(s.Target)
	}
	if err != nil {
		return traceerr.ForRank(traceerr.KindIO, s.rank, s.Target, "rollback", err)
	}
	s.committed = false
	return nil
}

// Release drops the backup kept by Commit, making it final.
func (s *Staged) Release() {
	if s.backup != "" {
		_ = os.Remove(s.backup)
		s.backup = ""
	}
}

// Abort removes the staged file. It is safe to call after Commit.
func (s *Staged) Abort() {
	_ = os.Remove(s.temp)
}

// Stage encodes doc into a temporary file next to path. Nothing at path
// changes until Commit.
func Stage(path string, doc *Document, c Compression) (*Staged, error) {
	fail := func(op string, err error) error {
		return traceerr.ForRank(traceerr.KindIO, doc.Rank, path, op, err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fail("create", err)
	}
	staged := &Staged{Target: path, temp: f.Name(), rank: doc.Rank}

	w := bufio.NewWriterSize(f, 1<<16)
	if err := Encode(w, doc, c); err != nil {
		f.Close()
		staged.Abort()
		return nil, fail("encode", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		staged.Abort()
		return nil, fail("write", err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		staged.Abort()
		return nil, fail("chmod", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		staged.Abort()
		return nil, fail("sync", err)
	}
	info, err := f.Stat()
	if err == nil {
		staged.size = info.Size()
	}
	if err := f.Close(); err != nil {
		staged.Abort()
		return nil, fail("close", err)
	}
	return staged, nil
}

// Write atomically replaces path with doc.
func Write(path string, doc *Document, c Compression) (int64, error) {
	staged, err := Stage(path, doc, c)
	if err != nil {
		return 0, err
	}
	if err := staged.Commit(); err != nil {
		staged.Abort()
		return 0, err
	}
	staged.Release()
	return staged.size, nil
}
