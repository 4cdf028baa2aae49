package tracefile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Discover finds the trace files matching p and returns them indexed by
// rank. The ranks found must be exactly 0..n-1.
func Discover(p Pattern) ([]string, error) {
	p, err := ParsePattern(filepath.Clean(p.String()))
	if err != nil {
		return nil, err
	}

	// glob relative to the literal directory part so that it needs no escaping
	root, rel := ".", p.prefix
	if i := strings.LastIndexByte(p.prefix, filepath.Separator); i >= 0 {
		root, rel = p.prefix[:i], p.prefix[i+1:]
		if root == "" {
			root = string(filepath.Separator)
		}
	}
	glob := escapeGlob(filepath.ToSlash(rel)) + "*" + escapeGlob(filepath.ToSlash(p.suffix))

	matches, err := doublestar.Glob(os.DirFS(root), glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, traceerr.New(traceerr.KindConfig, "discover", err)
	}

	byRank := make(map[int]string, len(matches))
	for _, m := range matches {
		path := filepath.Join(root, filepath.FromSlash(m))
		if rank, ok := p.Rank(path); ok {
			byRank[rank] = path
		}
	}
	if len(byRank) == 0 {
		return nil, traceerr.Configf("no trace files match %q", p.String())
	}

	ranks := make([]int, 0, len(byRank))
	for rank := range byRank {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	paths := make([]string, len(ranks))
	for i, rank := range ranks {
		if rank != i {
			return nil, traceerr.Configf("trace files for %q skip rank %d (found %d files, highest rank %d)",
				p.String(), i, len(ranks), ranks[len(ranks)-1])
		}
		paths[i] = byRank[rank]
	}
	return paths, nil
}

// Resolve returns the files of ranks 0..n-1, or discovers them when n is 0.
func Resolve(p Pattern, n int) ([]string, error) {
	if n == 0 {
		return Discover(p)
	}
	return p.Paths(n)
}
