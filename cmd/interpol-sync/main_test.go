package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/interpol/internal/testutil"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

func runSync(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunReconcilesAndMerges(t *testing.T) {
	dir := t.TempDir()
	job := testutil.NewJob(100_000, testutil.Ideal(0), testutil.Clock{Offset: 50, Num: 1, Den: 2})
	_, paths := testutil.WriteJob(t, dir, "rank*_traces.json.gz", job)
	merged := filepath.Join(dir, "merged.json")
	chrome := filepath.Join(dir, "trace.json")
	metrics := filepath.Join(dir, "interpol.prom")

	code, stdout, stderr := runSync(t,
		"-dir", dir,
		"-compression", "gzip",
		"-merged", merged,
		"-chrome", chrome,
		"-metrics-file", metrics,
		"-log-level", "warn",
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "reference rank 0")
	assert.Contains(t, stdout, "applied")

	for rank, path := range paths {
		doc, err := tracefile.Read(path, rank)
		require.NoError(t, err)
		assert.True(t, doc.Corrected())
	}
	doc, err := tracefile.Read(merged, tracefile.MergedRank)
	require.NoError(t, err)
	assert.Len(t, doc.Events, 20)

	for _, path := range []string{chrome, metrics} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	// A second pass refuses to correct the same files again.
	code, _, stderr = runSync(t, "-dir", dir, "-pattern", "rank*_traces.json.gz", "-log-level", "error")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "already corrected")
}

func TestRunDryRunJSON(t *testing.T) {
	dir := t.TempDir()
	_, paths := testutil.WriteJob(t, dir, "rank*_traces.json", testutil.NewJob(1000, testutil.Ideal(0), testutil.Ideal(10)))
	before, err := os.ReadFile(paths[1])
	require.NoError(t, err)

	code, stdout, stderr := runSync(t, "-dir", dir, "-ranks", "2", "-dry-run", "-json", "-log-level", "error")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, `"dry_run":true`)

	after, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunUsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-bogus"}},
		{"stray argument", []string{"extra"}},
		{"bad compression", []string{"-compression", "lz4"}},
		{"pattern without marker", []string{"-dir", dir, "-pattern", "traces.json"}},
		{"no trace files", []string{"-dir", dir}},
		{"reference outside job", []string{"-ranks", "2", "-reference", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runSync(t, append(tt.args, "-log-level", "error")...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRunReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteJob(t, dir, "trace_*.json", testutil.NewJob(1000, testutil.Ideal(0), testutil.Ideal(0), testutil.Ideal(0)))
	cfgPath := filepath.Join(dir, "interpol.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"trace:\n  dir: "+dir+"\n  pattern: trace_*.json\n  ranks: 3\nreconcile:\n  dry_run: true\nlogging:\n  level: error\n"), 0o644))

	code, stdout, stderr := runSync(t, "-config", cfgPath)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "dry run")
}
