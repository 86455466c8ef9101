package report

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "report.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestFile(t *testing.T, s *Store, path string) *File {
	t.Helper()
	f := &File{
		Path:       path,
		Language:   "c",
		EntryKind:  "unit",
		SourceKind: "library",
		Stamp:      "00ff",
		AnalyzedAt: time.Now().Truncate(time.Second),
	}
	_, err := s.InsertFile(f)
	require.NoError(t, err)
	return f
}

func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/src/main.c")
	assert.Positive(t, f.ID)

	got, err := s.FileByPath("/src/main.c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "library", got.SourceKind)

	missing, err := s.FileByPath("/nope.c")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicatePathRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/src/a.c")
	_, err := s.InsertFile(&File{Path: "/src/a.c", EntryKind: "unit"})
	assert.Error(t, err)
}

func TestDiagnosticsOrderedByPosition(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/src/a.c")

	for _, d := range []Diagnostic{
		{FileID: f.ID, Line: 9, Column: 1, Severity: "error", Message: "late"},
		{FileID: f.ID, Line: 2, Column: 5, Severity: "hint", Code: "unexported", Message: "early"},
	} {
		_, err := s.InsertDiagnostic(&d)
		require.NoError(t, err)
	}

	diags, err := s.DiagnosticsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "early", diags[0].Message)
	assert.Equal(t, "unexported", diags[0].Code)
	assert.Empty(t, diags[1].Code)

	counts, err := s.CountBySeverity()
	require.NoError(t, err)
	assert.Equal(t, []SeverityCount{{"error", 1}, {"hint", 1}}, counts)
}

func TestDiagnosticRequiresFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.InsertDiagnostic(&Diagnostic{FileID: 42, Severity: "error", Message: "orphan"})
	assert.Error(t, err)
}

func TestCommitBatchRemapsFakeIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch()

	var wg sync.WaitGroup
	for _, p := range []string{"/a.c", "/b.c", "/c.h"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := b.AddFile(File{Path: p, EntryKind: "unit"})
			b.AddState(State{FileID: id, Descriptor: "PARSED_UNIT", State: "VALID"})
			b.AddState(State{FileID: id, Descriptor: "RESOLVED_UNIT", Library: "/a.c", State: "ERROR", Error: "boom"})
			b.AddDiagnostic(Diagnostic{FileID: id, Line: 1, Column: 1, Severity: "error", Message: p})
		}()
	}
	wg.Wait()
	require.NoError(t, s.CommitBatch(b))

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "/a.c", files[0].Path)

	for _, f := range files {
		assert.Positive(t, f.ID)
		states, err := s.StatesByFile(f.ID)
		require.NoError(t, err)
		require.Len(t, states, 2)
		assert.Empty(t, states[0].Library)
		assert.Equal(t, "/a.c", states[1].Library)
		assert.Equal(t, "boom", states[1].Error)

		diags, err := s.DiagnosticsByFile(f.ID)
		require.NoError(t, err)
		require.Len(t, diags, 1)
		assert.Equal(t, f.Path, diags[0].Message)
	}
}

func TestCommitBatchUnknownFakeIDRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch()
	b.AddFile(File{Path: "/a.c", EntryKind: "unit"})
	b.AddDiagnostic(Diagnostic{FileID: -7, Severity: "error", Message: "dangling"})

	require.Error(t, s.CommitBatch(b))
	files, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReset(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c")
	_, err := s.InsertDiagnostic(&Diagnostic{FileID: f.ID, Severity: "error", Message: "x"})
	require.NoError(t, err)
	_, err = s.InsertState(&State{FileID: f.ID, Descriptor: "PARSED_UNIT", State: "VALID"})
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	files, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
	insertTestFile(t, s, "/a.c")
}
