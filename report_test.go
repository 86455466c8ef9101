package anacache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/anacache/internal/report"
)

func TestExportReport(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"main.c": "#include \"util.h\"\n#include \"gone.h\"\nint main(void) { return 0; }\n",
		"util.h": "int util(void);\n",
	})
	e := newTestEngine(t)
	analyze(t, e, dir, "main.c")

	dbPath := filepath.Join(t.TempDir(), "report.db")
	require.NoError(t, e.ExportReport(dbPath))
	// Exporting twice replaces the previous contents.
	require.NoError(t, e.ExportReport(dbPath))

	rs, err := report.NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	files, err := rs.Files()
	require.NoError(t, err)
	require.Len(t, files, 3)

	f, err := rs.FileByPath(string(src(dir, "main.c")))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "c", f.Language)
	assert.Equal(t, "unit", f.EntryKind)
	assert.Equal(t, "library", f.SourceKind)
	assert.NotEmpty(t, f.Stamp)

	diags, err := rs.DiagnosticsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, CodeMissingPart, diags[0].Code)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, 10, diags[0].Column)
	assert.Equal(t, "error", diags[0].Severity)

	states, err := rs.StatesByFile(f.ID)
	require.NoError(t, err)
	var sawContext bool
	for _, st := range states {
		if st.Descriptor == "RESOLVED_UNIT" {
			sawContext = true
			assert.Equal(t, string(src(dir, "main.c")), st.Library)
			assert.Equal(t, "VALID", st.State)
		}
	}
	assert.True(t, sawContext)

	gone, err := rs.FileByPath(string(src(dir, "gone.h")))
	require.NoError(t, err)
	require.NotNil(t, gone)
	goneStates, err := rs.StatesByFile(gone.ID)
	require.NoError(t, err)
	for _, st := range goneStates {
		if st.Descriptor == "PARSED_UNIT" {
			assert.Equal(t, "ERROR", st.State)
			assert.NotEmpty(t, st.Error)
		}
	}
}
