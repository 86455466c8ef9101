package anacache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/anacache/internal/cache"
)

func TestQuery_UnknownPath(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	q := e.Query()
	path := filepath.Join(t.TempDir(), "never.c")

	assert.Nil(t, q.Errors(path))
	assert.Nil(t, q.States(path))
	assert.Nil(t, q.Outline(path))
	assert.Nil(t, q.Libraries(path))
	_, ok := q.Library(path)
	assert.False(t, ok)
	assert.Zero(t, e.Cache().Len(), "queries never create entries")
}

func TestQuery_Outline(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"main.c": mainC, "util.h": utilH})
	e := newTestEngine(t)
	analyze(t, e, dir, "main.c")
	q := e.Query()

	decls := q.Outline(filepath.Join(dir, "util.h"))
	require.Len(t, decls, 2)
	assert.Equal(t, "twice", decls[0].Name)
	assert.Equal(t, "prototype", decls[0].Kind)
	assert.Equal(t, "clamp", decls[1].Name)
	assert.False(t, decls[1].Exported)

	// Once both trees are flushed there is nothing to outline.
	e.Cache().Flush(src(dir, "util.h"))
	assert.Nil(t, q.Outline(filepath.Join(dir, "util.h")))
}

func TestQuery_OutlineFallsBackToParsedUnit(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"main.c": mainC, "util.h": utilH})
	e := newTestEngine(t)
	// Parse only: the header is never resolved.
	e.ensureParsed(t.Context(), src(dir, "util.h"), false)

	decls := e.Query().Outline(filepath.Join(dir, "util.h"))
	require.Len(t, decls, 2)
	assert.Empty(t, e.Query().Libraries(filepath.Join(dir, "util.h")))
}

func TestQuery_LibrariesAndElement(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"a.c":      "#include \"shared.h\"\n",
		"b.c":      "#include \"shared.h\"\n",
		"shared.h": "int shared(void);\n",
	})
	e := newTestEngine(t)
	analyze(t, e, dir, "a.c", "b.c")
	q := e.Query()

	assert.Equal(t, []SourceID{src(dir, "a.c"), src(dir, "b.c")}, q.Libraries(filepath.Join(dir, "shared.h")))

	elem, ok := q.Library(filepath.Join(dir, "b.c"))
	require.True(t, ok)
	assert.Equal(t, []string{"shared"}, elem.Declarations)
	_, ok = q.Library(filepath.Join(dir, "shared.h"))
	assert.False(t, ok)
}

func TestQuery_States(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"main.c": mainC, "util.h": utilH})
	e := newTestEngine(t)
	analyze(t, e, dir, "main.c")

	states := make(map[string]cache.State)
	for _, ds := range e.Query().States(filepath.Join(dir, "util.h")) {
		key := ds.Descriptor
		if ds.Library != "" {
			key += "@" + filepath.Base(string(ds.Library))
		}
		states[key] = ds.State
	}
	assert.Equal(t, cache.Valid, states["PARSED_UNIT"])
	assert.Equal(t, cache.Valid, states["RESOLVED_UNIT@main.c"])
	assert.Equal(t, cache.Valid, states["HINTS@main.c"])
	assert.Equal(t, cache.Invalid, states["ELEMENT"])
}

func TestQuery_SummaryAndDiagnostics(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{
		"main.c": "#include \"gone.h\"\nint main(void) { return 0; }\n",
		"bad.py": "def (:\n",
	})
	e := newTestEngine(t)
	analyze(t, e, dir, "main.c", "bad.py")
	q := e.Query()

	s := q.Summary()
	assert.Equal(t, 3, s.Sources)
	assert.Equal(t, 3, s.Units)
	assert.Zero(t, s.Resources)
	assert.Equal(t, 2, s.Libraries)
	assert.Equal(t, 1, s.Parts)
	assert.Equal(t, 1, s.Launchable)
	assert.Positive(t, s.Errors)
	assert.Positive(t, s.States[cache.Error.String()])

	diags := q.Diagnostics()
	assert.Len(t, diags, s.Errors+s.Warnings+s.Hints)
	var missing int
	for _, d := range diags {
		if d.Code == CodeMissingPart {
			missing++
			assert.Equal(t, src(dir, "main.c"), d.Source)
		}
	}
	assert.Equal(t, 1, missing)
}
