package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUnit struct {
	id  SourceID
	tag string
}

func (u testUnit) Source() SourceID { return u.id }

func put[T any](t *testing.T, s *Store, id SourceID, d Descriptor[T], v T) {
	t.Helper()
	require.NoError(t, Put(s, id, d, v))
}

func putIn[T any](t *testing.T, s *Store, id SourceID, d ContextDescriptor[T], lib SourceID, v T) {
	t.Helper()
	require.NoError(t, PutIn(s, id, d, lib, v))
}

// requireViolation runs fn and checks it panics with a contract violation.
func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
		assert.True(t, errors.Is(err, ErrContractViolation), "got %v", err)
	}()
	fn()
}

func diag(src SourceID, msg string) Diagnostic {
	return Diagnostic{Source: src, Message: msg}
}

func messages(ds []Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Message
	}
	return out
}

// =============================================================================
// Initial state
// =============================================================================

func TestEntry_FreshIsInvalidEverywhere(t *testing.T) {
	t.Parallel()
	s := NewStore()
	e := s.Get("a.c")

	for _, d := range []Key{SourceKindData, LineInfoData, ParsedUnit, ParseErrors,
		IncludedParts, ImportedLibraries, Element, PublicNamespace, IsLaunchable} {
		assert.Equal(t, Invalid, e.State(d), d.Name())
	}
	for _, d := range []ContextKey{ResolvedUnit, ResolutionErrors, Hints} {
		assert.Equal(t, Invalid, e.StateIn(d, "lib.c"), d.Name())
	}

	_, ok := Value(e, SourceKindData)
	assert.False(t, ok)
	_, ok = ValueIn(e, ResolvedUnit, "lib.c")
	assert.False(t, ok)
	_, ok = e.AnyParsedUnit()
	assert.False(t, ok)

	errs := e.AllErrors()
	assert.NotNil(t, errs)
	assert.Empty(t, errs)
	assert.Empty(t, e.Contexts())
}

func TestDescriptor_IdentityNotName(t *testing.T) {
	t.Parallel()
	a := NewDescriptor[int]("COUNT")
	b := NewDescriptor[int]("COUNT")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a.Name(), b.Name())

	s := NewStore()
	put(t, s, "x", a, 7)
	e := s.Get("x")
	v, ok := Value(e, a)
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, Invalid, e.State(b))
}

func TestDescriptor_ZeroValuePanics(t *testing.T) {
	t.Parallel()
	e := NewStore().Get("x")
	requireViolation(t, func() { e.State(Descriptor[int]{}) })
}

// =============================================================================
// Set / get
// =============================================================================

func TestSetValue_ValidUntilInvalidated(t *testing.T) {
	t.Parallel()
	s := NewStore()
	put(t, s, "test.dart", SourceKindData, KindLibrary)
	put(t, s, "test.dart", IsLaunchable, true)

	e := s.Get("test.dart")
	assert.Equal(t, Valid, e.State(SourceKindData))
	kind, ok := Value(e, SourceKindData)
	require.True(t, ok)
	assert.Equal(t, KindLibrary, kind)
	launch, ok := Value(e, IsLaunchable)
	require.True(t, ok)
	assert.True(t, launch)
}

func TestScenario_SourceKindLifecycle(t *testing.T) {
	t.Parallel()
	s := NewStore()

	e := s.Get("test.dart")
	assert.Equal(t, Invalid, e.State(SourceKindData))

	put(t, s, "test.dart", SourceKindData, KindLibrary)
	e = s.Get("test.dart")
	assert.Equal(t, Valid, e.State(SourceKindData))
	kind, ok := Value(e, SourceKindData)
	require.True(t, ok)
	assert.Equal(t, KindLibrary, kind)

	s.Invalidate("test.dart", ReasonExplicit)
	e = s.Get("test.dart")
	assert.Equal(t, Invalid, e.State(SourceKindData))
	_, ok = Value(e, SourceKindData)
	assert.False(t, ok)
}

func TestScenario_ResolvedUnitContextIsolation(t *testing.T) {
	t.Parallel()
	s := NewStore()
	unit := testUnit{id: "part.h", tag: "in L1"}
	putIn[CompilationUnit](t, s, "part.h", ResolvedUnit, "L1", unit)

	e := s.Get("part.h")
	got, ok := ValueIn(e, ResolvedUnit, "L1")
	require.True(t, ok)
	assert.Equal(t, unit, got)

	_, ok = ValueIn(e, ResolvedUnit, "L2")
	assert.False(t, ok)
	assert.Equal(t, Invalid, e.StateIn(ResolvedUnit, "L2"))
	assert.Equal(t, []SourceID{"L1"}, e.Contexts())
}

func TestWritableCopy_InvisibleUntilCommit(t *testing.T) {
	t.Parallel()
	s := NewStore()
	before := s.Get("a.c")
	w := before.WritableCopy()
	SetValue(w, SourceKindData, KindPart)

	assert.Equal(t, Valid, w.State(SourceKindData))
	assert.Equal(t, Invalid, s.Get("a.c").State(SourceKindData))

	require.NoError(t, s.Commit(w))
	assert.Equal(t, Valid, s.Get("a.c").State(SourceKindData))
	// The snapshot the copy was taken from is untouched.
	assert.Equal(t, Invalid, before.State(SourceKindData))
	assert.Greater(t, s.Get("a.c").Version(), before.Version())
}

func TestWritableCopy_SetStateAndError(t *testing.T) {
	t.Parallel()
	s := NewStore()
	w := s.Get("a.c").WritableCopy()
	w.SetState(ParsedUnit, Error)
	cause := errors.New("unreadable")
	w.SetErrorIn(ResolvedUnit, "L", cause)
	require.NoError(t, s.Commit(w))

	e := s.Get("a.c")
	assert.Equal(t, Error, e.State(ParsedUnit))
	assert.ErrorIs(t, e.Err(ParsedUnit), ErrPhaseFailed)
	assert.Equal(t, Error, e.StateIn(ResolvedUnit, "L"))
	assert.ErrorIs(t, e.ErrIn(ResolvedUnit, "L"), cause)
	assert.NoError(t, e.Err(SourceKindData))
}

func TestWritableCopy_EmptyCommitIsNoop(t *testing.T) {
	t.Parallel()
	s := NewStore()
	e := s.Get("a.c")
	require.NoError(t, s.Commit(e.WritableCopy()))
	assert.Same(t, e, s.Get("a.c"))
}

// =============================================================================
// Contract violations
// =============================================================================

func TestContractViolations(t *testing.T) {
	t.Parallel()
	s := NewStore(WithClassifier(func(id SourceID) EntryKind {
		if id == "notes.txt" {
			return ResourceEntry
		}
		return UnitEntry
	}))
	unit := s.Get("a.c")
	res := s.Get("notes.txt")
	require.Equal(t, ResourceEntry, res.Kind())

	tests := []struct {
		name string
		fn   func()
	}{
		{"state without library", func() { unit.StateIn(ResolvedUnit, "") }},
		{"value without library", func() { ValueIn(unit, ResolutionErrors, "") }},
		{"contextual read on resource", func() { res.StateIn(ResolvedUnit, "a.c") }},
		{"contextual write on resource", func() {
			SetValueIn[CompilationUnit](res.WritableCopy(), ResolvedUnit, "a.c", testUnit{})
		}},
		{"set valid without value", func() { unit.WritableCopy().SetState(SourceKindData, Valid) }},
		{"set valid in context", func() { unit.WritableCopy().SetStateIn(Hints, "L", Valid) }},
		{"write unrecognized", func() { SetValue(res.WritableCopy(), ParseErrors, nil) }},
		{"begin unrecognized", func() { s.TryBegin("notes.txt", ParsedUnit) }},
		{"begin without library", func() { s.TryBeginIn("a.c", ResolvedUnit, "") }},
		{"begin copy without library", func() { s.BeginIn("a.c", Hints, "") }},
		{"abandon without library", func() { s.AbandonIn("a.c", ResolvedUnit, "") }},
		{"fail without library", func() { s.FailIn("a.c", ResolutionErrors, "", nil) }},
		{"begin contextual on resource", func() { s.TryBeginIn("notes.txt", ResolvedUnit, "a.c") }},
		{"empty source", func() { s.Get("") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireViolation(t, tt.fn)
		})
	}

	// A rejected claim leaves nothing behind.
	_, claimed := s.TryBeginIn("a.c", ResolvedUnit, "a.c")
	assert.True(t, claimed)
	for _, ds := range s.Get("a.c").Descriptors() {
		if ds.Library == "" {
			assert.NotEqual(t, InProcess, ds.State, ds.Descriptor)
		}
	}
}

func TestResourceEntry_UnrecognizedReadsAreInvalid(t *testing.T) {
	t.Parallel()
	s := NewStore(WithClassifier(func(SourceID) EntryKind { return ResourceEntry }))
	put(t, s, "logo.svg", SourceKindData, KindUnknown)
	put(t, s, "logo.svg", LineInfoData, NewLineInfo([]byte("a\nb")))

	e := s.Get("logo.svg")
	assert.Equal(t, Valid, e.State(SourceKindData))
	assert.Equal(t, Valid, e.State(LineInfoData))
	assert.Equal(t, Invalid, e.State(ParsedUnit))
	_, ok := Value(e, ParseErrors)
	assert.False(t, ok)
	_, ok = e.AnyParsedUnit()
	assert.False(t, ok)
}

// =============================================================================
// Aggregates
// =============================================================================

func TestAllErrors_StableOrder(t *testing.T) {
	t.Parallel()
	s := NewStore()
	// Written out of order on purpose.
	putIn(t, s, "p.h", ResolutionErrors, "L2", []Diagnostic{diag("p.h", "r-L2")})
	putIn(t, s, "p.h", Hints, "L1", []Diagnostic{diag("p.h", "h-L1")})
	putIn(t, s, "p.h", ResolutionErrors, "L1", []Diagnostic{diag("p.h", "r-L1a"), diag("p.h", "r-L1b")})
	put(t, s, "p.h", ParseErrors, []Diagnostic{diag("p.h", "parse")})

	want := []string{"parse", "r-L1a", "r-L1b", "h-L1", "r-L2"}
	for range 3 {
		assert.Equal(t, want, messages(s.Get("p.h").AllErrors()))
	}
}

func TestAllErrors_OnlyValidContributes(t *testing.T) {
	t.Parallel()
	s := NewStore()
	put(t, s, "a.c", ParseErrors, []Diagnostic{diag("a.c", "parse")})
	putIn(t, s, "a.c", ResolutionErrors, "a.c", []Diagnostic{diag("a.c", "resolve")})

	w := s.Get("a.c").WritableCopy()
	w.SetState(ParseErrors, Error)
	w.SetStateIn(ResolutionErrors, "a.c", Invalid)
	require.NoError(t, s.Commit(w))

	errs := s.Get("a.c").AllErrors()
	assert.NotNil(t, errs)
	assert.Empty(t, errs)
}

func TestAnyParsedUnit(t *testing.T) {
	t.Parallel()
	parsed := testUnit{id: "a.c", tag: "parsed"}
	resolved := testUnit{id: "a.c", tag: "resolved"}

	tests := []struct {
		name  string
		setup func(t *testing.T, s *Store)
		want  CompilationUnit
		found bool
	}{
		{"nothing", func(*testing.T, *Store) {}, nil, false},
		{"parsed only", func(t *testing.T, s *Store) {
			put[CompilationUnit](t, s, "a.c", ParsedUnit, parsed)
		}, parsed, true},
		{"resolved preferred", func(t *testing.T, s *Store) {
			put[CompilationUnit](t, s, "a.c", ParsedUnit, parsed)
			putIn[CompilationUnit](t, s, "a.c", ResolvedUnit, "a.c", resolved)
		}, resolved, true},
		{"resolved only", func(t *testing.T, s *Store) {
			putIn[CompilationUnit](t, s, "a.c", ResolvedUnit, "lib.c", resolved)
		}, resolved, true},
		{"error and flushed", func(t *testing.T, s *Store) {
			put[CompilationUnit](t, s, "a.c", ParsedUnit, parsed)
			putIn[CompilationUnit](t, s, "a.c", ResolvedUnit, "a.c", resolved)
			s.Flush("a.c")
		}, nil, false},
		{"error", func(t *testing.T, s *Store) {
			s.Fail("a.c", ParsedUnit, nil)
			s.FailIn("a.c", ResolvedUnit, "a.c", nil)
		}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewStore()
			tt.setup(t, s)
			got, ok := s.Get("a.c").AnyParsedUnit()
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnyResolvedUnit_LowestLibraryWins(t *testing.T) {
	t.Parallel()
	s := NewStore()
	putIn[CompilationUnit](t, s, "p.h", ResolvedUnit, "z.c", testUnit{id: "p.h", tag: "z"})
	putIn[CompilationUnit](t, s, "p.h", ResolvedUnit, "b.c", testUnit{id: "p.h", tag: "b"})
	putIn[CompilationUnit](t, s, "p.h", ResolvedUnit, "m.c", testUnit{id: "p.h", tag: "m"})
	s.FailIn("p.h", ResolvedUnit, "a.c", nil)

	for range 3 {
		u, ok := s.Get("p.h").AnyResolvedUnit()
		require.True(t, ok)
		assert.Equal(t, "b", u.(testUnit).tag)
	}
	_, ok := s.Get("p.h").AnyParsedUnit()
	assert.True(t, ok)
}

func TestDescriptors_ListsGlobalAndContexts(t *testing.T) {
	t.Parallel()
	s := NewStore()
	put(t, s, "a.c", SourceKindData, KindLibrary)
	putIn(t, s, "a.c", Hints, "a.c", []Diagnostic{})

	rows := s.Get("a.c").Descriptors()
	byName := map[string]DescriptorState{}
	for _, r := range rows {
		byName[r.Descriptor+"@"+r.Library.String()] = r
	}
	assert.Equal(t, Valid, byName["SOURCE_KIND@"].State)
	assert.Equal(t, Invalid, byName["PARSED_UNIT@"].State)
	assert.Equal(t, Valid, byName["HINTS@a.c"].State)
	assert.Equal(t, "SOURCE_KIND", rows[0].Descriptor)
}

func TestLineInfo_Position(t *testing.T) {
	t.Parallel()
	li := NewLineInfo([]byte("ab\ncd\n\nef"))
	line, col := li.Position(0)
	assert.Equal(t, [2]int{0, 0}, [2]int{line, col})
	line, col = li.Position(4)
	assert.Equal(t, [2]int{1, 1}, [2]int{line, col})
	line, col = li.Position(7)
	assert.Equal(t, [2]int{3, 0}, [2]int{line, col})
}
