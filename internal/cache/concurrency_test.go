package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrency_SingleComputation(t *testing.T) {
	t.Parallel()
	s := NewStore()

	var calls atomic.Int32
	parse := func(id SourceID) CompilationUnit {
		calls.Add(1)
		return testUnit{id: id}
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		commits atomic.Int32
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			w, ok := s.Begin("a.c", ParsedUnit)
			if !ok {
				return
			}
			SetValue(w, ParsedUnit, parse("a.c"))
			if s.Commit(w) == nil {
				commits.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), commits.Load())
	assert.Equal(t, Valid, s.Get("a.c").State(ParsedUnit))
}

func TestConcurrency_ContextsComputedIndependently(t *testing.T) {
	t.Parallel()
	s := NewStore()
	libs := []SourceID{"L1.c", "L2.c", "L3.c"}

	var calls sync.Map
	var wg sync.WaitGroup
	for range 8 {
		for _, lib := range libs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w, ok := s.BeginIn("p.h", ResolvedUnit, lib)
				if !ok {
					return
				}
				n, _ := calls.LoadOrStore(lib, new(atomic.Int32))
				n.(*atomic.Int32).Add(1)
				SetValueIn[CompilationUnit](w, ResolvedUnit, lib, testUnit{id: "p.h", tag: string(lib)})
				assert.NoError(t, s.Commit(w))
			}()
		}
	}
	wg.Wait()

	e := s.Get("p.h")
	for _, lib := range libs {
		n, ok := calls.Load(lib)
		require.True(t, ok)
		assert.Equal(t, int32(1), n.(*atomic.Int32).Load(), lib)
		u, ok := ValueIn(e, ResolvedUnit, lib)
		require.True(t, ok)
		assert.Equal(t, string(lib), u.(testUnit).tag)
	}
}

func TestConcurrency_ReadersNeverSeeTornEntries(t *testing.T) {
	t.Parallel()
	s := NewStore()
	first := NewDescriptor[int]("FIRST")
	second := NewDescriptor[int]("SECOND")

	const rounds = 200
	done := make(chan struct{})
	var torn atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				e := s.Get("pair")
				a, okA := Value(e, first)
				b, okB := Value(e, second)
				if okA != okB || a != b {
					torn.Add(1)
				}
			}
		}()
	}

	for i := range rounds {
		w := s.Get("pair").WritableCopy()
		SetValue(w, first, i)
		SetValue(w, second, i)
		require.NoError(t, s.Commit(w))
	}
	close(done)
	wg.Wait()
	assert.Zero(t, torn.Load())
}

func TestConcurrency_InvalidationBeatsInFlightCommit(t *testing.T) {
	t.Parallel()
	s := NewStore()
	library(t, s, "lib.c", []SourceID{"p.h"}, nil)
	s.Invalidate("lib.c", ReasonExplicit)

	// A resolver starts computing p.h in lib.c's context.
	w, ok := s.BeginIn("p.h", ResolvedUnit, "lib.c")
	require.True(t, ok)

	// lib.c changes while it runs.
	put(t, s, "lib.c", IncludedParts, []SourceID{"p.h"})
	put(t, s, "lib.c", ImportedLibraries, nil)
	s.Invalidate("lib.c", ReasonContentChanged)

	SetValueIn[CompilationUnit](w, ResolvedUnit, "lib.c", testUnit{id: "p.h"})
	require.ErrorIs(t, s.Commit(w), ErrStaleCopy)

	e := s.Get("p.h")
	assert.Equal(t, Invalid, e.StateIn(ResolvedUnit, "lib.c"))
	_, ok = s.TryBeginIn("p.h", ResolvedUnit, "lib.c")
	assert.True(t, ok)
}
