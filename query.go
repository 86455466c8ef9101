package anacache

import "github.com/jward/anacache/internal/cache"

// QueryBuilder reads analysis results from the cache. Queries never run
// analysis phases: results that were never computed, or were invalidated
// since, read as absent.
type QueryBuilder struct {
	store *cache.Store
}

// entry returns the current entry for path, or false when the path was
// never analyzed.
func (q *QueryBuilder) entry(path string) (*Entry, bool) {
	id := SourceFor(path)
	if _, ok := q.store.Peek(id); !ok {
		return nil, false
	}
	return q.store.Get(id), true
}

// Errors returns every cached diagnostic of path: parse errors first, then
// resolution errors and hints per library.
func (q *QueryBuilder) Errors(path string) []Diagnostic {
	e, ok := q.entry(path)
	if !ok {
		return nil
	}
	return e.AllErrors()
}

// States returns the state of every datum of path.
func (q *QueryBuilder) States(path string) []DescriptorState {
	e, ok := q.entry(path)
	if !ok {
		return nil
	}
	return e.Descriptors()
}

// Outline returns the top-level declarations of path from whichever
// compilation unit is cached, resolved or not.
func (q *QueryBuilder) Outline(path string) []Decl {
	e, ok := q.entry(path)
	if !ok {
		return nil
	}
	cu, ok := e.AnyParsedUnit()
	if !ok {
		return nil
	}
	switch u := cu.(type) {
	case *ResolvedUnit:
		return u.Decls
	case *Unit:
		return u.Decls
	}
	return nil
}

// Libraries returns the libraries path has results in, ascending.
func (q *QueryBuilder) Libraries(path string) []SourceID {
	e, ok := q.entry(path)
	if !ok {
		return nil
	}
	return e.Contexts()
}

// Library returns the assembled ELEMENT of the library defined by path.
func (q *QueryBuilder) Library(path string) (*LibraryElement, bool) {
	e, ok := q.entry(path)
	if !ok {
		return nil, false
	}
	return cache.Value(e, cache.Element)
}

// Diagnostics returns the diagnostics of every analyzed source, by source.
func (q *QueryBuilder) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, id := range q.store.Sources() {
		out = append(out, q.store.Get(id).AllErrors()...)
	}
	return out
}

// Summary counts sources, diagnostics and datum states across the cache.
type Summary struct {
	Sources    int
	Units      int
	Resources  int
	Libraries  int
	Parts      int
	Launchable int

	Errors   int
	Warnings int
	Hints    int

	// States counts data per state name, global and contextual alike.
	States map[string]int
}

func (q *QueryBuilder) Summary() Summary {
	s := Summary{States: make(map[string]int)}
	for _, id := range q.store.Sources() {
		e := q.store.Get(id)
		s.Sources++
		if e.Kind() == cache.ResourceEntry {
			s.Resources++
		} else {
			s.Units++
		}
		if kind, ok := cache.Value(e, cache.SourceKindData); ok {
			switch kind {
			case cache.KindLibrary:
				s.Libraries++
			case cache.KindPart:
				s.Parts++
			}
		}
		if l, ok := cache.Value(e, cache.IsLaunchable); ok && l {
			s.Launchable++
		}
		for _, d := range e.AllErrors() {
			switch d.Severity {
			case cache.SeverityError:
				s.Errors++
			case cache.SeverityWarning:
				s.Warnings++
			case cache.SeverityHint:
				s.Hints++
			}
		}
		for _, ds := range e.Descriptors() {
			s.States[ds.State.String()]++
		}
	}
	return s
}
