package cache

import (
	"slices"
	"sync"
)

type idSet map[SourceID]struct{}

func (s idSet) sorted() []SourceID {
	out := make([]SourceID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// graph holds the dependency edges derived from published descriptor
// values. It is updated on every publish, while the publishing cell's lock
// is held; graph.mu is always taken after a cell lock, never before.
type graph struct {
	mu sync.Mutex

	parts      map[SourceID][]SourceID // library -> included parts
	partOf     map[SourceID]idSet      // part -> libraries including it
	imports    map[SourceID][]SourceID // library -> imported libraries
	importedBy map[SourceID]idSet      // library -> importing libraries
	holders    map[SourceID]idSet      // library -> entries with data in its context
	contextsOf map[SourceID][]SourceID // entry -> libraries it holds data for
	known      map[SourceID]bool       // library -> both edge lists Valid
}

func newGraph() *graph {
	return &graph{
		parts:      make(map[SourceID][]SourceID),
		partOf:     make(map[SourceID]idSet),
		imports:    make(map[SourceID][]SourceID),
		importedBy: make(map[SourceID]idSet),
		holders:    make(map[SourceID]idSet),
		contextsOf: make(map[SourceID][]SourceID),
		known:      make(map[SourceID]bool),
	}
}

func link(m map[SourceID]idSet, from, to SourceID) {
	s, ok := m[from]
	if !ok {
		s = make(idSet)
		m[from] = s
	}
	s[to] = struct{}{}
}

func unlink(m map[SourceID]idSet, from, to SourceID) {
	if s, ok := m[from]; ok {
		delete(s, to)
		if len(s) == 0 {
			delete(m, from)
		}
	}
}

func edgeList(e *Entry, k *key) ([]SourceID, bool) {
	s := e.global[k]
	if s.state != Valid {
		return nil, false
	}
	ids, _ := s.value.([]SourceID)
	return ids, true
}

// update rederives every edge that has e as its origin.
func (g *graph) update(e *Entry) {
	id := e.source
	parts, partsOK := edgeList(e, IncludedParts.k)
	imports, importsOK := edgeList(e, ImportedLibraries.k)
	libs := e.libraries()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.parts[id] {
		unlink(g.partOf, p, id)
	}
	delete(g.parts, id)
	if len(parts) > 0 {
		g.parts[id] = slices.Clone(parts)
		for _, p := range parts {
			link(g.partOf, p, id)
		}
	}

	for _, l := range g.imports[id] {
		unlink(g.importedBy, l, id)
	}
	delete(g.imports, id)
	if len(imports) > 0 {
		g.imports[id] = slices.Clone(imports)
		for _, l := range imports {
			link(g.importedBy, l, id)
		}
	}

	if partsOK && importsOK {
		g.known[id] = true
	} else {
		delete(g.known, id)
	}

	for _, l := range g.contextsOf[id] {
		unlink(g.holders, l, id)
	}
	delete(g.contextsOf, id)
	if len(libs) > 0 {
		g.contextsOf[id] = libs
		for _, l := range libs {
			link(g.holders, l, id)
		}
	}
}

// dependents returns the libraries whose results may depend on id: the
// libraries including it directly or through other parts, the libraries
// importing it, and id itself.
func (g *graph) dependents(id SourceID) []SourceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	deps := idSet{id: {}}
	queue := []SourceID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for l := range g.partOf[cur] {
			if _, seen := deps[l]; !seen {
				deps[l] = struct{}{}
				queue = append(queue, l)
			}
		}
	}
	for l := range g.importedBy[id] {
		deps[l] = struct{}{}
	}
	return deps.sorted()
}

// closure returns the entries holding data in lib's context and the
// libraries importing lib.
func (g *graph) closure(lib SourceID) (holders, importers []SourceID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders[lib].sorted(), g.importedBy[lib].sorted()
}

// unknown returns the libraries that have contextual data somewhere but
// whose own edge lists are not both Valid.
func (g *graph) unknown() []SourceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(idSet)
	for l := range g.holders {
		if !g.known[l] {
			out[l] = struct{}{}
		}
	}
	return out.sorted()
}

func (g *graph) partsOf(lib SourceID) []SourceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.parts[lib])
}

func (g *graph) librariesOf(part SourceID) []SourceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.partOf[part].sorted()
}

func (g *graph) importersOf(lib SourceID) []SourceID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.importedBy[lib].sorted()
}
