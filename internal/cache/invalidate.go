package cache

import "slices"

// Reason explains why data was invalidated.
type Reason string

const (
	// ReasonContentChanged: the source's content identity changed.
	ReasonContentChanged Reason = "content_changed"
	// ReasonExplicit: a caller asked for the invalidation.
	ReasonExplicit Reason = "explicit"
	// ReasonDependencyChanged: data the datum was derived from changed.
	ReasonDependencyChanged Reason = "dependency_changed"
)

// Invalidate resets every datum of id to Invalid and propagates to the
// libraries that depend on it: libraries including id as a part, libraries
// importing it, and id itself as a library. For each such library, its
// library-scoped data and all data stored under its context on any entry
// become Invalid, recursively through importing libraries. Libraries that
// hold contextual data but whose edges are not known are invalidated too.
// Invalidating twice yields the same states as invalidating once.
func (s *Store) Invalidate(id SourceID, reason Reason) {
	c := s.cell(id)
	deps := s.graph.dependents(id)

	c.mu.Lock()
	old := c.cur.Load()
	st := old.stamp
	if cur, ok := s.currentStamp(id); ok {
		st = cur
	}
	s.publish(c, newEntry(id, old.kind, st, old.epoch+1))
	c.mu.Unlock()

	cacheInvalidationsTotal.WithLabelValues(string(reason)).Inc()
	s.log.Debug().
		Str("source", id.String()).
		Str("reason", string(reason)).
		Int("dependents", len(deps)).
		Msg("entry invalidated")

	s.invalidateLibraries(deps, reason)
}

// invalidateLibraries runs the library closure for each of libs and for
// every library with unknown edges.
func (s *Store) invalidateLibraries(libs []SourceID, reason Reason) {
	queue := append(slices.Clone(libs), s.graph.unknown()...)
	visited := make(idSet, len(queue))
	touched := 0
	for len(queue) > 0 {
		lib := queue[0]
		queue = queue[1:]
		if _, seen := visited[lib]; seen {
			continue
		}
		visited[lib] = struct{}{}

		holders, importers := s.graph.closure(lib)
		if s.dropLibraryScoped(lib) {
			touched++
		}
		for _, h := range holders {
			if s.dropContext(h, lib) {
				touched++
			}
		}
		queue = append(queue, importers...)
	}
	if touched > 0 {
		cacheInvalidationsTotal.WithLabelValues(string(ReasonDependencyChanged)).Add(float64(touched))
		s.log.Debug().
			Str("cause", string(reason)).
			Int("libraries", len(visited)).
			Int("entries", touched).
			Msg("dependents invalidated")
	}
}

// mutate clones the entry of id, applies fn and publishes the result with
// a new epoch when fn reports a change. Entries that do not exist are left
// alone.
func (s *Store) mutate(id SourceID, fn func(*Entry) bool) bool {
	c, ok := s.lookup(id)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cur.Load().clone()
	if !fn(next) {
		return false
	}
	next.epoch++
	next.version++
	s.publish(c, next)
	return true
}

func (s *Store) dropLibraryScoped(lib SourceID) bool {
	return s.mutate(lib, func(e *Entry) bool {
		changed := false
		for k, sl := range e.global {
			if k.libraryScoped && sl.state != Invalid {
				delete(e.global, k)
				changed = true
			}
		}
		return changed
	})
}

func (s *Store) dropContext(id, lib SourceID) bool {
	return s.mutate(id, func(e *Entry) bool {
		_, ok := e.contexts.Delete(lib)
		return ok
	})
}
