package cache

// Library-contextual access. Only UnitEntry holds per-library data; asking
// any other entry kind, or passing no library, is a contract violation.

func (e *Entry) contextSlot(k *key, lib SourceID) slot {
	e.checkContext(k, lib)
	m, _ := e.contexts.Get(lib)
	return m[k]
}

func (e *Entry) checkContext(k *key, lib SourceID) {
	if e.kind != UnitEntry {
		panic(violation("contextual descriptor on non-contextual entry",
			"descriptor", k.name, "source", e.source, "kind", e.kind.String()))
	}
	if lib == "" {
		panic(violation("contextual descriptor requires a library",
			"descriptor", k.name, "source", e.source))
	}
}

// StateIn returns the state of a contextual datum for library lib.
func (e *Entry) StateIn(d ContextKey, lib SourceID) State {
	return e.contextSlot(d.contextKey(), lib).state
}

// ErrIn returns the recorded cause of an Error datum for library lib.
func (e *Entry) ErrIn(d ContextKey, lib SourceID) error {
	s := e.contextSlot(d.contextKey(), lib)
	if s.state != Error {
		return nil
	}
	return s.err
}

// ValueIn returns the value stored for library lib if it is Valid. Values
// stored for other libraries are never visible.
func ValueIn[T any](e *Entry, d ContextDescriptor[T], lib SourceID) (T, bool) {
	return slotValue[T](e.contextSlot(d.contextKey(), lib))
}

// Contexts lists, in ascending order, the libraries this entry holds
// non-Invalid data for.
func (e *Entry) Contexts() []SourceID {
	var out []SourceID
	e.contexts.Scan(func(lib SourceID, s slots) bool {
		for _, sl := range s {
			if sl.state != Invalid {
				out = append(out, lib)
				break
			}
		}
		return true
	})
	return out
}

// libraries lists every library the entry stores slots for.
func (e *Entry) libraries() []SourceID {
	return e.contexts.Keys()
}
