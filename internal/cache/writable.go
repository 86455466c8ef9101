package cache

// WritableEntry is a private, mutable copy of an Entry. A computation
// builds its results here and publishes them all at once with
// Store.Commit. Take the copy before reading the inputs of the computation:
// any invalidation after that point makes the commit fail.
type WritableEntry struct {
	base  *Entry
	cur   *Entry
	dirty map[slotKey]uint64 // base generation of each written slot
}

// WritableCopy returns a mutable copy decoupled from readers of e.
func (e *Entry) WritableCopy() *WritableEntry {
	return &WritableEntry{
		base:  e,
		cur:   e.clone(),
		dirty: make(map[slotKey]uint64),
	}
}

func (w *WritableEntry) Source() SourceID { return w.base.source }

// Stamp is the modification stamp of the entry the copy was taken from.
func (w *WritableEntry) Stamp() Stamp { return w.base.stamp }

// Dirty reports whether anything was written to the copy.
func (w *WritableEntry) Dirty() bool { return len(w.dirty) > 0 }

// Entry returns a snapshot of the copy, including uncommitted writes.
func (w *WritableEntry) Entry() *Entry { return w.cur.clone() }

func (w *WritableEntry) State(d Key) State { return w.cur.State(d) }

func (w *WritableEntry) StateIn(d ContextKey, lib SourceID) State {
	return w.cur.StateIn(d, lib)
}

func (w *WritableEntry) checkGlobal(k *key) {
	if !k.recognizedBy(w.cur.kind) {
		panic(violation("descriptor not recognized by entry kind",
			"descriptor", k.name, "source", w.cur.source, "kind", w.cur.kind.String()))
	}
}

func (w *WritableEntry) write(sk slotKey, s slot) {
	if _, seen := w.dirty[sk]; !seen {
		w.dirty[sk] = w.base.slot(sk).gen
	}
	w.cur.put(sk, s)
}

func checkState(name string, s State) {
	if s == Valid {
		panic(violation("VALID is set through SetValue", "descriptor", name))
	}
	if int(s) >= len(stateNames) {
		panic(violation("unknown state", "descriptor", name, "state", int(s)))
	}
}

// SetValue stores v and marks the datum Valid.
func SetValue[T any](w *WritableEntry, d Descriptor[T], v T) {
	k := d.globalKey()
	w.checkGlobal(k)
	w.write(slotKey{k: k}, slot{state: Valid, value: v})
}

// SetValueIn stores v for library lib and marks the datum Valid there.
func SetValueIn[T any](w *WritableEntry, d ContextDescriptor[T], lib SourceID, v T) {
	k := d.contextKey()
	w.cur.checkContext(k, lib)
	w.write(slotKey{k: k, lib: lib}, slot{state: Valid, value: v})
}

// SetState transitions a global datum without a value. Error records
// ErrPhaseFailed as the cause; use SetError to record a specific one.
func (w *WritableEntry) SetState(d Key, s State) {
	k := d.globalKey()
	w.checkGlobal(k)
	checkState(k.name, s)
	w.write(slotKey{k: k}, stateSlot(s, nil))
}

// SetStateIn is SetState for library lib.
func (w *WritableEntry) SetStateIn(d ContextKey, lib SourceID, s State) {
	k := d.contextKey()
	w.cur.checkContext(k, lib)
	checkState(k.name, s)
	w.write(slotKey{k: k, lib: lib}, stateSlot(s, nil))
}

// SetError marks a global datum Error with cause.
func (w *WritableEntry) SetError(d Key, cause error) {
	k := d.globalKey()
	w.checkGlobal(k)
	w.write(slotKey{k: k}, stateSlot(Error, cause))
}

// SetErrorIn marks a contextual datum Error with cause.
func (w *WritableEntry) SetErrorIn(d ContextKey, lib SourceID, cause error) {
	k := d.contextKey()
	w.cur.checkContext(k, lib)
	w.write(slotKey{k: k, lib: lib}, stateSlot(Error, cause))
}

func stateSlot(s State, cause error) slot {
	if s != Error {
		return slot{state: s}
	}
	if cause == nil {
		cause = ErrPhaseFailed
	}
	return slot{state: Error, err: cause}
}
