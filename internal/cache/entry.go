package cache

import (
	"cmp"
	"maps"
	"slices"

	"github.com/tidwall/btree"
)

// slot is the cached state of one datum.
type slot struct {
	state State
	value any
	gen   uint64
	err   error
}

type slots map[*key]slot

// slotKey addresses a slot: a global one when lib is empty, otherwise the
// slot for k under library context lib.
type slotKey struct {
	k   *key
	lib SourceID
}

// Entry is the cache record for one source. Entries handed out by a Store
// are immutable snapshots: reads never lock and never observe a partial
// update. Mutation goes through WritableCopy and Store.Commit.
type Entry struct {
	source  SourceID
	kind    EntryKind
	stamp   Stamp
	epoch   uint64
	version uint64

	global   slots
	contexts *btree.Map[SourceID, slots]
}

func newEntry(id SourceID, kind EntryKind, stamp Stamp, epoch uint64) *Entry {
	return &Entry{
		source:   id,
		kind:     kind,
		stamp:    stamp,
		epoch:    epoch,
		global:   slots{},
		contexts: new(btree.Map[SourceID, slots]),
	}
}

// clone deep-copies the slot maps. btree.Map.Copy is not used because it
// writes to the source tree, and the source is a published snapshot.
func (e *Entry) clone() *Entry {
	c := *e
	c.global = maps.Clone(e.global)
	c.contexts = new(btree.Map[SourceID, slots])
	e.contexts.Scan(func(lib SourceID, s slots) bool {
		c.contexts.Set(lib, maps.Clone(s))
		return true
	})
	return &c
}

func (e *Entry) Source() SourceID { return e.source }
func (e *Entry) Kind() EntryKind  { return e.kind }
func (e *Entry) Stamp() Stamp     { return e.stamp }

// Version increases with every publish of the entry.
func (e *Entry) Version() uint64 { return e.version }

func (e *Entry) slot(sk slotKey) slot {
	if sk.lib == "" {
		return e.global[sk.k]
	}
	m, _ := e.contexts.Get(sk.lib)
	return m[sk.k]
}

// put must only be called on an unpublished entry.
func (e *Entry) put(sk slotKey, s slot) {
	if sk.lib == "" {
		e.global[sk.k] = s
		return
	}
	m, ok := e.contexts.Get(sk.lib)
	if !ok {
		m = slots{}
		e.contexts.Set(sk.lib, m)
	}
	m[sk.k] = s
}

// globalSlot returns the slot for k, or an Invalid slot when the entry kind
// does not recognize k.
func (e *Entry) globalSlot(k *key) slot {
	if !k.recognizedBy(e.kind) {
		return slot{}
	}
	return e.global[k]
}

// State returns the state of a global datum. It never triggers computation.
func (e *Entry) State(d Key) State {
	return e.globalSlot(d.globalKey()).state
}

// Err returns the recorded cause when the datum is in the Error state.
func (e *Entry) Err(d Key) error {
	s := e.globalSlot(d.globalKey())
	if s.state != Error {
		return nil
	}
	return s.err
}

// Value returns the value of a global datum if it is Valid. Otherwise it
// returns the zero value and false.
func Value[T any](e *Entry, d Descriptor[T]) (T, bool) {
	return slotValue[T](e.globalSlot(d.globalKey()))
}

func slotValue[T any](s slot) (T, bool) {
	observeRead(s.state)
	if s.state != Valid {
		var zero T
		return zero, false
	}
	v, _ := s.value.(T)
	return v, true
}

// AllErrors collects the diagnostics of every Valid error-bearing datum:
// global descriptors first, then each library context in ascending library
// order. Within a group descriptors appear in creation order.
func (e *Entry) AllErrors() []Diagnostic {
	out := []Diagnostic{}
	out = appendErrors(out, e.global)
	e.contexts.Scan(func(_ SourceID, s slots) bool {
		out = appendErrors(out, s)
		return true
	})
	return out
}

func appendErrors(out []Diagnostic, s slots) []Diagnostic {
	for _, k := range sortedKeys(s, func(k *key) bool { return k.errors }) {
		sl := s[k]
		if sl.state != Valid {
			continue
		}
		ds, _ := sl.value.([]Diagnostic)
		out = append(out, ds...)
	}
	return out
}

func sortedKeys(s slots, keep func(*key) bool) []*key {
	keys := make([]*key, 0, len(s))
	for k := range s {
		if keep(k) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, bySeq)
	return keys
}

func bySeq(a, b *key) int { return cmp.Compare(a.seq, b.seq) }

// AnyParsedUnit returns the richest available syntax tree: a Valid
// resolved unit from any library context, else the Valid parsed unit.
func (e *Entry) AnyParsedUnit() (CompilationUnit, bool) {
	if u, ok := e.AnyResolvedUnit(); ok {
		return u, true
	}
	for _, k := range sortedKeys(e.global, func(k *key) bool { return k.stage == stageParsed }) {
		if u, ok := unitOf(e.global[k]); ok {
			return u, true
		}
	}
	return nil, false
}

// AnyResolvedUnit returns a Valid resolved unit from any library context.
// When several libraries hold one, the lowest library id wins.
func (e *Entry) AnyResolvedUnit() (CompilationUnit, bool) {
	var (
		found CompilationUnit
		ok    bool
	)
	e.contexts.Scan(func(_ SourceID, s slots) bool {
		for _, k := range sortedKeys(s, func(k *key) bool { return k.stage == stageResolved }) {
			if found, ok = unitOf(s[k]); ok {
				return false
			}
		}
		return true
	})
	return found, ok
}

func unitOf(s slot) (CompilationUnit, bool) {
	if s.state != Valid {
		return nil, false
	}
	u, ok := s.value.(CompilationUnit)
	return u, ok && u != nil
}

// DescriptorState is one row of Entry.Descriptors.
type DescriptorState struct {
	Descriptor string
	Library    SourceID
	State      State
	Err        error
}

// Descriptors lists the state of every global descriptor this entry
// recognizes, followed by every contextual datum the entry holds.
func (e *Entry) Descriptors() []DescriptorState {
	keys := registered()
	slices.SortFunc(keys, bySeq)

	var out []DescriptorState
	for _, k := range keys {
		if !k.recognizedBy(e.kind) {
			continue
		}
		s := e.global[k]
		out = append(out, DescriptorState{Descriptor: k.name, State: s.state, Err: s.err})
	}
	e.contexts.Scan(func(lib SourceID, s slots) bool {
		for _, k := range sortedKeys(s, func(*key) bool { return true }) {
			sl := s[k]
			out = append(out, DescriptorState{Descriptor: k.name, Library: lib, State: sl.state, Err: sl.err})
		}
		return true
	})
	return out
}
