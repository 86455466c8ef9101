package cache

import (
	"slices"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

// StampFunc reports the current modification stamp of a source. ok is
// false when the stamp cannot be determined; the entry is then trusted.
type StampFunc func(id SourceID) (stamp Stamp, ok bool)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for replacement, invalidation and commit
// events. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithStamper sets the function consulted on every Get to detect content
// changes.
func WithStamper(f StampFunc) Option {
	return func(s *Store) { s.stamp = f }
}

// WithClassifier sets the entry kind chosen for newly created entries.
// The default creates UnitEntry for every source.
func WithClassifier(f func(SourceID) EntryKind) Option {
	return func(s *Store) { s.classify = f }
}

// cell owns one source's published entry. mu serializes publishers;
// readers only load cur.
type cell struct {
	mu  sync.Mutex
	cur atomic.Pointer[Entry]
}

// Store maps source identities to entries. There is no store-wide lock:
// entries are synchronized individually.
type Store struct {
	cells    cmap.ConcurrentMap[SourceID, *cell]
	graph    *graph
	log      zerolog.Logger
	stamp    StampFunc
	classify func(SourceID) EntryKind
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		cells:    cmap.NewStringer[SourceID, *cell](),
		graph:    newGraph(),
		log:      zerolog.Nop(),
		classify: func(SourceID) EntryKind { return UnitEntry },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) currentStamp(id SourceID) (Stamp, bool) {
	if s.stamp == nil {
		return 0, false
	}
	return s.stamp(id)
}

// cell returns the cell for id, creating it with a fresh entry if needed.
func (s *Store) cell(id SourceID) *cell {
	if id == "" {
		panic(violation("empty source id"))
	}
	if c, ok := s.cells.Get(id); ok {
		return c
	}
	st, _ := s.currentStamp(id)
	fresh := &cell{}
	fresh.cur.Store(newEntry(id, s.classify(id), st, 0))
	c := s.cells.Upsert(id, fresh, func(exist bool, inMap, newValue *cell) *cell {
		if exist {
			return inMap
		}
		return newValue
	})
	if c == fresh {
		cacheEntries.Inc()
	}
	return c
}

// lookup returns the cell for id without creating one.
func (s *Store) lookup(id SourceID) (*cell, bool) {
	return s.cells.Get(id)
}

// publish must be called with c.mu held.
func (s *Store) publish(c *cell, e *Entry) {
	c.cur.Store(e)
	s.graph.update(e)
}

// Get returns the entry for id, creating a fresh one on first access. If
// the source's stamp no longer matches the entry, the entry is replaced by
// a fresh one and its dependents are invalidated before Get returns.
func (s *Store) Get(id SourceID) *Entry {
	c := s.cell(id)
	e := c.cur.Load()
	st, ok := s.currentStamp(id)
	if !ok || st == e.stamp {
		return e
	}
	return s.replace(id, c, st)
}

func (s *Store) replace(id SourceID, c *cell, st Stamp) *Entry {
	deps := s.graph.dependents(id)

	c.mu.Lock()
	old := c.cur.Load()
	if old.stamp == st {
		c.mu.Unlock()
		return old
	}
	fresh := newEntry(id, s.classify(id), st, old.epoch+1)
	s.publish(c, fresh)
	c.mu.Unlock()

	cacheReplacementsTotal.Inc()
	s.log.Debug().
		Str("source", id.String()).
		Uint64("old_stamp", uint64(old.stamp)).
		Uint64("new_stamp", uint64(st)).
		Msg("entry replaced")

	s.invalidateLibraries(deps, ReasonContentChanged)
	return c.cur.Load()
}

// Peek returns the entry for id without creating one and without a stamp
// check.
func (s *Store) Peek(id SourceID) (*Entry, bool) {
	c, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return c.cur.Load(), true
}

// Commit publishes the writes of w. It fails with ErrStaleCopy when the
// entry was invalidated or replaced after the copy was taken, or when any
// slot written by w was changed by someone else in the meantime. Slots w
// did not write keep their current values.
func (s *Store) Commit(w *WritableEntry) error {
	if !w.Dirty() {
		return nil
	}
	id := w.base.source
	c := s.cell(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	if cur.epoch != w.base.epoch || cur.stamp != w.base.stamp {
		cacheCommitsTotal.WithLabelValues("stale").Inc()
		s.log.Debug().Str("source", id.String()).Msg("commit rejected: entry invalidated")
		return zerr.With(zerr.With(zerr.Wrap(ErrStaleCopy, "entry invalidated since copy"),
			"source", id.String()), "epoch", cur.epoch)
	}
	// The source may have changed since the copy was taken, before any Get
	// noticed.
	if st, ok := s.currentStamp(id); ok && st != w.base.stamp {
		cacheCommitsTotal.WithLabelValues("stale").Inc()
		s.log.Debug().Str("source", id.String()).Msg("commit rejected: source changed")
		return zerr.With(zerr.With(zerr.Wrap(ErrStaleCopy, "source changed since copy"),
			"source", id.String()), "stamp", st)
	}
	for sk, gen := range w.dirty {
		if cur.slot(sk).gen != gen {
			cacheCommitsTotal.WithLabelValues("conflict").Inc()
			s.log.Debug().
				Str("source", id.String()).
				Str("descriptor", sk.k.name).
				Str("library", sk.lib.String()).
				Msg("commit rejected: slot changed")
			return zerr.With(zerr.With(zerr.Wrap(ErrStaleCopy, "slot changed since copy"),
				"source", id.String()), "descriptor", sk.k.name)
		}
	}

	next := cur.clone()
	for sk := range w.dirty {
		sl := w.cur.slot(sk)
		sl.gen = cur.slot(sk).gen + 1
		next.put(sk, sl)
	}
	next.version++
	s.publish(c, next)
	cacheCommitsTotal.WithLabelValues("ok").Inc()
	return nil
}

// update applies fn to one slot under the entry's lock and publishes the
// result when fn reports a change. It returns the slot fn was given.
func (s *Store) update(id SourceID, sk slotKey, fn func(slot) (slot, bool)) (slot, bool) {
	s.Get(id)
	c := s.cell(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	if sk.k.contextual {
		cur.checkContext(sk.k, sk.lib)
	} else if !sk.k.recognizedBy(cur.kind) {
		panic(violation("descriptor not recognized by entry kind",
			"descriptor", sk.k.name, "source", id, "kind", cur.kind.String()))
	}

	old := cur.slot(sk)
	nextSlot, changed := fn(old)
	if !changed {
		return old, false
	}
	nextSlot.gen = old.gen + 1
	next := cur.clone()
	next.put(sk, nextSlot)
	next.version++
	s.publish(c, next)
	return old, true
}

func beginFn(old slot) (slot, bool) {
	if !old.state.canBegin() {
		return old, false
	}
	return slot{state: InProcess}, true
}

// TryBegin atomically moves a datum from Invalid or Flushed to InProcess.
// It returns the state it found and whether this caller now owns the
// computation. A caller observing InProcess must wait or skip.
func (s *Store) TryBegin(id SourceID, d Key) (State, bool) {
	sk := slotKey{k: d.globalKey()}
	old, ok := s.update(id, sk, beginFn)
	return old.state, ok
}

// TryBeginIn is TryBegin for a contextual datum.
func (s *Store) TryBeginIn(id SourceID, d ContextKey, lib SourceID) (State, bool) {
	sk := slotKey{k: d.contextKey(), lib: lib}
	old, ok := s.update(id, sk, beginFn)
	return old.state, ok
}

// Begin is TryBegin followed by WritableCopy of the entry it published.
func (s *Store) Begin(id SourceID, d Key) (*WritableEntry, bool) {
	if _, ok := s.TryBegin(id, d); !ok {
		return nil, false
	}
	return s.Get(id).WritableCopy(), true
}

// BeginIn is Begin for a contextual datum.
func (s *Store) BeginIn(id SourceID, d ContextKey, lib SourceID) (*WritableEntry, bool) {
	if _, ok := s.TryBeginIn(id, d, lib); !ok {
		return nil, false
	}
	return s.Get(id).WritableCopy(), true
}

func abandonFn(old slot) (slot, bool) {
	if old.state != InProcess {
		return old, false
	}
	return slot{state: Invalid}, true
}

// Abandon returns an InProcess datum to Invalid. Drivers call it when they
// give up a computation so the datum is not left locked.
func (s *Store) Abandon(id SourceID, d Key) {
	s.update(id, slotKey{k: d.globalKey()}, abandonFn)
}

// AbandonIn is Abandon for a contextual datum.
func (s *Store) AbandonIn(id SourceID, d ContextKey, lib SourceID) {
	s.update(id, slotKey{k: d.contextKey(), lib: lib}, abandonFn)
}

func failFn(cause error) func(slot) (slot, bool) {
	return func(old slot) (slot, bool) {
		if old.state != InProcess && old.state != Invalid {
			return old, false
		}
		return stateSlot(Error, cause), true
	}
}

// Fail records that computing a datum failed. A nil cause records
// ErrPhaseFailed. Only InProcess or Invalid data move to Error.
func (s *Store) Fail(id SourceID, d Key, cause error) {
	s.update(id, slotKey{k: d.globalKey()}, failFn(cause))
}

// FailIn is Fail for a contextual datum.
func (s *Store) FailIn(id SourceID, d ContextKey, lib SourceID, cause error) {
	s.update(id, slotKey{k: d.contextKey(), lib: lib}, failFn(cause))
}

// Put stores v in a fresh writable copy and commits it.
func Put[T any](s *Store, id SourceID, d Descriptor[T], v T) error {
	w := s.Get(id).WritableCopy()
	SetValue(w, d, v)
	return s.Commit(w)
}

// PutIn is Put for a contextual datum.
func PutIn[T any](s *Store, id SourceID, d ContextDescriptor[T], lib SourceID, v T) error {
	w := s.Get(id).WritableCopy()
	SetValueIn(w, d, lib, v)
	return s.Commit(w)
}

// Flush moves the Valid flushable data of one entry to Flushed. No other
// entry is touched. It returns the number of slots flushed.
func (s *Store) Flush(id SourceID) int {
	c, ok := s.lookup(id)
	if !ok {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	next := cur.clone()
	n := flushSlots(next.global)
	next.contexts.Scan(func(_ SourceID, m slots) bool {
		n += flushSlots(m)
		return true
	})
	if n == 0 {
		return 0
	}
	next.version++
	s.publish(c, next)
	cacheFlushesTotal.Add(float64(n))
	s.log.Debug().Str("source", id.String()).Int("slots", n).Msg("entry flushed")
	return n
}

func flushSlots(m slots) int {
	n := 0
	for k, sl := range m {
		if k.flushable && sl.state == Valid {
			m[k] = slot{state: Flushed, gen: sl.gen + 1}
			n++
		}
	}
	return n
}

// FlushAll flushes every entry and returns the number of slots flushed.
func (s *Store) FlushAll() int {
	n := 0
	for _, id := range s.Sources() {
		n += s.Flush(id)
	}
	return n
}

// Sources returns every source with an entry, sorted.
func (s *Store) Sources() []SourceID {
	ids := s.cells.Keys()
	slices.Sort(ids)
	return ids
}

// Len returns the number of entries.
func (s *Store) Len() int { return s.cells.Count() }

// PartsOf returns the parts last recorded for library lib.
func (s *Store) PartsOf(lib SourceID) []SourceID { return s.graph.partsOf(lib) }

// LibrariesOf returns the libraries last recorded as including part.
func (s *Store) LibrariesOf(part SourceID) []SourceID { return s.graph.librariesOf(part) }

// ImportersOf returns the libraries last recorded as importing lib.
func (s *Store) ImportersOf(lib SourceID) []SourceID { return s.graph.importersOf(lib) }
