package cache

import (
	"sync"
	"sync/atomic"
)

// EntryKind tags the variant of an Entry. Only UnitEntry supports
// library-contextual storage.
type EntryKind uint8

const (
	// UnitEntry is a source that takes part in library resolution.
	UnitEntry EntryKind = iota
	// ResourceEntry is any other tracked source. It holds global data only.
	ResourceEntry
)

func (k EntryKind) String() string {
	if k == ResourceEntry {
		return "resource"
	}
	return "unit"
}

func (k EntryKind) bit() uint8 { return 1 << k }

const allKinds = 1<<UnitEntry | 1<<ResourceEntry

type unitStage uint8

const (
	stageNone unitStage = iota
	stageParsed
	stageResolved
)

type edgeKind uint8

const (
	edgeNone edgeKind = iota
	edgeParts
	edgeImports
)

// key is the identity behind a descriptor. Descriptors compare by the
// address of their key, never by name.
type key struct {
	name          string
	seq           uint64
	contextual    bool
	errors        bool
	flushable     bool
	libraryScoped bool
	stage         unitStage
	edge          edgeKind
	kinds         uint8
}

var (
	keySeq atomic.Uint64

	registryMu sync.RWMutex
	registry   []*key
)

// registered returns every global descriptor key, in creation order.
func registered() []*key {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]*key, 0, len(registry))
	for _, k := range registry {
		if !k.contextual {
			out = append(out, k)
		}
	}
	return out
}

func (k *key) recognizedBy(kind EntryKind) bool {
	return k.kinds&kind.bit() != 0
}

// Key is implemented by every global Descriptor. It lets code that does not
// care about the value type ask for states.
type Key interface {
	Name() string
	globalKey() *key
}

// ContextKey is implemented by every ContextDescriptor.
type ContextKey interface {
	Name() string
	contextKey() *key
}

// Descriptor names one kind of datum stored once per entry. T is the type
// of the value and never changes.
type Descriptor[T any] struct {
	k *key
}

// ContextDescriptor names one kind of datum stored per library context:
// a unit can hold a different value for each library that includes it.
type ContextDescriptor[T any] struct {
	k *key
}

// DescriptorOption adjusts a descriptor at construction.
type DescriptorOption func(*key)

// Flushable marks data that Flush may evict.
func Flushable() DescriptorOption {
	return func(k *key) { k.flushable = true }
}

// LibraryScoped marks global data derived from a whole library. It is
// invalidated when any unit of the library, or anything it imports, changes.
func LibraryScoped() DescriptorOption {
	return func(k *key) { k.libraryScoped = true }
}

// RecognizedBy restricts the entry kinds that hold the descriptor. Reads on
// other kinds report Invalid; writes are contract violations.
func RecognizedBy(kinds ...EntryKind) DescriptorOption {
	return func(k *key) {
		k.kinds = 0
		for _, kind := range kinds {
			k.kinds |= kind.bit()
		}
	}
}

func withStage(s unitStage) DescriptorOption {
	return func(k *key) { k.stage = s }
}

func withEdge(e edgeKind) DescriptorOption {
	return func(k *key) { k.edge = e }
}

func errorBearing() DescriptorOption {
	return func(k *key) { k.errors = true }
}

func newKey(name string, contextual bool, opts []DescriptorOption) *key {
	k := &key{
		name:       name,
		seq:        keySeq.Add(1),
		contextual: contextual,
		kinds:      allKinds,
	}
	for _, opt := range opts {
		opt(k)
	}
	if contextual {
		k.kinds = UnitEntry.bit()
	}
	registryMu.Lock()
	registry = append(registry, k)
	registryMu.Unlock()
	return k
}

// NewDescriptor creates a global descriptor. The name is for diagnostics;
// two descriptors with the same name are still distinct keys.
func NewDescriptor[T any](name string, opts ...DescriptorOption) Descriptor[T] {
	return Descriptor[T]{k: newKey(name, false, opts)}
}

// NewContextDescriptor creates a library-contextual descriptor.
func NewContextDescriptor[T any](name string, opts ...DescriptorOption) ContextDescriptor[T] {
	return ContextDescriptor[T]{k: newKey(name, true, opts)}
}

// NewErrorDescriptor creates a global descriptor whose diagnostics are
// reported by Entry.AllErrors.
func NewErrorDescriptor(name string, opts ...DescriptorOption) Descriptor[[]Diagnostic] {
	return NewDescriptor[[]Diagnostic](name, append(opts, errorBearing())...)
}

// NewContextErrorDescriptor is NewErrorDescriptor for per-library diagnostics.
func NewContextErrorDescriptor(name string, opts ...DescriptorOption) ContextDescriptor[[]Diagnostic] {
	return NewContextDescriptor[[]Diagnostic](name, append(opts, errorBearing())...)
}

func (d Descriptor[T]) Name() string   { return d.globalKey().name }
func (d Descriptor[T]) String() string { return d.Name() }

func (d Descriptor[T]) globalKey() *key {
	if d.k == nil {
		panic(violation("zero Descriptor used"))
	}
	return d.k
}

func (d ContextDescriptor[T]) Name() string   { return d.contextKey().name }
func (d ContextDescriptor[T]) String() string { return d.Name() }

func (d ContextDescriptor[T]) contextKey() *key {
	if d.k == nil {
		panic(violation("zero ContextDescriptor used"))
	}
	return d.k
}
