package anacache

import (
	"github.com/jward/anacache/internal/cache"
	"github.com/jward/anacache/internal/runtime"
)

// Public type aliases for the cache and runtime types used by the Engine
// and QueryBuilder APIs.

type Store = cache.Store
type Entry = cache.Entry
type SourceID = cache.SourceID
type State = cache.State
type Diagnostic = cache.Diagnostic
type DescriptorState = cache.DescriptorState
type Namespace = cache.Namespace
type LibraryElement = cache.LibraryElement
type Decl = runtime.Decl

// Unit is the parsed form of one source, stored under cache.ParsedUnit.
type Unit struct {
	ID SourceID
	*runtime.Unit
}

func (u *Unit) Source() SourceID { return u.ID }

// ResolvedUnit is a Unit resolved as part of one library, stored under
// cache.ResolvedUnit in that library's context.
type ResolvedUnit struct {
	*Unit
	Library SourceID
	// Imports maps each library imported by Library to its public namespace.
	Imports map[SourceID]Namespace
}
