// Package cache is an incremental analysis cache. It stores, per source,
// the results of successive analysis phases together with a validity
// State for every datum, and tracks which results go stale as sources
// change.
//
// Data is addressed by typed descriptors. A Descriptor names a datum held
// once per entry; a ContextDescriptor names a datum held once per library
// context, because the same part can be resolved differently by each
// library that includes it.
//
// Entries returned by a Store are immutable snapshots. Writers take a
// WritableCopy, fill it in, and publish it with Store.Commit; a commit
// taken against an entry that has since been invalidated fails with
// ErrStaleCopy. TryBegin moves a datum to InProcess atomically so that at
// most one worker computes it.
package cache
