// Package history is the versioned object store behind a notebook.
//
// Every artifact owns one append-only History of committed versions plus at
// most one pending slot. The Store is the sole mutator of this state and has
// no internal locking: callers serialize access through the engine's single
// writer event loop.
//
// Lookups of unknown names return *LookupError. A LookupError means an
// identity invariant is broken somewhere else and is not recoverable.
package history
