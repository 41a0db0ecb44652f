// Package slots implements the per-page slot table: a fixed-size array,
// one entry per page index of the virtual disk, each guarded by its own
// spinning lock so that operations on different indexes never contend.
//
// Locking architecture
//
//  1. Each [Entry] carries its own lock word (a CAS spinlock over an
//     atomic.Uint32). Table-wide operations never take a table-wide lock;
//     callers serialize only against other operations on the same index.
//  2. Entry.flags/handle/size are read and written only while the caller
//     holds the entry's lock (enforced by the Table.Lock/Unlock pairing,
//     not by the type system — the same trust boundary the source uses).
//
// The spec ties flags and size into one machine word to let a single
// compare-and-swap guard the whole entry; this implementation keeps that
// spirit (a dedicated spinlock word CAS'd to acquire/release) but stores
// flags, handle and size as separate fields guarded by it, which is the
// tagged-variant alternative the spec explicitly allows.
package slots

import (
	"sync/atomic"
)

// Flag bits held in an Entry alongside its handle and size.
const (
	// Same marks the slot as single-word-filled: handle holds the
	// repeated word itself rather than a pool handle, and size is 0.
	Same uint32 = 1 << iota
)

// Entry is one slot: the state for a single page index.
type Entry struct {
	lock atomic.Uint32 // 0 = unlocked, 1 = locked

	flags  uint32
	handle uint64 // pool handle, or (if Same set) the repeated word
	size   uint32 // stored-payload length in [0, PageSize]; PageSize means "stored raw"
}

// Table is the fixed-size slot table for a device's entire address space,
// one Entry per page index.
type Table struct {
	entries []Entry
}

// New allocates a slot table of n slots, all initially empty.
func New(n int) *Table {
	return &Table{entries: make([]Entry, n)}
}

// Len returns the number of slots in the table.
func (t *Table) Len() int { return len(t.entries) }

// Lock acquires the exclusive spinlock for slot i. It spins (yielding via
// [runtime.Gosched] is deliberately avoided — hold times are bounded by a
// single memcpy/free/clear and never span a suspension point, matching
// the spec's "spinning; hold times bounded" concurrency model) until
// acquired.
func (t *Table) Lock(i int) {
	e := &t.entries[i]
	for !e.lock.CompareAndSwap(0, 1) {
		// Busy-spin: critical sections here are O(memcpy), never blocking.
	}
}

// Unlock releases the lock held by the caller on slot i. Unlocking an
// already-unlocked slot is a programming error and panics.
func (t *Table) Unlock(i int) {
	e := &t.entries[i]
	if !e.lock.CompareAndSwap(1, 0) {
		panic("slots: unlock of unlocked slot")
	}
}

// Read returns the current flags, handle and size for slot i. Must be
// called with the slot locked.
func (t *Table) Read(i int) (flags uint32, handle uint64, size uint32) {
	e := &t.entries[i]

	return e.flags, e.handle, e.size
}

// Write sets flags, handle and size for slot i. Must be called with the
// slot locked.
func (t *Table) Write(i int, flags uint32, handle uint64, size uint32) {
	e := &t.entries[i]
	e.flags = flags
	e.handle = handle
	e.size = size
}

// Clear resets slot i to the empty state. Must be called with the slot
// locked. Returns the flags/handle/size the slot held before clearing, so
// callers can release any pool object or decrement statistics.
func (t *Table) Clear(i int) (prevFlags uint32, prevHandle uint64, prevSize uint32) {
	e := &t.entries[i]
	prevFlags, prevHandle, prevSize = e.flags, e.handle, e.size
	e.flags = 0
	e.handle = 0
	e.size = 0

	return
}

// IsEmpty reports whether (flags, handle) describe an empty slot — the
// XOR-presence case (a) from the spec's slot invariants.
func IsEmpty(flags uint32, handle uint64) bool {
	return flags&Same == 0 && handle == 0
}

// IsSame reports whether (flags) describe a same-filled slot — case (b).
func IsSame(flags uint32) bool {
	return flags&Same != 0
}
