package zram

import (
	"fmt"
	"sync/atomic"
)

// stats holds every device counter named in the configuration surface's
// io_stat/mm_stat/debug_stat tuples. Counters are updated without the
// device lock, using atomics, matching the spec's "statistics counters
// are updated without the device lock" rule; only max_used_pages needs
// a compare-and-swap loop since it tracks a running maximum rather than
// a running sum.
type stats struct {
	numReads    atomic.Uint64
	numWrites   atomic.Uint64
	failedReads atomic.Uint64
	failedWrites atomic.Uint64
	invalidIO   atomic.Uint64
	notifyFree  atomic.Uint64
	writestall  atomic.Uint64

	samePages     atomic.Int64
	pagesStored   atomic.Int64
	comprDataSize atomic.Int64
	maxUsedPages  atomic.Int64

	pagesCompacted atomic.Uint64
}

func (s *stats) reset() {
	s.numReads.Store(0)
	s.numWrites.Store(0)
	s.failedReads.Store(0)
	s.failedWrites.Store(0)
	s.invalidIO.Store(0)
	s.notifyFree.Store(0)
	s.writestall.Store(0)
	s.samePages.Store(0)
	s.pagesStored.Store(0)
	s.comprDataSize.Store(0)
	s.maxUsedPages.Store(0)
	s.pagesCompacted.Store(0)
}

// updateMaxUsed raises max_used_pages to total if total is larger,
// retrying under contention. This intentionally races with resetMaxUsed
// per the spec's open-question decision: a write that overlaps a reset
// may still bump the mark back up, and that is the documented behavior,
// not a bug.
func (s *stats) updateMaxUsed(total int64) {
	for {
		cur := s.maxUsedPages.Load()
		if total <= cur {
			return
		}

		if s.maxUsedPages.CompareAndSwap(cur, total) {
			return
		}
	}
}

func (s *stats) resetMaxUsed(total int64) {
	s.maxUsedPages.Store(total)
}

// IOStats is the four-tuple returned by the io_stat configuration read.
type IOStats struct {
	FailedReads  uint64
	FailedWrites uint64
	InvalidIO    uint64
	NotifyFree   uint64
}

// MMStats is the seven-tuple returned by the mm_stat configuration read.
type MMStats struct {
	OrigBytes      int64
	ComprBytes     int64
	MemUsedBytes   int64
	LimitBytes     int64
	MaxUsedBytes   int64
	SamePages      int64
	PagesCompacted uint64
}

// DebugStats is returned by the debug_stat configuration read.
type DebugStats struct {
	Version    string
	Writestall uint64
}

// String renders DebugStats the way debug_stat is conventionally printed:
// a version tag followed by the writestall counter.
func (d DebugStats) String() string {
	return fmt.Sprintf("version: %s\nwritestall: %d\n", d.Version, d.Writestall)
}
