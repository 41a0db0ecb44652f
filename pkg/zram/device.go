// Package zram implements a compressed, RAM-backed virtual block device:
// a fixed-size volatile disk whose pages are stored compressed (or, for
// a uniformly-filled page, as a single repeated machine word) behind a
// per-page slot table.
package zram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zram-go/zram/internal/compressor"
	"github.com/zram-go/zram/internal/objpool"
	"github.com/zram-go/zram/internal/slots"
)

// PageSize is the unit of storage and compression. The spec allows any
// power-of-two page size; this implementation fixes it at the common
// 4 KiB used throughout the design's worked examples.
const PageSize = 4096

// maxObjectSize bounds how much smaller than a full page a
// compressed object must be before it is worth keeping compressed.
// Objects within one eighth of PageSize save little enough memory that
// storing them raw (and skipping decompression on every read) wins.
const maxObjectSize = PageSize - PageSize/8

// Options configures a new Device.
type Options struct {
	// LogicalBlockSize is L in the spec: it must evenly divide PageSize.
	// Zero defaults to PageSize.
	LogicalBlockSize int

	// Algorithm is the initial compressor algorithm name. Zero value
	// defaults to "snappy".
	Algorithm string

	// Logger receives the device's structured log output (decompression
	// failures, compressor errors). A nil Logger uses slog.Default.
	Logger *slog.Logger

	// PoolFactory and CompressorFactory override how a Device builds its
	// backing Pool/Compressor on init. Tests substitute fault-injecting
	// or fixed-capacity fakes here; production code leaves both nil to
	// get the internal/objpool and internal/compressor implementations.
	PoolFactory       PoolFactory
	CompressorFactory CompressorFactory
}

// Device is a compressed RAM-backed block device. The zero Device is not
// usable; construct one with New.
type Device struct {
	logicalBlockSize int
	logger           *slog.Logger

	poolFactory PoolFactory
	compFactory CompressorFactory

	// mu guards every field below: disksize, limitPages, algo, claim,
	// pool, comp, and slotTable's existence (not its per-slot contents,
	// which are independently locked — see internal/slots). Ordinary
	// reads/writes/discards and Compact take the read side; SetDisksize,
	// SetLimit, SetCompressor, and ResetDevice take the write side.
	mu sync.RWMutex

	initialized bool
	disksize    int64
	limitPages  int64
	algo        string
	claim       bool

	slotTable *slots.Table
	pool      Pool
	comp      Compressor

	// openers counts in-flight dispatch calls; ResetDevice waits for it to
	// drop to zero before tearing the device down.
	openers atomic.Int64

	st stats
}

// New returns an uninitialized Device. Call SetDisksize to bring it up.
func New(opts Options) (*Device, error) {
	lbs := opts.LogicalBlockSize
	if lbs == 0 {
		lbs = PageSize
	}

	if PageSize%lbs != 0 {
		return nil, fmt.Errorf("zram: logical block size %d does not divide page size %d", lbs, PageSize)
	}

	algo := opts.Algorithm
	if algo == "" {
		algo = compressor.Snappy
	}

	if !compressor.HasAlgorithm(algo) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poolFactory := opts.PoolFactory
	if poolFactory == nil {
		poolFactory = defaultPoolFactory
	}

	compFactory := opts.CompressorFactory
	if compFactory == nil {
		compFactory = defaultCompressorFactory
	}

	return &Device{
		logicalBlockSize: lbs,
		logger:           logger,
		poolFactory:      poolFactory,
		compFactory:      compFactory,
		algo:             algo,
	}, nil
}

// pagesForBytes rounds byte counts up to whole pages, the unit limit_pages
// and the mm_stat tuple are expressed in.
func pagesForBytes(n int64) int64 {
	return (n + PageSize - 1) / PageSize
}

// Disksize returns the current disksize in bytes, or 0 if uninitialized.
func (d *Device) Disksize() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.disksize
}

// Initialized reports whether the device has been given a disksize.
func (d *Device) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.initialized
}

// SetDisksize allocates the slot table and pool and moves the device from
// Uninitialized to Initialized. It fails with ErrBusy if already
// initialized, and with ErrInvalidIO if d is not a positive multiple of
// PageSize.
func (d *Device) SetDisksize(d2 int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return ErrBusy
	}

	if d2 <= 0 || d2%PageSize != 0 {
		return fmt.Errorf("%w: disksize must be a positive multiple of %d", ErrInvalidIO, PageSize)
	}

	comp, err := d.compFactory(d.algo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownAlgorithm, err)
	}

	d.pool = d.poolFactory()
	d.comp = comp
	d.slotTable = slots.New(int(d2 / PageSize))
	d.disksize = d2
	d.initialized = true

	return nil
}

// SetCompressor selects the algorithm used by the next SetDisksize. It is
// rejected with ErrBusy while the device is already initialized, since
// existing compressed payloads are only decodable by the algorithm that
// produced them.
func (d *Device) SetCompressor(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return ErrBusy
	}

	if !compressor.HasAlgorithm(name) {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}

	d.algo = name

	return nil
}

// Algorithms lists every selectable compressor algorithm, with the
// currently selected one reported separately — mirroring the
// configuration surface's "lists available algorithms with the current
// one marked" read semantics.
func (d *Device) Algorithms() (all []string, current string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return compressor.Algorithms(), d.algo
}

// SetLimit sets limit_pages. A value of 0 removes the cap. It takes
// effect on the next write; in-flight writes are unaffected.
func (d *Device) SetLimit(pages int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pages < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidIO)
	}

	d.limitPages = pages

	return nil
}

// ResetMaxUsed sets max_used_pages to the pool's current total page
// count. See DESIGN.md for the documented race with concurrent writes.
func (d *Device) ResetMaxUsed() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	d.st.resetMaxUsed(pagesForBytes(d.pool.UsedBytes()))

	return nil
}

// Compact defragments the pool. It may run concurrently with in-flight
// I/O on other slots; see DESIGN.md's Open Question decision for why
// this is safe.
func (d *Device) Compact() error {
	d.mu.RLock()

	if !d.initialized {
		d.mu.RUnlock()

		return ErrNotInitialized
	}

	pool := d.pool
	d.mu.RUnlock()

	pool.Compact()
	d.st.pagesCompacted.Add(1)

	return nil
}

// ResetDevice tears the device down: every slot's payload is freed, the
// pool and compressor are dropped, statistics are zeroed, and the device
// returns to Uninitialized.
//
// It follows the spec's claim interlock literally: claim is taken under
// the device lock (so a second concurrent ResetDevice observes it and
// fails with ErrBusy immediately), the lock is released, and the call
// then waits for every dispatch call that started before claim was set
// to finish — new ones refuse themselves via beginIO's claim check — and
// only then re-takes the lock to destroy the table and pool.
func (d *Device) ResetDevice() error {
	d.mu.Lock()

	if !d.initialized {
		d.mu.Unlock()

		return ErrNotInitialized
	}

	if d.claim {
		d.mu.Unlock()

		return ErrBusy
	}

	d.claim = true
	d.mu.Unlock()

	for d.openers.Load() != 0 {
		runtime.Gosched()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.slotTable.Len() {
		d.slotTable.Lock(i)
		flags, handle, _ := d.slotTable.Clear(i)
		d.slotTable.Unlock(i)

		if !slots.IsEmpty(flags, handle) && !slots.IsSame(flags) {
			d.pool.Free(objpool.Handle(handle))
		}
	}

	d.pool = nil
	d.comp = nil
	d.slotTable = nil
	d.disksize = 0
	d.initialized = false
	d.claim = false
	d.st.reset()

	return nil
}

// SlotFreeNotify frees the payload backing page i, equivalent to
// discarding that single page. It is the entry point for external reclaim
// hints (e.g. a swap layer recycling a slot).
func (d *Device) SlotFreeNotify(_ context.Context, i int) error {
	snap, end, err := d.beginIO()
	if err != nil {
		return err
	}
	defer end()

	if i < 0 || i >= snap.slotTable.Len() {
		d.st.invalidIO.Add(1)

		return ErrInvalidIO
	}

	d.freeSlot(snap, i)

	return nil
}

// IOStat returns the four-tuple of the io_stat configuration read.
func (d *Device) IOStat() IOStats {
	return IOStats{
		FailedReads:  d.st.failedReads.Load(),
		FailedWrites: d.st.failedWrites.Load(),
		InvalidIO:    d.st.invalidIO.Load(),
		NotifyFree:   d.st.notifyFree.Load(),
	}
}

// MMStat returns the seven-tuple of the mm_stat configuration read.
func (d *Device) MMStat() MMStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var memUsed int64
	if d.pool != nil {
		memUsed = d.pool.UsedBytes()
	}

	pagesStored := d.st.pagesStored.Load()

	return MMStats{
		OrigBytes:      pagesStored * PageSize,
		ComprBytes:     d.st.comprDataSize.Load(),
		MemUsedBytes:   memUsed,
		LimitBytes:     d.limitPages * PageSize,
		MaxUsedBytes:   d.st.maxUsedPages.Load() * PageSize,
		SamePages:      d.st.samePages.Load(),
		PagesCompacted: d.st.pagesCompacted.Load(),
	}
}

// DebugStat returns the version/writestall pair of the debug_stat read.
func (d *Device) DebugStat() DebugStats {
	return DebugStats{
		Version:    "1",
		Writestall: d.st.writestall.Load(),
	}
}

// ioSnapshot is a consistent view of the fields a read/write/discard call
// needs, captured once under the device read lock. Every per-page engine
// function in read.go/write.go/discard.go takes one instead of reaching
// through *Device directly, so pool/compressor/slot-table access never
// races with SetDisksize or ResetDevice swapping those fields out.
type ioSnapshot struct {
	pool       Pool
	comp       Compressor
	slotTable  *slots.Table
	limitPages int64
}

// beginIO validates that the device can currently accept an I/O request,
// registers it as an opener for the duration of the call, and returns a
// snapshot of the fields the call needs. Callers must invoke the
// returned func exactly once when done.
func (d *Device) beginIO() (snap ioSnapshot, end func(), err error) {
	d.mu.RLock()

	if !d.initialized {
		d.mu.RUnlock()
		d.st.invalidIO.Add(1)

		return ioSnapshot{}, nil, ErrNotInitialized
	}

	if d.claim {
		d.mu.RUnlock()
		d.st.invalidIO.Add(1)

		return ioSnapshot{}, nil, ErrBusy
	}

	snap = ioSnapshot{pool: d.pool, comp: d.comp, slotTable: d.slotTable, limitPages: d.limitPages}
	d.openers.Add(1)
	d.mu.RUnlock()

	return snap, func() { d.openers.Add(-1) }, nil
}
