package zram

import (
	"fmt"
	"sync"

	"github.com/zram-go/zram/internal/objpool"
	"github.com/zram-go/zram/internal/slots"
	"github.com/zram-go/zram/internal/wordfill"
)

// compressScratch pools growable compression-output buffers, sized on
// demand to Compressor.MaxCompressedLen and kept for reuse across calls.
var compressScratch = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, PageSize)

		return &buf
	},
}

func getCompressScratch(need int) []byte {
	p, _ := compressScratch.Get().(*[]byte)
	if cap(*p) < need {
		*p = make([]byte, need)
	} else {
		*p = (*p)[:need]
	}

	return *p
}

func putCompressScratch(b []byte) {
	compressScratch.Put(&b) //nolint:staticcheck // pool element must stay a pointer to avoid boxing the slice header.
}

// releasePayload frees whatever a cleared slot was holding (a pool
// object, or nothing for empty/same-filled slots) and rolls back the
// statistics that counted it. Shared by the write commit path and the
// discard/notify path, which both clear a slot and must account for
// whatever it held before.
func (d *Device) releasePayload(snap ioSnapshot, flags uint32, handle uint64, size uint32) {
	switch {
	case slots.IsEmpty(flags, handle):
		return
	case slots.IsSame(flags):
		d.st.samePages.Add(-1)
		d.st.pagesStored.Add(-1)
	default:
		snap.pool.Free(objpool.Handle(handle))
		d.st.comprDataSize.Add(-int64(size))
		d.st.pagesStored.Add(-1)
	}
}

// commitSamePage implements the same-page fast path of the write
// pipeline: free whatever the slot held, mark it SAME with element w.
func (d *Device) commitSamePage(snap ioSnapshot, i int, w uint64) error {
	snap.slotTable.Lock(i)
	prevFlags, prevHandle, prevSize := snap.slotTable.Clear(i)
	d.releasePayload(snap, prevFlags, prevHandle, prevSize)
	snap.slotTable.Write(i, slots.Same, w, 0)
	snap.slotTable.Unlock(i)

	d.st.samePages.Add(1)
	d.st.pagesStored.Add(1)

	return nil
}

// writePage performs a full-page write of src into page i.
func (d *Device) writePage(snap ioSnapshot, i int, src []byte) error {
	if w, ok := wordfill.Detect(src); ok {
		return d.commitSamePage(snap, i, w)
	}

	stream := snap.comp.AcquireStream()
	scratch := getCompressScratch(snap.comp.MaxCompressedLen(PageSize))

	defer putCompressScratch(scratch)

	compLen, err := stream.Compress(src, scratch)
	if err != nil {
		snap.comp.ReleaseStream(stream)
		d.logger.Error("compress failed", "page", i, "error", err)

		return fmt.Errorf("%w: page %d: %v", ErrCompressFailed, i, err)
	}

	if compLen > maxObjectSize {
		compLen = PageSize
	}

	handle, ok := snap.pool.Allocate(compLen, false)
	if !ok {
		// Slow path: release the stream before the (possibly blocking)
		// sleeping allocation, then reacquire and recompress — the
		// scratch buffer's validity was tied to continuous stream
		// possession.
		snap.comp.ReleaseStream(stream)
		d.st.writestall.Add(1)

		handle, ok = snap.pool.Allocate(compLen, true)
		if !ok {
			return fmt.Errorf("%w: page %d", ErrOutOfMemory, i)
		}

		stream = snap.comp.AcquireStream()

		compLen, err = stream.Compress(src, scratch)
		if err != nil {
			snap.pool.Free(handle)
			snap.comp.ReleaseStream(stream)
			d.logger.Error("recompress failed", "page", i, "error", err)

			return fmt.Errorf("%w: page %d: %v", ErrCompressFailed, i, err)
		}

		if compLen > maxObjectSize {
			compLen = PageSize
		}
	}

	total := pagesForBytes(snap.pool.UsedBytes())
	d.st.updateMaxUsed(total)

	if snap.limitPages > 0 && total > snap.limitPages {
		snap.pool.Free(handle)
		snap.comp.ReleaseStream(stream)

		return fmt.Errorf("%w: page %d: limit_pages exceeded", ErrOutOfMemory, i)
	}

	dst := snap.pool.Map(handle, objpool.Write)
	if compLen == PageSize {
		copy(dst, src)
	} else {
		copy(dst, scratch[:compLen])
	}

	snap.pool.Unmap(handle)

	snap.slotTable.Lock(i)
	prevFlags, prevHandle, prevSize := snap.slotTable.Clear(i)
	d.releasePayload(snap, prevFlags, prevHandle, prevSize)
	snap.slotTable.Write(i, 0, uint64(handle), uint32(compLen))
	snap.slotTable.Unlock(i)

	snap.comp.ReleaseStream(stream)

	d.st.comprDataSize.Add(int64(compLen))
	d.st.pagesStored.Add(1)

	return nil
}

// writeRange writes length bytes from src at byte offset off within page
// i. A full-page request goes straight to writePage; a partial one reads
// the page into a scratch buffer, overlays src, and writes the whole page
// back, per the spec's partial-page write rule.
func (d *Device) writeRange(snap ioSnapshot, i, off, length int, src []byte) error {
	if off == 0 && length == PageSize {
		return d.writePage(snap, i, src)
	}

	tmp := getScratchPage()
	defer putScratchPage(tmp)

	if err := d.readPage(snap, i, tmp); err != nil {
		return err
	}

	copy(tmp[off:off+length], src)

	return d.writePage(snap, i, tmp)
}
