package zram

import (
	"fmt"
	"sync"

	"github.com/zram-go/zram/internal/objpool"
	"github.com/zram-go/zram/internal/slots"
	"github.com/zram-go/zram/internal/wordfill"
)

// scratchPages pools PageSize-sized buffers for partial-page
// read-modify-write sequences, avoiding a fresh allocation per sub-page
// request on the hot path.
var scratchPages = sync.Pool{
	New: func() any {
		buf := make([]byte, PageSize)

		return &buf
	},
}

func getScratchPage() []byte {
	p, _ := scratchPages.Get().(*[]byte)

	return *p
}

func putScratchPage(p []byte) {
	scratchPages.Put(&p) //nolint:staticcheck // sync.Pool requires a pointer element to avoid boxing the slice header.
}

// readPage performs a full-page read of page i into dst, which must be
// exactly PageSize bytes.
func (d *Device) readPage(snap ioSnapshot, i int, dst []byte) error {
	snap.slotTable.Lock(i)

	flags, handle, size := snap.slotTable.Read(i)

	if slots.IsEmpty(flags, handle) || slots.IsSame(flags) {
		snap.slotTable.Unlock(i)
		wordfill.Fill(dst, PageSize, handle)

		return nil
	}

	payload := snap.pool.Map(objpool.Handle(handle), objpool.Read)

	var decErr error

	if int(size) == PageSize {
		copy(dst, payload)
	} else {
		stream := snap.comp.AcquireStream()
		decErr = stream.Decompress(payload[:size], dst)
		snap.comp.ReleaseStream(stream)
	}

	snap.pool.Unmap(objpool.Handle(handle))
	snap.slotTable.Unlock(i)

	if decErr != nil {
		d.logger.Error("decompress failed", "page", i, "size", size, "error", decErr)

		return fmt.Errorf("%w: page %d: %v", ErrDecompressFailed, i, decErr)
	}

	return nil
}

// readRange reads length bytes starting at byte offset off within page i
// into dst. A full-page request (off == 0, length == PageSize) goes
// straight to readPage; anything smaller is serviced through a scratch
// page: the whole page is read into it and the requested range copied out.
func (d *Device) readRange(snap ioSnapshot, i, off, length int, dst []byte) error {
	if off == 0 && length == PageSize {
		return d.readPage(snap, i, dst)
	}

	tmp := getScratchPage()
	defer putScratchPage(tmp)

	if err := d.readPage(snap, i, tmp); err != nil {
		return err
	}

	copy(dst, tmp[off:off+length])

	return nil
}
