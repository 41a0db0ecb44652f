package zram

// freeSlot clears slot i and releases whatever it held. notify_free is
// incremented unconditionally, matching the spec's discard loop, which
// counts every page it steps over rather than only the ones that held
// something.
func (d *Device) freeSlot(snap ioSnapshot, i int) {
	snap.slotTable.Lock(i)
	flags, handle, size := snap.slotTable.Clear(i)
	snap.slotTable.Unlock(i)

	d.releasePayload(snap, flags, handle, size)
	d.st.notifyFree.Add(1)
}

// discardRange frees every whole page fully covered by the byte range
// [start, start+n). A partially covered first page is skipped entirely
// (never split); a partially covered trailing remainder is likewise
// ignored. See §4.6 in the design notes for the asymmetry's rationale:
// reclaiming a fractional page costs a decompress-and-recompress for no
// memory saved, so it is deliberately a no-op.
func (d *Device) discardRange(snap ioSnapshot, start, n int64) {
	i0 := int(start / PageSize)
	o0 := int(start % PageSize)

	i := i0
	m := n

	if o0 != 0 {
		rem := int64(PageSize - o0)
		if n <= rem {
			return
		}

		i = i0 + 1
		m = n - rem
	}

	for m >= PageSize {
		d.freeSlot(snap, i)

		i++
		m -= PageSize
	}
}

// Discard is the standalone entry point for a single discard request; a
// thin convenience wrapper around Dispatch for callers that don't need
// the full Request/Segment shape. start and n are byte offsets/lengths,
// both subject to the same logical-block-size alignment validation as
// any other request.
func (d *Device) Discard(start, n int64) error {
	return d.Dispatch(Request{Op: OpDiscard, Start: start, Size: n}).Err
}
