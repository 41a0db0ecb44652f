// Package wordfill implements the same-page detector and filler: pure,
// reentrant helpers that decide whether a page is a single repeated
// machine word, and that reproduce such a page from its word alone.
package wordfill

import "encoding/binary"

// WordSize is the machine word size same-page detection operates on.
const WordSize = 8

// Detect reports whether every WordSize-byte word in page is equal to the
// same value w, and returns that value. page's length must be a multiple
// of WordSize; Detect panics otherwise, since callers always pass a full
// page.
func Detect(page []byte) (w uint64, ok bool) {
	if len(page)%WordSize != 0 {
		panic("wordfill: page length not a multiple of word size")
	}

	if len(page) == 0 {
		return 0, false
	}

	first := binary.LittleEndian.Uint64(page[:WordSize])
	for off := WordSize; off < len(page); off += WordSize {
		if binary.LittleEndian.Uint64(page[off:off+WordSize]) != first {
			return 0, false
		}
	}

	return first, true
}

// Fill writes len bytes starting at dst[0], where len is a multiple of
// WordSize, as len/WordSize repetitions of w. w == 0 takes a clear,
// memset-style fast path.
func Fill(dst []byte, length int, w uint64) {
	if length%WordSize != 0 {
		panic("wordfill: fill length not a multiple of word size")
	}

	if length > len(dst) {
		panic("wordfill: dst too small")
	}

	dst = dst[:length]

	if w == 0 {
		clear(dst)

		return
	}

	var word [WordSize]byte

	binary.LittleEndian.PutUint64(word[:], w)

	for off := 0; off < length; off += WordSize {
		copy(dst[off:off+WordSize], word[:])
	}
}
