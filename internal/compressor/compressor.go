// Package compressor adapts real compression libraries to the block
// device's Compressor/Stream capability: acquiring a per-executor stream,
// compressing/decompressing through it, and releasing it.
//
// Streams are rented from a sync.Pool rather than pinned per-CPU (Go
// gives user code no CPU-pinning or preemption-disabling primitives) —
// the same rent-for-non-suspending-work, return-when-done shape the spec
// describes, expressed with the idiomatic Go primitive for exactly that
// pattern.
package compressor

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm name constants. cznic/exp/lldb names Snappy directly in its
// block-format documentation as the compression format its allocator
// uses; zstd is wired in as a second, independently selectable algorithm
// (klauspost/compress rides along the pack as an indirect dependency of
// Easonliuliang-purify, promoted here to a direct, exercised one).
const (
	Snappy = "snappy"
	Zstd   = "zstd"
)

// Algorithms lists every algorithm name has_algorithm/compressor listing
// can report.
func Algorithms() []string { return []string{Snappy, Zstd} }

// HasAlgorithm reports whether name is a known, selectable algorithm.
func HasAlgorithm(name string) bool {
	switch name {
	case Snappy, Zstd:
		return true
	default:
		return false
	}
}

// Compressor is bound to a single algorithm for its entire lifetime.
// The spec forbids switching algorithms on an initialized device (every
// existing compressed object was produced by the current algorithm and
// must stay decodable), so Compressor never exposes a way to change it;
// callers construct a new one on re-init.
type Compressor struct {
	algo string
	pool sync.Pool
}

// New returns a Compressor bound to algo, or an error if algo is unknown.
func New(algo string) (*Compressor, error) {
	if !HasAlgorithm(algo) {
		return nil, fmt.Errorf("compressor: unknown algorithm %q", algo)
	}

	c := &Compressor{algo: algo}
	c.pool.New = func() any { return newStream(algo) }

	return c, nil
}

// Algorithm returns the bound algorithm's name.
func (c *Compressor) Algorithm() string { return c.algo }

// MaxCompressedLen returns a safe upper bound on the compressed size of
// an n-byte input, used to size scratch buffers.
func (c *Compressor) MaxCompressedLen(n int) int {
	switch c.algo {
	case Snappy:
		return snappy.MaxEncodedLen(n)
	case Zstd:
		// klauspost/compress/zstd exposes no MaxEncodedLen; zstd's frame
		// overhead on incompressible input is small and bounded, so a
		// fixed margin is a safe, if slightly generous, upper bound.
		return n + n/8 + 64
	default:
		return n
	}
}

// AcquireStream rents a per-executor compression stream. The caller must
// return it via ReleaseStream and must not hold it across a suspension
// point (the spec's preemption-discipline rule).
func (c *Compressor) AcquireStream() *Stream {
	s, _ := c.pool.Get().(*Stream)

	return s
}

// ReleaseStream returns a stream rented via AcquireStream.
func (c *Compressor) ReleaseStream(s *Stream) {
	c.pool.Put(s)
}

// Stream is a rented, reusable compressor/decompressor instance.
type Stream struct {
	algo string

	zEnc *zstd.Encoder
	zDec *zstd.Decoder
}

func newStream(algo string) *Stream {
	s := &Stream{algo: algo}

	if algo == Zstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("compressor: create zstd encoder: %v", err))
		}

		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("compressor: create zstd decoder: %v", err))
		}

		s.zEnc = enc
		s.zDec = dec
	}

	return s
}

// Compress compresses src into scratch, which must have capacity for at
// least Compressor.MaxCompressedLen(len(src)) bytes, and returns the
// number of bytes written.
func (s *Stream) Compress(src, scratch []byte) (int, error) {
	switch s.algo {
	case Snappy:
		out := snappy.Encode(scratch[:0], src)

		return copyResult(scratch, out), nil
	case Zstd:
		out := s.zEnc.EncodeAll(src, scratch[:0])

		return copyResult(scratch, out), nil
	default:
		return 0, fmt.Errorf("compressor: unknown algorithm %q", s.algo)
	}
}

// Decompress decompresses src into dst, which must be large enough to
// hold the original (uncompressed) payload, returning an error if src is
// not a valid encoding for this stream's algorithm.
func (s *Stream) Decompress(src, dst []byte) error {
	switch s.algo {
	case Snappy:
		out, err := snappy.Decode(dst[:cap(dst)], src)
		if err != nil {
			return fmt.Errorf("snappy: decode: %w", err)
		}

		copyResult(dst, out)

		return nil
	case Zstd:
		out, err := s.zDec.DecodeAll(src, dst[:0])
		if err != nil {
			return fmt.Errorf("zstd: decode: %w", err)
		}

		copyResult(dst, out)

		return nil
	default:
		return fmt.Errorf("compressor: unknown algorithm %q", s.algo)
	}
}

// copyResult copies out into dst's backing array when the library
// allocated a fresh slice instead of reusing dst's capacity, and returns
// the result length either way.
func copyResult(dst, out []byte) int {
	if len(out) == 0 {
		return 0
	}

	if &dst[:1][0] != &out[:1][0] {
		copy(dst, out)
	}

	return len(out)
}
