package zram

import (
	"github.com/zram-go/zram/internal/compressor"
	"github.com/zram-go/zram/internal/objpool"
)

// Pool is the capability a Device needs from its backing object store:
// allocate/map/free a variable-size payload, report memory used, and
// defragment. internal/objpool.Pool satisfies this directly.
type Pool interface {
	Allocate(size int, maySleep bool) (objpool.Handle, bool)
	Map(h objpool.Handle, mode objpool.MapMode) []byte
	Unmap(h objpool.Handle)
	Free(h objpool.Handle)
	UsedBytes() int64
	Compact()
}

// Compressor is the capability a Device needs from its compression
// backend: a bound algorithm name, a scratch-size bound, and rentable
// streams. internal/compressor.Compressor satisfies this directly.
type Compressor interface {
	Algorithm() string
	MaxCompressedLen(n int) int
	AcquireStream() *compressor.Stream
	ReleaseStream(s *compressor.Stream)
}

// PoolFactory constructs a fresh, empty Pool. Device calls it exactly
// once per successful SetDisksize and once more per re-init after a
// reset.
type PoolFactory func() Pool

// CompressorFactory constructs a Compressor bound to algo, or an error
// if algo is not recognized.
type CompressorFactory func(algo string) (Compressor, error)

func defaultPoolFactory() Pool { return objpool.New() }

func defaultCompressorFactory(algo string) (Compressor, error) { return compressor.New(algo) }
