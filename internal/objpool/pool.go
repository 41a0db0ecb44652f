// Package objpool implements a handle-addressed, in-memory variable-size
// object pool: the concrete backing store behind the compressed RAM block
// device's Pool adapter.
//
// The allocation algorithm — handle-addressed blocks, a free list searched
// for reuse before growing, and left/right coalescing of adjacent free
// blocks on free — is ported from cznic/exp/lldb's disk-block allocator
// (falloc.go), with the file/atom abstraction dropped: this pool is a
// plain growable byte arena, since the device it backs is explicitly
// volatile. The size-classed free-list-table (flt.go) that lldb layers on
// top for O(1) bucket lookup is not reproduced; a single offset-ordered
// free list with first-fit search stands in for it, trading the bucket
// index for simplicity at the scale this pool operates at.
package objpool

import (
	"fmt"
	"sort"
	"sync"
)

// Handle is an opaque reference to a pool-resident object. The zero Handle
// never refers to a live object.
type Handle uint64

// MapMode selects the access mode for Pool.Map.
type MapMode int

const (
	// Read requests a read-only view of the object's bytes.
	Read MapMode = iota
	// Write requests a mutable view of the object's bytes.
	Write
)

type extent struct {
	offset int64
	size   int64
}

// Pool is a variable-size object allocator backed by a single growable
// byte arena. It is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	arena []byte

	objects    map[Handle]extent
	nextHandle Handle

	// free holds free extents sorted by offset, enabling the left/right
	// coalescing join used by Free. Allocation does a first-fit scan.
	free []extent

	usedBytes int64
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{objects: make(map[Handle]extent)}
}

// Allocate reserves size bytes and returns a handle to them. When
// maySleep is false, Allocate never grows the arena — it only succeeds by
// reusing an existing free extent, modeling a non-suspending fast-path
// allocation. When maySleep is true, Allocate may grow the arena to
// satisfy the request, modeling a slow path that may block on memory
// reclaim in a real allocator. Allocate returns ok == false only when
// maySleep is false and no free extent is large enough — true
// out-of-memory (a failed slow-path allocation) is not modeled since this
// pool never fails to grow its backing slice.
func (p *Pool) Allocate(size int, maySleep bool) (h Handle, ok bool) {
	if size <= 0 {
		panic("objpool: allocate size must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	off, found := p.takeFreeExtent(int64(size))
	if !found {
		if !maySleep {
			return 0, false
		}

		off = int64(len(p.arena))
		p.arena = append(p.arena, make([]byte, size)...)
	}

	p.nextHandle++
	h = p.nextHandle
	p.objects[h] = extent{offset: off, size: int64(size)}
	p.usedBytes += int64(size)

	return h, true
}

// takeFreeExtent finds and removes the first free extent able to hold
// need bytes, splitting off any remainder back into the free list.
// Returns the offset of a need-byte region and true if one was found.
func (p *Pool) takeFreeExtent(need int64) (int64, bool) {
	for i, ext := range p.free {
		if ext.size < need {
			continue
		}

		if ext.size == need {
			p.free = append(p.free[:i], p.free[i+1:]...)

			return ext.offset, true
		}

		// Split: keep the remainder as a smaller free extent at the
		// same position (offset advances past the carved-out piece).
		p.free[i] = extent{offset: ext.offset + need, size: ext.size - need}

		return ext.offset, true
	}

	return 0, false
}

// Map returns a slice view of the object referenced by h. The Read mode
// returns the slice as-is; the Write mode returns the same slice, which
// the caller may mutate in place — Go slices alias their backing array,
// so there is no separate "publish" step. Unmap is a documentation-level
// no-op kept for symmetry with the adapter contract in the spec (a scoped
// map/unmap pair), since nothing needs releasing here.
func (p *Pool) Map(h Handle, _ MapMode) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	ext, ok := p.objects[h]
	if !ok {
		panic(fmt.Sprintf("objpool: map of invalid handle %d", h))
	}

	return p.arena[ext.offset : ext.offset+ext.size]
}

// Unmap releases a borrow obtained from Map. See Map's doc comment.
func (p *Pool) Unmap(Handle) {}

// Free releases the object referenced by h. Idempotent is not guaranteed
// over an already-freed handle — per the spec's Pool contract, behavior
// on double-free is undefined; this implementation panics, which is a
// valid instance of "undefined" and surfaces bugs immediately rather than
// silently corrupting the free list.
func (p *Pool) Free(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ext, ok := p.objects[h]
	if !ok {
		panic(fmt.Sprintf("objpool: double free of handle %d", h))
	}

	delete(p.objects, h)
	p.usedBytes -= ext.size

	p.linkFree(ext)
}

// linkFree inserts ext into the offset-sorted free list, coalescing with
// an immediately adjacent left and/or right neighbor, and truncates the
// arena if the coalesced extent now reaches its end — the same
// isolated/left-join/right-join/middle-join/truncate cases as lldb's
// free2.
func (p *Pool) linkFree(ext extent) {
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].offset >= ext.offset })

	leftIdx := -1
	if i > 0 && p.free[i-1].offset+p.free[i-1].size == ext.offset {
		leftIdx = i - 1
	}

	rightIdx := -1
	if i < len(p.free) && ext.offset+ext.size == p.free[i].offset {
		rightIdx = i
	}

	switch {
	case leftIdx >= 0 && rightIdx >= 0:
		merged := extent{offset: p.free[leftIdx].offset, size: p.free[leftIdx].size + ext.size + p.free[rightIdx].size}
		p.free = append(p.free[:leftIdx], p.free[rightIdx+1:]...)
		p.insertFree(merged)
	case leftIdx >= 0:
		merged := extent{offset: p.free[leftIdx].offset, size: p.free[leftIdx].size + ext.size}
		p.free = append(p.free[:leftIdx], p.free[leftIdx+1:]...)
		p.insertFree(merged)
	case rightIdx >= 0:
		merged := extent{offset: ext.offset, size: ext.size + p.free[rightIdx].size}
		p.free = append(p.free[:rightIdx], p.free[rightIdx+1:]...)
		p.insertFree(merged)
	default:
		p.insertFree(ext)
	}

	p.truncateTrailingFree()
}

func (p *Pool) insertFree(ext extent) {
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].offset >= ext.offset })
	p.free = append(p.free, extent{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = ext
}

// truncateTrailingFree drops a free extent that now reaches the end of
// the arena, since there is never a need to keep trailing free bytes
// around (there is no file size to shrink here, but the principle —
// never leave a free block at the tail — is kept to bound arena growth).
func (p *Pool) truncateTrailingFree() {
	if len(p.free) == 0 {
		return
	}

	last := p.free[len(p.free)-1]
	if last.offset+last.size == int64(len(p.arena)) {
		p.arena = p.arena[:last.offset]
		p.free = p.free[:len(p.free)-1]
	}
}

// UsedBytes returns the number of bytes currently backing live objects
// (excludes free extents).
func (p *Pool) UsedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.usedBytes
}

// ObjectCount returns the number of live (allocated, unfreed) objects.
func (p *Pool) ObjectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.objects)
}

// Compact defragments the pool by relocating every live object to a
// contiguous run at the front of the arena and discarding all free space.
// Handles are unaffected — only the arena offset they resolve to changes
// — so Compact is transparent to callers holding handles. The spec
// permits Compact to run concurrently with I/O, relying on the pool
// adapter's own locking for that guarantee; here that guarantee is this
// single mutex.
func (p *Pool) Compact() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return
	}

	handles := make([]Handle, 0, len(p.objects))
	for h := range p.objects {
		handles = append(handles, h)
	}

	sort.Slice(handles, func(i, j int) bool { return p.objects[handles[i]].offset < p.objects[handles[j]].offset })

	newArena := make([]byte, 0, p.usedBytes)

	for _, h := range handles {
		ext := p.objects[h]
		newOff := int64(len(newArena))
		newArena = append(newArena, p.arena[ext.offset:ext.offset+ext.size]...)
		p.objects[h] = extent{offset: newOff, size: ext.size}
	}

	p.arena = newArena
	p.free = nil
}
