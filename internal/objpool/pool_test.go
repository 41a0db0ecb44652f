package objpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zram-go/zram/internal/objpool"
)

func TestAllocateMapRoundTrip(t *testing.T) {
	p := objpool.New()

	h, ok := p.Allocate(16, true)
	require.True(t, ok)

	dst := p.Map(h, objpool.Write)
	copy(dst, []byte("0123456789abcdef"))

	got := p.Map(h, objpool.Read)
	require.Equal(t, []byte("0123456789abcdef"), got)
}

func TestFastPathFailsWithoutGrowthRoom(t *testing.T) {
	p := objpool.New()

	_, ok := p.Allocate(16, false)
	require.False(t, ok, "fast path must not grow the arena")
}

func TestSlowPathGrows(t *testing.T) {
	p := objpool.New()

	h, ok := p.Allocate(16, true)
	require.True(t, ok)
	require.Equal(t, int64(16), p.UsedBytes())

	p.Free(h)
	require.Zero(t, p.UsedBytes())
}

func TestFreeThenFastPathReusesSpace(t *testing.T) {
	p := objpool.New()

	h1, ok := p.Allocate(32, true)
	require.True(t, ok)

	p.Free(h1)

	h2, ok := p.Allocate(32, false)
	require.True(t, ok, "fast path should reuse the freed extent")
	require.NotZero(t, h2)
}

func TestDoubleFreePanics(t *testing.T) {
	p := objpool.New()

	h, _ := p.Allocate(8, true)
	p.Free(h)

	require.Panics(t, func() { p.Free(h) })
}

func TestCoalescingReclaimsFullSpan(t *testing.T) {
	p := objpool.New()

	h1, _ := p.Allocate(16, true)
	h2, _ := p.Allocate(16, true)
	h3, _ := p.Allocate(16, true)

	p.Free(h1)
	p.Free(h3)
	p.Free(h2)

	// All three adjacent blocks freed: the coalesced tail extent should
	// truncate the arena back to empty.
	require.Zero(t, p.UsedBytes())

	h4, ok := p.Allocate(48, false)
	require.False(t, ok, "the truncated arena leaves no free extent for the fast path to reuse")
	require.Zero(t, h4)
}

func TestCompactPreservesHandlesAndContent(t *testing.T) {
	p := objpool.New()

	h1, _ := p.Allocate(8, true)
	copy(p.Map(h1, objpool.Write), []byte("aaaaaaaa"))

	h2, _ := p.Allocate(8, true)
	copy(p.Map(h2, objpool.Write), []byte("bbbbbbbb"))

	p.Free(h1)

	p.Compact()

	require.Equal(t, []byte("bbbbbbbb"), p.Map(h2, objpool.Read))
	require.Equal(t, int64(8), p.UsedBytes())
}

func TestObjectCount(t *testing.T) {
	p := objpool.New()

	h1, _ := p.Allocate(8, true)
	_, _ = p.Allocate(8, true)

	require.Equal(t, 2, p.ObjectCount())

	p.Free(h1)
	require.Equal(t, 1, p.ObjectCount())
}
