package slots_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zram-go/zram/internal/slots"
)

func TestEmptyAtCreation(t *testing.T) {
	tbl := slots.New(4)

	tbl.Lock(0)
	flags, handle, size := tbl.Read(0)
	tbl.Unlock(0)

	require.True(t, slots.IsEmpty(flags, handle))
	require.Zero(t, size)
}

func TestWriteReadRoundTrip(t *testing.T) {
	tbl := slots.New(1)

	tbl.Lock(0)
	tbl.Write(0, 0, 99, 42)
	flags, handle, size := tbl.Read(0)
	tbl.Unlock(0)

	require.Equal(t, uint32(0), flags)
	require.Equal(t, uint64(99), handle)
	require.Equal(t, uint32(42), size)
}

func TestSameFlag(t *testing.T) {
	tbl := slots.New(1)

	tbl.Lock(0)
	tbl.Write(0, slots.Same, 0x42, 0)
	flags, _, _ := tbl.Read(0)
	tbl.Unlock(0)

	require.True(t, slots.IsSame(flags))
}

func TestClearReturnsPriorState(t *testing.T) {
	tbl := slots.New(1)

	tbl.Lock(0)
	tbl.Write(0, 0, 7, 100)
	prevFlags, prevHandle, prevSize := tbl.Clear(0)
	flags, handle, _ := tbl.Read(0)
	tbl.Unlock(0)

	require.Equal(t, uint32(0), prevFlags)
	require.Equal(t, uint64(7), prevHandle)
	require.Equal(t, uint32(100), prevSize)
	require.True(t, slots.IsEmpty(flags, handle))
}

func TestUnlockWithoutLockPanics(t *testing.T) {
	tbl := slots.New(1)

	require.Panics(t, func() { tbl.Unlock(0) })
}

func TestConcurrentDifferentSlotsDoNotContend(t *testing.T) {
	tbl := slots.New(2)

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for range 1000 {
			tbl.Lock(0)
			tbl.Write(0, 0, 1, 1)
			tbl.Unlock(0)
		}
	}()

	go func() {
		defer wg.Done()

		for range 1000 {
			tbl.Lock(1)
			tbl.Write(1, 0, 2, 2)
			tbl.Unlock(1)
		}
	}()

	wg.Wait()

	tbl.Lock(0)
	_, h0, _ := tbl.Read(0)
	tbl.Unlock(0)

	tbl.Lock(1)
	_, h1, _ := tbl.Read(1)
	tbl.Unlock(1)

	require.Equal(t, uint64(1), h0)
	require.Equal(t, uint64(2), h1)
}

func TestSameSlotSerializes(t *testing.T) {
	tbl := slots.New(1)

	var wg sync.WaitGroup

	const n = 500

	wg.Add(2)

	for range 2 {
		go func() {
			defer wg.Done()

			for range n {
				tbl.Lock(0)
				_, h, _ := tbl.Read(0)
				tbl.Write(0, 0, h+1, 0)
				tbl.Unlock(0)
			}
		}()
	}

	wg.Wait()

	tbl.Lock(0)
	_, h, _ := tbl.Read(0)
	tbl.Unlock(0)

	require.Equal(t, uint64(2*n), h)
}
