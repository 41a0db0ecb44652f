package zram_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zram-go/zram/pkg/zram"
)

func newDevice(t *testing.T, opts zram.Options) *zram.Device {
	t.Helper()

	dev, err := zram.New(opts)
	require.NoError(t, err)

	return dev
}

func TestNewRejectsLogicalBlockSizeNotDividingPageSize(t *testing.T) {
	_, err := zram.New(zram.Options{LogicalBlockSize: 4097})
	require.Error(t, err)
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := zram.New(zram.Options{Algorithm: "lz4"})
	require.ErrorIs(t, err, zram.ErrUnknownAlgorithm)
}

func TestNewDefaultsAlgorithmAndLogicalBlockSize(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	all, current := dev.Algorithms()
	require.Equal(t, "snappy", current)
	require.Contains(t, all, "snappy")
	require.Contains(t, all, "zstd")
}

func TestSetDisksizeRejectsMisalignedSize(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	err := dev.SetDisksize(zram.PageSize + 1)
	require.ErrorIs(t, err, zram.ErrInvalidIO)
}

func TestSetDisksizeRejectsNonPositiveSize(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	require.ErrorIs(t, dev.SetDisksize(0), zram.ErrInvalidIO)
	require.ErrorIs(t, dev.SetDisksize(-zram.PageSize), zram.ErrInvalidIO)
}

func TestSetDisksizeTwiceIsBusy(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	require.NoError(t, dev.SetDisksize(4*zram.PageSize))
	require.True(t, dev.Initialized())

	err := dev.SetDisksize(4 * zram.PageSize)
	require.ErrorIs(t, err, zram.ErrBusy)
}

func TestSetCompressorRejectedAfterInit(t *testing.T) {
	dev := newDevice(t, zram.Options{})
	require.NoError(t, dev.SetDisksize(zram.PageSize))

	err := dev.SetCompressor("zstd")
	require.ErrorIs(t, err, zram.ErrBusy)
}

func TestSetCompressorRejectsUnknownAlgorithm(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	err := dev.SetCompressor("lz4")
	require.ErrorIs(t, err, zram.ErrUnknownAlgorithm)
}

func TestResetDeviceUninitializedIsNotInitialized(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	err := dev.ResetDevice()
	require.ErrorIs(t, err, zram.ErrNotInitialized)
}

func TestResetDeviceClearsStateAndAllowsReinit(t *testing.T) {
	dev := newDevice(t, zram.Options{})
	require.NoError(t, dev.SetDisksize(4*zram.PageSize))

	page := make([]byte, zram.PageSize)
	for i := range page {
		page[i] = byte(i)
	}

	require.NoError(t, dev.RWPage(0, page, true))
	require.Positive(t, dev.MMStat().MemUsedBytes)

	require.NoError(t, dev.ResetDevice())

	require.False(t, dev.Initialized())
	require.Equal(t, int64(0), dev.Disksize())

	stat := dev.MMStat()
	require.Equal(t, int64(0), stat.MemUsedBytes)
	require.Equal(t, int64(0), stat.OrigBytes)

	require.NoError(t, dev.SetDisksize(4*zram.PageSize))
	require.True(t, dev.Initialized())
}

func TestIOBeforeInitIsNotInitialized(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	page := make([]byte, zram.PageSize)
	err := dev.RWPage(0, page, false)
	require.ErrorIs(t, err, zram.ErrNotInitialized)
}

func TestSetLimitRejectsNegative(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	require.Error(t, dev.SetLimit(-1))
}

func TestCompactBeforeInitIsNotInitialized(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	require.ErrorIs(t, dev.Compact(), zram.ErrNotInitialized)
}

func TestResetMaxUsedBeforeInitIsNotInitialized(t *testing.T) {
	dev := newDevice(t, zram.Options{})

	require.ErrorIs(t, dev.ResetMaxUsed(), zram.ErrNotInitialized)
}
