package wordfill_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zram-go/zram/internal/wordfill"
)

func TestDetectUniformPage(t *testing.T) {
	page := make([]byte, 4096)
	wordfill.Fill(page, len(page), 0x4242424242424242)

	w, ok := wordfill.Detect(page)
	require.True(t, ok)
	require.Equal(t, uint64(0x4242424242424242), w)
}

func TestDetectZeroPage(t *testing.T) {
	page := make([]byte, 4096)

	w, ok := wordfill.Detect(page)
	require.True(t, ok)
	require.Equal(t, uint64(0), w)
}

func TestDetectNonUniformPage(t *testing.T) {
	page := make([]byte, 4096)
	for i := range page {
		page[i] = byte(i)
	}

	_, ok := wordfill.Detect(page)
	require.False(t, ok)
}

func TestFillRoundTrip(t *testing.T) {
	page := make([]byte, 4096)
	wordfill.Fill(page, len(page), 0x1)

	w, ok := wordfill.Detect(page)
	require.True(t, ok)
	require.Equal(t, uint64(1), w)
}

func TestFillZeroFastPath(t *testing.T) {
	page := make([]byte, 4096)
	for i := range page {
		page[i] = 0xFF
	}

	wordfill.Fill(page, len(page), 0)

	for _, b := range page {
		require.Equal(t, byte(0), b)
	}
}
