package objpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zram-go/zram/internal/objpool"
)

func TestChaosPoolNeverFailsAtZeroRate(t *testing.T) {
	p := objpool.NewChaosPool(1, objpool.ChaosConfig{})

	for range 100 {
		_, ok := p.Allocate(64, true)
		require.True(t, ok)
	}
}

func TestChaosPoolAlwaysFailsSlowPathAtRateOne(t *testing.T) {
	p := objpool.NewChaosPool(1, objpool.ChaosConfig{SlowAllocFailRate: 1})

	_, ok := p.Allocate(64, true)
	require.False(t, ok)
}

func TestChaosPoolDoesNotAffectFastPath(t *testing.T) {
	p := objpool.NewChaosPool(1, objpool.ChaosConfig{SlowAllocFailRate: 1})

	// No free extent exists yet, so the fast path fails on its own
	// merits — the chaos rate only gates maySleep=true calls.
	_, ok := p.Allocate(64, false)
	require.False(t, ok)
}

func TestChaosPoolEventuallyFailsAtPartialRate(t *testing.T) {
	p := objpool.NewChaosPool(7, objpool.ChaosConfig{SlowAllocFailRate: 0.5})

	sawFailure := false

	for range 200 {
		_, ok := p.Allocate(64, true)
		if !ok {
			sawFailure = true

			break
		}
	}

	require.True(t, sawFailure, "expected at least one injected failure across 200 attempts at rate 0.5")
}
