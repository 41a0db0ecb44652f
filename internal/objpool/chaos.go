package objpool

import "math/rand/v2"

// ChaosConfig controls fault injection rates for ChaosPool. Each rate is
// a float64 from 0.0 (never) to 1.0 (always). The zero value disables
// all injection. Adapted from a rate-based fault injection design for
// filesystem faults, narrowed to the one
// failure mode an in-memory allocator actually has: a slow-path
// allocation that would otherwise always succeed by growing the arena.
type ChaosConfig struct {
	// SlowAllocFailRate controls how often a maySleep=true Allocate call
	// fails with ok == false, simulating a slow-path allocation that
	// could not reclaim enough memory. A fast-path (maySleep=false)
	// Allocate is never affected: its failure mode (no free extent fits)
	// is already exercised by the real allocator.
	SlowAllocFailRate float64
}

// ChaosPool wraps a *Pool and injects allocation failures at the
// configured rate, for exercising a caller's out-of-memory handling
// without needing to actually exhaust memory.
type ChaosPool struct {
	*Pool

	rng    *rand.Rand
	config ChaosConfig
}

// NewChaosPool returns a ChaosPool wrapping a fresh Pool, seeded
// deterministically so a failing test reproduces.
func NewChaosPool(seed int64, config ChaosConfig) *ChaosPool {
	return &ChaosPool{
		Pool:   New(),
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))), //nolint:gosec // deterministic test fault injection, not cryptographic
		config: config,
	}
}

// Allocate behaves like Pool.Allocate, except a maySleep=true call fails
// with ok == false at the configured SlowAllocFailRate instead of
// reaching the underlying Pool at all.
func (c *ChaosPool) Allocate(size int, maySleep bool) (Handle, bool) {
	if maySleep && c.config.SlowAllocFailRate > 0 && c.rng.Float64() < c.config.SlowAllocFailRate {
		return 0, false
	}

	return c.Pool.Allocate(size, maySleep)
}
