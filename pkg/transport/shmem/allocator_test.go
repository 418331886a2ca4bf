package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRBTreeBestFitPicksSmallestSufficientBlock(t *testing.T) {
	a := NewRBTreeBestFit(1000)

	// Carve out three blocks: [0,100) [100,150) [150,850), leaving the tail
	// [850,1000) free, then free the middle one so a later 60-byte request
	// has to skip the 50-byte hole and land in the tail.
	h1, err := a.Alloc(100)
	require.NoError(t, err)
	h2, err := a.Alloc(50)
	require.NoError(t, err)
	h3, err := a.Alloc(700)
	require.NoError(t, err)
	require.Equal(t, 0, h1)
	require.Equal(t, 100, h2)
	require.Equal(t, 150, h3)

	a.Free(h2, 50) // free block [100,150): too small for a 60-byte best-fit candidate below

	h4, err := a.Alloc(60)
	require.NoError(t, err)
	// The only free block big enough is the tail [850,1000); the 50-byte
	// hole at [100,150) must be skipped.
	assert.Equal(t, 850, h4)
}

func TestRBTreeBestFitCoalescesAdjacentFreeBlocks(t *testing.T) {
	a := NewRBTreeBestFit(300)

	h1, err := a.Alloc(100)
	require.NoError(t, err)
	h2, err := a.Alloc(100)
	require.NoError(t, err)
	_, err = a.Alloc(100)
	require.NoError(t, err)

	a.Free(h1, 100)
	a.Free(h2, 100)

	// The two freed blocks are adjacent and must coalesce into one 200-byte
	// block, so a 150-byte request now succeeds.
	h4, err := a.Alloc(150)
	require.NoError(t, err)
	assert.Equal(t, 0, h4)
}

func TestAllocReturnsBadAllocWhenExhausted(t *testing.T) {
	a := NewRBTreeBestFit(100)
	_, err := a.Alloc(100)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, errMessageBadAlloc)
}

func TestSimpleFirstFitTakesFirstSufficientBlock(t *testing.T) {
	a := NewSimpleFirstFit(1000)
	h1, err := a.Alloc(100)
	require.NoError(t, err)
	h2, err := a.Alloc(100)
	require.NoError(t, err)
	a.Free(h1, 100)

	h3, err := a.Alloc(50)
	require.NoError(t, err)
	// First-fit takes the earliest sufficient hole, even though the tail is
	// also large enough.
	assert.Equal(t, h1, h3)
	_ = h2
}

func TestAllocWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	a := NewRBTreeBestFit(10)
	_, err := a.Alloc(10)
	require.NoError(t, err)

	attempts := 0
	_, err = AllocWithRetry(a, 5, RetryPolicy{MaxAttempts: 3, Interval: 0}, func() bool {
		attempts++
		return false
	})
	assert.ErrorIs(t, err, errMessageBadAlloc)
	// The 3rd attempt hits the cap and returns before consulting
	// interrupted again, so it is only ever called twice.
	assert.Equal(t, 2, attempts)
}

func TestAllocWithRetrySucceedsOnceFreed(t *testing.T) {
	a := NewRBTreeBestFit(10)
	h, err := a.Alloc(10)
	require.NoError(t, err)

	go func() {
		a.Free(h, 10)
	}()

	offset, err := AllocWithRetry(a, 10, RetryPolicy{MaxAttempts: -1, Interval: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
}

func TestAllocWithRetryStopsWhenInterrupted(t *testing.T) {
	a := NewRBTreeBestFit(10)
	_, err := a.Alloc(10)
	require.NoError(t, err)

	_, err = AllocWithRetry(a, 5, RetryPolicy{MaxAttempts: -1, Interval: 0}, func() bool { return true })
	assert.ErrorIs(t, err, errMessageBadAlloc)
}
