package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPieceSetPopDrainsAllIndices(t *testing.T) {
	ps := newPieceSet([]int{0, 1, 2})
	assert.Equal(t, 3, ps.Len())

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		idx, ok := ps.Pop()
		assert.True(t, ok)
		seen[idx] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)

	_, ok := ps.Pop()
	assert.False(t, ok)
}

func TestPieceSetPushBackReturnsIndex(t *testing.T) {
	ps := newPieceSet(nil)
	ps.PushBack(5)
	assert.Equal(t, 1, ps.Len())

	idx, ok := ps.Pop()
	assert.True(t, ok)
	assert.Equal(t, 5, idx)
}

// TestPieceSetPushBackYieldsDifferentNextPop pins down the behavior a
// session's piece-selection loop depends on: popping an index a peer can't
// serve and pushing it straight back must not hand that same index right
// back out on the next Pop, or the loop can never "select another" (§4.6
// step 2).
func TestPieceSetPushBackYieldsDifferentNextPop(t *testing.T) {
	ps := newPieceSet([]int{0, 1, 2})

	top, ok := ps.Pop()
	require.True(t, ok)

	ps.PushBack(top) // e.g. the peer's have-set doesn't include this piece

	next, ok := ps.Pop()
	require.True(t, ok)
	assert.NotEqual(t, top, next, "PushBack must land on the opposite end from Pop")

	// The rest of the set is still reachable: draining it finds every
	// index, including the one pushed back, exactly once.
	seen := map[int]bool{next: true}
	for i := 0; i < 2; i++ {
		idx, ok := ps.Pop()
		require.True(t, ok)
		seen[idx] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}
