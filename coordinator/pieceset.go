package coordinator

import "sync"

// pieceSet is the shared missing-piece set: a mutex around a slice whose
// critical section is pop/push only, no I/O while held. Order is arbitrary -
// there is no rarest-first picker policy here - but Pop and PushBack must
// work opposite ends: a session's selectPiece pops a candidate, and if its
// have-set rules that index out it pushes the index back "to the tail" (§4.6
// step 2) so the next Pop surfaces a *different* candidate instead of
// handing the same unusable index straight back.
type pieceSet struct {
	mu    sync.Mutex
	stack []int
}

func newPieceSet(indices []int) *pieceSet {
	stack := make([]int, len(indices))
	copy(stack, indices)
	return &pieceSet{stack: stack}
}

// Pop removes and returns an arbitrary missing piece index from the head.
func (p *pieceSet) Pop() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stack) == 0 {
		return 0, false
	}
	last := len(p.stack) - 1
	index := p.stack[last]
	p.stack = p.stack[:last]
	return index, true
}

// PushBack returns index to the tail of the set - the opposite end from
// Pop - so a Pop immediately following a PushBack surfaces a different
// index rather than handing the same one straight back.
func (p *pieceSet) PushBack(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = append([]int{index}, p.stack...)
}

// Len reports the current size. Session piece selection uses it as a scan
// bound, and the coordinator checks it before and after the session pool
// runs to tell full from partial completion. While sessions are running the
// set can grow between the read and any subsequent Pop.
func (p *pieceSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}
