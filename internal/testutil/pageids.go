package testutil

import (
	"fmt"
	"sync"
)

// SequentialPageIDs mints page ids "p1", "p2", ... in order.
//
// Unlike producer.FixedPageIDs it never runs out, and it can be reset so the
// same scenario replays with identical page ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialPageIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialPageIDs creates a generator whose first id is prefix+"1".
// An empty prefix defaults to "p".
func NewSequentialPageIDs(prefix string) *SequentialPageIDs {
	if prefix == "" {
		prefix = "p"
	}
	return &SequentialPageIDs{prefix: prefix}
}

// NewPageID returns the next id.
func (g *SequentialPageIDs) NewPageID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s%d", g.prefix, g.seq)
}

// Issued returns how many ids have been minted since the last reset.
func (g *SequentialPageIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. After Reset the next id is prefix+"1".
func (g *SequentialPageIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
