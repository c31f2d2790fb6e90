package producer

import (
	"sync"

	"github.com/google/uuid"
)

// PageIDGenerator mints page ids. Ids must never repeat within a feed.
type PageIDGenerator interface {
	NewPageID() string
}

// UUIDv7PageIDs generates time-sortable UUIDv7 page ids.
//
// Thread-safety: UUIDv7PageIDs is stateless and safe for concurrent use.
type UUIDv7PageIDs struct{}

// NewPageID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7PageIDs) NewPageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedPageIDs returns predetermined page ids in order, for tests.
//
// Panics if all ids have been consumed. This is a fail-fast approach to
// catch a test that creates more pages than it expects.
type FixedPageIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedPageIDs creates a generator that returns ids in order.
func NewFixedPageIDs(ids ...string) *FixedPageIDs {
	return &FixedPageIDs{ids: ids}
}

// NewPageID returns the next predetermined id.
func (g *FixedPageIDs) NewPageID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedPageIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
