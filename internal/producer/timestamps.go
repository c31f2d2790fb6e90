package producer

import (
	"time"

	"github.com/roach88/pagefeed/internal/feed"
)

// NormalizeTimestamps adjusts the timestamps of entities about to be
// assigned so the chain stays timestamp-monotonic.
//
// Entities must be sorted by (LastModified, ContentID). The output keeps that
// order and guarantees:
//   - timestamps are non-decreasing and never before latest.LastModified
//   - an admissible original timestamp is kept as is
//   - an original equal to latest.LastModified is admissible only when the
//     content id sorts after tailID, the last entity already on the latest
//     page, so new entities always order after that page's confirmed ones
//   - consecutive entities with identical originals get identical timestamps
//   - otherwise a timestamp is moved to one feed.Quantum past the previous one
//
// Every entity whose timestamp changed carries its pre-adjustment value in
// OriginalLastModified; unchanged entities have it unset. A nil latest page
// leaves the first entity unconstrained. An empty tailID disables the tie
// check.
//
// The input slice is not modified.
func NormalizeTimestamps(latest *feed.PageMetadata, tailID string, entities []feed.PageAssignment) []feed.PageAssignment {
	out := make([]feed.PageAssignment, len(entities))

	var floor, floorOriginal, tieAt time.Time
	bounded := latest != nil
	if bounded {
		floor = latest.LastModified
		floorOriginal = latest.LastModified
	}
	checkTie := bounded && tailID != ""
	if checkTie {
		tieAt = latest.LastModified
	}

	for i, e := range entities {
		original := e.LastModified
		if e.OriginalLastModified != nil {
			original = *e.OriginalLastModified
		}

		switch {
		case !bounded || original.After(floor):
			e.LastModified = original
			floor = original
			bounded = true
		case checkTie && floor.Equal(tieAt) && original.Equal(tieAt) && e.ContentID <= tailID:
			floor = floor.Add(feed.Quantum)
			e.LastModified = floor
		case original.Equal(floorOriginal):
			e.LastModified = floor
		default:
			floor = floor.Add(feed.Quantum)
			e.LastModified = floor
		}
		floorOriginal = original

		e.OriginalLastModified = nil
		if !e.LastModified.Equal(original) {
			o := original
			e.OriginalLastModified = &o
		}
		out[i] = e
	}

	return out
}
