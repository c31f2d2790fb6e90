package feed

import (
	"sort"
	"strings"
)

// Compare orders two placement records by (LastModified, ContentID).
// Returns -1, 0 or +1.
func Compare(a, b PageAssignment) int {
	switch {
	case a.LastModified.Before(b.LastModified):
		return -1
	case a.LastModified.After(b.LastModified):
		return 1
	}
	return strings.Compare(a.ContentID, b.ContentID)
}

// IsSorted reports whether entities are strictly ascending by
// (LastModified, ContentID). Equal keys count as unsorted because ContentID
// is an identity.
func IsSorted(entities []PageAssignment) bool {
	for i := 1; i < len(entities); i++ {
		if Compare(entities[i-1], entities[i]) >= 0 {
			return false
		}
	}
	return true
}

// Sort orders entities in place by (LastModified, ContentID).
func Sort(entities []PageAssignment) {
	sort.SliceStable(entities, func(i, j int) bool {
		return Compare(entities[i], entities[j]) < 0
	})
}

// SelectLatest picks the effective latest page among latest-page candidates.
// The lowest generation wins; ties fall back to PageID so the choice is
// deterministic. Returns nil for an empty slice.
func SelectLatest(candidates []PageMetadata) *PageMetadata {
	var latest *PageMetadata
	for i := range candidates {
		c := candidates[i]
		if latest == nil ||
			c.Generation < latest.Generation ||
			(c.Generation == latest.Generation && c.PageID < latest.PageID) {
			latest = &c
		}
	}
	return latest
}
