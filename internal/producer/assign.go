package producer

import (
	"github.com/roach88/pagefeed/internal/feed"
)

// AssignPages packs normalized unassigned entities into pages.
//
// Entities are consumed in order and packed greedily. Packing starts on the
// latest page when it has spare capacity, otherwise on a fresh page. An
// entity joins the current page if the page stays within both limits, or if
// the page is still empty: a single oversized entity occupies a page alone.
//
// Every page touched by the call, including an extended or merely re-linked
// latest page, gets generation latest.Generation+1 (or InitialGeneration+1).
//
// Returns nil if there is nothing to assign.
func AssignPages(
	latest *feed.PageMetadata,
	limits Limits,
	ids PageIDGenerator,
	unassigned []feed.PageAssignment,
) *feed.AssignPagesResult {
	if len(unassigned) == 0 {
		return nil
	}

	generation := feed.InitialGeneration
	if latest != nil {
		generation = latest.Generation
	}
	generation++

	// chain holds every touched page in chain order; current is the last one
	var chain []feed.PageMetadata
	var current feed.PageMetadata
	switch {
	case latest != nil && hasSpareCapacity(*latest, limits):
		current = *latest
	case latest != nil:
		current = feed.PageMetadata{PageID: ids.NewPageID(), Prev: latest.PageID}
		retired := *latest
		retired.Next = current.PageID
		chain = append(chain, retired)
	default:
		current = feed.PageMetadata{PageID: ids.NewPageID()}
	}

	assignments := make([]feed.PageAssignment, 0, len(unassigned))
	for _, e := range unassigned {
		if !fits(current, e, limits) {
			next := feed.PageMetadata{PageID: ids.NewPageID(), Prev: current.PageID}
			current.Next = next.PageID
			chain = append(chain, current)
			current = next
		}

		current.NumberOfBytes += e.ContentLength
		current.NumberOfEntities++
		current.LastModified = e.LastModified

		e.PageID = current.PageID
		assignments = append(assignments, e)
	}
	chain = append(chain, current)

	for i := range chain {
		chain[i].Generation = generation
	}

	last := len(chain) - 1
	result := &feed.AssignPagesResult{
		EntityPageAssignments: assignments,
		NewLatestPage:         chain[last],
	}

	first := 0
	if latest != nil && chain[0].PageID == latest.PageID && last > 0 {
		prev := chain[0]
		result.PreviousLatestPage = &prev
		first = 1
	}
	result.NewPages = append([]feed.PageMetadata{}, chain[first:last]...)

	return result
}

func hasSpareCapacity(p feed.PageMetadata, limits Limits) bool {
	return p.NumberOfBytes < limits.MaxBytesPerPage && p.NumberOfEntities < limits.MaxEntitiesPerPage
}

func fits(p feed.PageMetadata, e feed.PageAssignment, limits Limits) bool {
	if p.NumberOfEntities == 0 {
		return true
	}
	return p.NumberOfBytes+e.ContentLength <= limits.MaxBytesPerPage &&
		p.NumberOfEntities+1 <= limits.MaxEntitiesPerPage
}
