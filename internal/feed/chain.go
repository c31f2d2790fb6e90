package feed

import (
	"fmt"
	"sort"
)

// PageBounds are the per-page packing limits. A zero field is not checked.
type PageBounds struct {
	MaxBytes    int64
	MaxEntities int
}

// ViolationCode categorizes chain invariant violations.
type ViolationCode string

const (
	ViolationNoLatest       ViolationCode = "NO_LATEST"
	ViolationMultipleLatest ViolationCode = "MULTIPLE_LATEST"
	ViolationNoHead         ViolationCode = "NO_HEAD"
	ViolationMultipleHeads  ViolationCode = "MULTIPLE_HEADS"
	ViolationDanglingLink   ViolationCode = "DANGLING_LINK"
	ViolationAsymmetricLink ViolationCode = "ASYMMETRIC_LINK"
	ViolationNotMonotonic   ViolationCode = "NOT_MONOTONIC"
	ViolationUnreachable    ViolationCode = "UNREACHABLE"
	ViolationOverBytes      ViolationCode = "OVER_BYTES"
	ViolationOverEntities   ViolationCode = "OVER_ENTITIES"

	// ViolationPendingRecovery is not produced by VerifyChain. Callers that
	// also inspect the journal report an interrupted commit with it.
	ViolationPendingRecovery ViolationCode = "PENDING_RECOVERY"
)

// Violation is one broken chain invariant.
type Violation struct {
	Code    ViolationCode `json:"code"`
	PageID  string        `json:"page_id,omitempty"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	if v.PageID != "" {
		return fmt.Sprintf("%s [%s]: %s", v.Code, v.PageID, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// OrderChain returns pages from oldest to newest by walking Next links from
// the single page without a Prev link. It fails when the pages do not form
// exactly one linear chain.
func OrderChain(pages []PageMetadata) ([]PageMetadata, error) {
	if len(pages) == 0 {
		return []PageMetadata{}, nil
	}

	byID := make(map[string]PageMetadata, len(pages))
	var heads []string
	for _, p := range pages {
		byID[p.PageID] = p
		if p.Prev == "" {
			heads = append(heads, p.PageID)
		}
	}
	if len(heads) != 1 {
		return nil, fmt.Errorf("order chain: expected 1 head page, found %d", len(heads))
	}

	ordered := make([]PageMetadata, 0, len(pages))
	seen := make(map[string]bool, len(pages))
	for id := heads[0]; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("order chain: cycle at page %s", id)
		}
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("order chain: missing page %s", id)
		}
		seen[id] = true
		ordered = append(ordered, p)
		id = p.Next
	}
	if len(ordered) != len(pages) {
		return nil, fmt.Errorf("order chain: %d of %d pages reachable from head", len(ordered), len(pages))
	}
	return ordered, nil
}

// VerifyChain checks the chain invariants: a single head and a single
// latest page, symmetric prev/next links, non-decreasing LastModified along
// the chain, every page reachable from the head, and the packing bounds
// (a page holding exactly one entity may exceed the byte bound).
//
// Returns an empty slice when the chain is valid.
func VerifyChain(pages []PageMetadata, bounds PageBounds) []Violation {
	violations := []Violation{}
	if len(pages) == 0 {
		return violations
	}

	sorted := make([]PageMetadata, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageID < sorted[j].PageID })

	byID := make(map[string]PageMetadata, len(sorted))
	for _, p := range sorted {
		byID[p.PageID] = p
	}

	var heads, latest []string
	for _, p := range sorted {
		if p.Prev == "" {
			heads = append(heads, p.PageID)
		}
		if p.Next == "" {
			latest = append(latest, p.PageID)
		}

		if p.Next != "" {
			next, ok := byID[p.Next]
			switch {
			case !ok:
				violations = append(violations, Violation{
					Code: ViolationDanglingLink, PageID: p.PageID,
					Message: fmt.Sprintf("next %s does not exist", p.Next),
				})
			case next.Prev != p.PageID:
				violations = append(violations, Violation{
					Code: ViolationAsymmetricLink, PageID: p.PageID,
					Message: fmt.Sprintf("next %s has prev %q", p.Next, next.Prev),
				})
			case p.LastModified.After(next.LastModified):
				violations = append(violations, Violation{
					Code: ViolationNotMonotonic, PageID: p.PageID,
					Message: fmt.Sprintf("last modified %s after next %s (%s)",
						p.LastModified.Format(timeLayout), p.Next, next.LastModified.Format(timeLayout)),
				})
			}
		}
		if p.Prev != "" {
			if _, ok := byID[p.Prev]; !ok {
				violations = append(violations, Violation{
					Code: ViolationDanglingLink, PageID: p.PageID,
					Message: fmt.Sprintf("prev %s does not exist", p.Prev),
				})
			}
		}

		if bounds.MaxEntities > 0 && p.NumberOfEntities > bounds.MaxEntities {
			violations = append(violations, Violation{
				Code: ViolationOverEntities, PageID: p.PageID,
				Message: fmt.Sprintf("%d entities > %d", p.NumberOfEntities, bounds.MaxEntities),
			})
		}
		if bounds.MaxBytes > 0 && p.NumberOfBytes > bounds.MaxBytes && p.NumberOfEntities != 1 {
			violations = append(violations, Violation{
				Code: ViolationOverBytes, PageID: p.PageID,
				Message: fmt.Sprintf("%d bytes > %d", p.NumberOfBytes, bounds.MaxBytes),
			})
		}
	}

	switch {
	case len(latest) == 0:
		violations = append(violations, Violation{Code: ViolationNoLatest, Message: "no page without next link"})
	case len(latest) > 1:
		violations = append(violations, Violation{
			Code:    ViolationMultipleLatest,
			Message: fmt.Sprintf("%d pages without next link: %v", len(latest), latest),
		})
	}

	switch {
	case len(heads) == 0:
		violations = append(violations, Violation{Code: ViolationNoHead, Message: "no page without prev link"})
	case len(heads) > 1:
		violations = append(violations, Violation{
			Code:    ViolationMultipleHeads,
			Message: fmt.Sprintf("%d pages without prev link: %v", len(heads), heads),
		})
	default:
		reached := make(map[string]bool, len(sorted))
		for id := heads[0]; id != "" && !reached[id]; {
			p, ok := byID[id]
			if !ok {
				break
			}
			reached[id] = true
			id = p.Next
		}
		for _, p := range sorted {
			if !reached[p.PageID] {
				violations = append(violations, Violation{
					Code: ViolationUnreachable, PageID: p.PageID,
					Message: "not reachable from head page " + heads[0],
				})
			}
		}
	}

	return violations
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
