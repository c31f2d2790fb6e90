package feed

import "time"

// InitialGeneration is the generation a chain starts from and the value a
// rotated latest page is reset to.
const InitialGeneration int64 = 0

// Quantum is the smallest step a timestamp is advanced by when it has to be
// moved forward to keep the chain monotonic. Timestamps are stored at this
// precision.
const Quantum = time.Millisecond

// PageMetadata describes one page of the chain.
type PageMetadata struct {
	PageID           string    `json:"page_id"`
	LastModified     time.Time `json:"last_modified"`
	Prev             string    `json:"prev,omitempty"` // empty for the oldest page
	Next             string    `json:"next,omitempty"` // empty for latest-page candidates
	NumberOfBytes    int64     `json:"number_of_bytes"`
	NumberOfEntities int       `json:"number_of_entities"`
	Generation       int64     `json:"generation"`
}

// IsLatestCandidate reports whether the page has no Next link.
func (p PageMetadata) IsLatestCandidate() bool {
	return p.Next == ""
}

// PageAssignment is the placement record of one entity.
type PageAssignment struct {
	ContentID    string    `json:"content_id"`
	LastModified time.Time `json:"last_modified"`

	// OriginalLastModified holds the pre-adjustment timestamp while an
	// adjustment made by the producer is not yet durably confirmed.
	OriginalLastModified *time.Time `json:"original_last_modified,omitempty"`

	ContentLength int64  `json:"content_length"`
	PageID        string `json:"page_id,omitempty"` // empty means not yet paged
}

// IsAssigned reports whether the entity is attached to a page.
func (a PageAssignment) IsAssigned() bool {
	return a.PageID != ""
}

// Unassigned returns a copy detached from its page with any pending
// timestamp adjustment reverted.
func (a PageAssignment) Unassigned() PageAssignment {
	a.PageID = ""
	if a.OriginalLastModified != nil {
		a.LastModified = *a.OriginalLastModified
		a.OriginalLastModified = nil
	}
	return a
}

// Entity is the record a writer appends: the placement record plus the
// content that will be published in the entity's page.
type Entity struct {
	PageAssignment
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// JournalState describes an in-flight commit.
type JournalState struct {
	NewPages           []string `json:"new_pages"`
	NewLatestPage      string   `json:"new_latest_page"`
	PreviousLatestPage string   `json:"previous_latest_page,omitempty"` // empty when the commit did not split
}

// SuspectPages returns every page id the commit intended to introduce or
// finalize, NewPages first and NewLatestPage last.
func (j JournalState) SuspectPages() []string {
	ids := make([]string, 0, len(j.NewPages)+1)
	ids = append(ids, j.NewPages...)
	if j.NewLatestPage != "" {
		ids = append(ids, j.NewLatestPage)
	}
	return ids
}

// AssignPagesResult is the plan produced by packing unassigned entities.
type AssignPagesResult struct {
	// EntityPageAssignments holds every input entity with PageID set.
	EntityPageAssignments []PageAssignment

	// NewPages holds freshly created pages except the final one, oldest first.
	NewPages []PageMetadata

	// NewLatestPage is the page that has no Next once the commit lands. It is
	// the original latest page when that page was only extended in place.
	NewLatestPage PageMetadata

	// PreviousLatestPage is the original latest page with its Next link set,
	// present only when it differs from NewLatestPage.
	PreviousLatestPage *PageMetadata
}

// Journal returns the journal entry describing this plan.
func (r *AssignPagesResult) Journal() JournalState {
	j := JournalState{
		NewPages:      make([]string, 0, len(r.NewPages)),
		NewLatestPage: r.NewLatestPage.PageID,
	}
	for _, p := range r.NewPages {
		j.NewPages = append(j.NewPages, p.PageID)
	}
	if r.PreviousLatestPage != nil {
		j.PreviousLatestPage = r.PreviousLatestPage.PageID
	}
	return j
}

// TouchedPageIDs returns the ids of every page written by the plan.
func (r *AssignPagesResult) TouchedPageIDs() []string {
	ids := r.Journal().SuspectPages()
	if r.PreviousLatestPage != nil {
		ids = append(ids, r.PreviousLatestPage.PageID)
	}
	return ids
}

// Timestamp normalizes t to the precision and location used for storage.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(Quantum)
}
