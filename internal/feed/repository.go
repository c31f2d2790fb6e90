package feed

import "context"

// EntityRepository stores appended entities and their page placement.
//
// Append must be durable before it returns. GetUnassigned and
// GetPageAssignments must return entities sorted by (LastModified, ContentID).
// SavePageAssignments must apply all records or none.
type EntityRepository interface {
	Append(ctx context.Context, entities ...Entity) error
	GetUnassigned(ctx context.Context, limit int) ([]PageAssignment, error)
	GetPageAssignments(ctx context.Context, pageID string) ([]PageAssignment, error)
	SavePageAssignments(ctx context.Context, assignments []PageAssignment) error

	// ConfirmTimestamps clears OriginalLastModified on every entity attached
	// to the given pages.
	ConfirmTimestamps(ctx context.Context, pageIDs []string) error
}

// PageMetadataRepository stores page records. Save and Delete are atomic per
// call; deleting an unknown id is not an error.
type PageMetadataRepository interface {
	GetWithoutNextLink(ctx context.Context) ([]PageMetadata, error)
	Get(ctx context.Context, pageID string) (PageMetadata, error)
	Save(ctx context.Context, pages ...PageMetadata) error
	Delete(ctx context.Context, pageIDs ...string) error
}

// JournalRepository is a durable single slot for the in-flight commit.
// GetJournal returns nil when the slot is empty.
type JournalRepository interface {
	SaveJournal(ctx context.Context, journal JournalState) error
	GetJournal(ctx context.Context) (*JournalState, error)
	DeleteJournal(ctx context.Context) error
}
