package producer

import (
	"context"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pagefeed/internal/feed"
)

// Append stores entities for a later assign run. It may run concurrently
// with AssignPages.
//
// Content ids and content types are NFC-normalized so visually identical ids
// collide. ContentLength is derived from Content. A zero LastModified is
// stamped from the producer clock; every timestamp is truncated to
// feed.Quantum. Any page placement on the input is discarded.
//
// Appending an id that is already stored is a no-op for that entity.
func (p *Producer) Append(ctx context.Context, entities ...feed.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	now := feed.Timestamp(p.clock.Now())
	seen := make(map[string]bool, len(entities))
	prepared := make([]feed.Entity, 0, len(entities))

	for i, e := range entities {
		e.ContentID = NormalizeID(e.ContentID)
		e.ContentType = NormalizeID(e.ContentType)

		if e.ContentID == "" {
			return fmt.Errorf("append: %w",
				feed.NewContractError(feed.ErrCodeInvalidEntity, "append", "entity %d has an empty content id", i))
		}
		if seen[e.ContentID] {
			return fmt.Errorf("append: %w",
				feed.NewContractError(feed.ErrCodeDuplicateEntity, "append", "content id %q appears twice in batch", e.ContentID))
		}
		seen[e.ContentID] = true

		if e.LastModified.IsZero() {
			e.LastModified = now
		} else {
			e.LastModified = feed.Timestamp(e.LastModified)
		}
		e.ContentLength = int64(len(e.Content))
		e.OriginalLastModified = nil
		e.PageID = ""

		prepared = append(prepared, e)
	}

	if err := p.entities.Append(ctx, prepared...); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	p.metrics.entitiesAppended.Add(float64(len(prepared)))

	p.logger.Debug("entities appended", "count", len(prepared))
	return nil
}

// NormalizeID returns the NFC form of a content id or content type, the
// form Append stores.
func NormalizeID(s string) string {
	return norm.NFC.String(s)
}
