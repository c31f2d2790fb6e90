package producer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pagefeed/internal/feed"
)

// MaxGeneration is the generation ceiling. A latest page at or above it is
// reset to feed.InitialGeneration before the next commit.
const MaxGeneration int64 = 1_000_000_000

// GenerationRotator keeps the generation counter from overflowing.
type GenerationRotator struct {
	pages   feed.PageMetadataRepository
	ceiling int64
	logger  *slog.Logger
}

// NewGenerationRotator creates a rotator with the MaxGeneration ceiling.
func NewGenerationRotator(pages feed.PageMetadataRepository, logger *slog.Logger) *GenerationRotator {
	return &GenerationRotator{pages: pages, ceiling: MaxGeneration, logger: logger}
}

// RotateIfNecessary returns latest unchanged when it is nil or below the
// ceiling. Otherwise it persists a copy with the generation reset and
// returns that copy with rotated=true.
//
// Must only run when no journal entry exists: the reset relies on there
// being a single latest-page candidate.
func (r *GenerationRotator) RotateIfNecessary(ctx context.Context, latest *feed.PageMetadata) (_ *feed.PageMetadata, rotated bool, _ error) {
	if latest == nil || latest.Generation < r.ceiling {
		return latest, false, nil
	}

	reset := *latest
	reset.Generation = feed.InitialGeneration
	if err := r.pages.Save(ctx, reset); err != nil {
		return nil, false, fmt.Errorf("rotate generation: %w", err)
	}

	r.logger.Info("generation rotated",
		"page_id", reset.PageID,
		"from", latest.Generation,
		"to", reset.Generation,
	)
	return &reset, true, nil
}
