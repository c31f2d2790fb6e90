package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/roach88/pagefeed/internal/feed"
)

// Producer runs the assign-pages cycle for one feed and accepts appends.
type Producer struct {
	entities feed.EntityRepository
	pages    feed.PageMetadataRepository
	journal  feed.JournalRepository

	limits   Limits
	pageIDs  PageIDGenerator
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Collector
	rotator  *GenerationRotator
	rollback *Rollbacker
}

// Option allows configuration of producer collaborators.
type Option func(*Producer)

// WithPageIDGenerator overrides the default UUIDv7 page ids.
func WithPageIDGenerator(g PageIDGenerator) Option {
	return func(p *Producer) {
		p.pageIDs = g
	}
}

// WithClock overrides the wall clock used for append timestamps and run
// scheduling.
func WithClock(c clock.Clock) Option {
	return func(p *Producer) {
		p.clock = c
	}
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = l
	}
}

// WithMetrics records run metrics in c. The caller registers c.
func WithMetrics(c *Collector) Option {
	return func(p *Producer) {
		p.metrics = c
	}
}

// New creates a Producer. Limits are validated here so a misconfigured
// producer never starts a run.
func New(
	entities feed.EntityRepository,
	pages feed.PageMetadataRepository,
	journal feed.JournalRepository,
	limits Limits,
	opts ...Option,
) (*Producer, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	p := &Producer{
		entities: entities,
		pages:    pages,
		journal:  journal,
		limits:   limits,
		pageIDs:  UUIDv7PageIDs{},
		clock:    clock.WallClock,
		logger:   slog.Default(),
		metrics:  NewMetricsCollector(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.rotator = NewGenerationRotator(pages, p.logger)
	p.rollback = NewRollbacker(entities, pages, p.logger)
	return p, nil
}

// Limits returns the producer limits.
func (p *Producer) Limits() Limits {
	return p.limits
}

// AssignPages performs one assign run and returns the number of entities
// attached to pages. A failed run leaves state the next run recovers from.
func (p *Producer) AssignPages(ctx context.Context) (int, error) {
	start := p.clock.Now()
	n, err := p.assignPages(ctx)
	p.metrics.runDuration.Observe(p.clock.Now().Sub(start).Seconds())

	switch {
	case err != nil:
		p.metrics.runs.WithLabelValues(OutcomeFailed).Inc()
	case n == 0:
		p.metrics.runs.WithLabelValues(OutcomeIdle).Inc()
	default:
		p.metrics.runs.WithLabelValues(OutcomeAssigned).Inc()
		p.metrics.entitiesAssigned.Add(float64(n))
	}
	return n, err
}

func (p *Producer) assignPages(ctx context.Context) (int, error) {
	// Step 1: recover from an interrupted commit
	journal, err := p.journal.GetJournal(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}
	if journal != nil {
		if _, err := p.rollback.Rollback(ctx, *journal); err != nil {
			return 0, fmt.Errorf("assign pages: %w", err)
		}
		if err := p.journal.DeleteJournal(ctx); err != nil {
			return 0, fmt.Errorf("assign pages: %w", err)
		}
		p.metrics.rollbacks.Inc()
	}

	// Step 2: effective latest page
	candidates, err := p.pages.GetWithoutNextLink(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}
	if len(candidates) > 1 {
		p.logger.Warn("multiple latest page candidates", "count", len(candidates))
	}
	latest := feed.SelectLatest(candidates)

	// Step 3
	latest, rotated, err := p.rotator.RotateIfNecessary(ctx, latest)
	if err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}
	if rotated {
		p.metrics.rotations.Inc()
	}

	tailID, err := p.latestTail(ctx, latest)
	if err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}

	// Step 4
	unassigned, err := p.entities.GetUnassigned(ctx, p.limits.MaxEntitiesPerRun)
	if err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}
	if err := checkUnassigned(unassigned); err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}

	// Steps 5 and 6
	normalized := NormalizeTimestamps(latest, tailID, unassigned)
	result := AssignPages(latest, p.limits, p.pageIDs, normalized)
	if result == nil {
		p.logger.Debug("no unassigned entities")
		return 0, nil
	}

	if err := p.commit(ctx, result); err != nil {
		return 0, fmt.Errorf("assign pages: %w", err)
	}

	created := len(result.NewPages)
	if latest == nil || result.NewLatestPage.PageID != latest.PageID {
		created++
	}
	p.metrics.pagesCreated.Add(float64(created))

	// Confirmation is cosmetic: OriginalLastModified on a confirmed entity is
	// never consulted again.
	if err := p.entities.ConfirmTimestamps(ctx, result.TouchedPageIDs()); err != nil {
		p.logger.Warn("failed to confirm timestamps", "error", err)
	}

	p.logger.Info("pages assigned",
		"entities", len(result.EntityPageAssignments),
		"pages_created", created,
		"latest_page", result.NewLatestPage.PageID,
		"generation", result.NewLatestPage.Generation,
	)
	return len(result.EntityPageAssignments), nil
}

// commit applies a plan in visibility-safe order (steps 7 to 12).
func (p *Producer) commit(ctx context.Context, result *feed.AssignPagesResult) error {
	if err := p.journal.SaveJournal(ctx, result.Journal()); err != nil {
		return err
	}
	if err := p.entities.SavePageAssignments(ctx, result.EntityPageAssignments); err != nil {
		return err
	}
	if len(result.NewPages) > 0 {
		if err := p.pages.Save(ctx, result.NewPages...); err != nil {
			return err
		}
	}
	if err := p.pages.Save(ctx, result.NewLatestPage); err != nil {
		return err
	}
	if result.PreviousLatestPage != nil {
		if err := p.pages.Save(ctx, *result.PreviousLatestPage); err != nil {
			return err
		}
	}
	return p.journal.DeleteJournal(ctx)
}

// latestTail returns the content id of the last entity on the latest page,
// or "" when there is none.
func (p *Producer) latestTail(ctx context.Context, latest *feed.PageMetadata) (string, error) {
	if latest == nil || latest.NumberOfEntities == 0 {
		return "", nil
	}
	as, err := p.entities.GetPageAssignments(ctx, latest.PageID)
	if err != nil {
		return "", err
	}
	if !feed.IsSorted(as) {
		return "", feed.NewContractError(feed.ErrCodeUnsorted, "get page assignments",
			"entities of page %s not ordered by (last_modified, content_id)", latest.PageID)
	}
	if len(as) == 0 {
		return "", nil
	}
	return as[len(as)-1].ContentID, nil
}

// checkUnassigned enforces the GetUnassigned contract.
func checkUnassigned(entities []feed.PageAssignment) error {
	if !feed.IsSorted(entities) {
		return feed.NewContractError(feed.ErrCodeUnsorted, "get unassigned",
			"entities not ordered by (last_modified, content_id)")
	}
	for _, e := range entities {
		if e.IsAssigned() {
			return feed.NewContractError(feed.ErrCodeUnexpectedPage, "get unassigned",
				"entity %s already attached to %s", e.ContentID, e.PageID)
		}
	}
	return nil
}

// Run performs assign runs until ctx is cancelled. A run that fills a whole
// batch is followed immediately by another; otherwise the loop waits for
// interval. Failed runs are logged and retried on the next tick, except
// contract violations, which end the loop with the error.
func (p *Producer) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("producer starting", "interval", interval)

	for {
		n, err := p.AssignPages(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if feed.IsContractError(err) {
				p.logger.Error("producer stopped on contract violation", "error", err)
				return err
			}
			p.logger.Error("assign run failed", "error", err)
		}

		if err == nil && n >= p.limits.MaxEntitiesPerRun {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("producer stopped")
			return ctx.Err()
		case <-p.clock.After(interval):
		}
	}
}
