package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pagefeed/internal/feed"
)

// RollbackReport summarizes what a rollback changed.
type RollbackReport struct {
	DeletedPages       []string `json:"deleted_pages"`
	TrimmedPages       []string `json:"trimmed_pages"`
	RepairedPages      []string `json:"repaired_pages"`
	UnassignedEntities int      `json:"unassigned_entities"`
}

// Rollbacker restores the repositories to the last fully committed state
// after an interrupted commit.
type Rollbacker struct {
	entities feed.EntityRepository
	pages    feed.PageMetadataRepository
	logger   *slog.Logger
}

// NewRollbacker creates a Rollbacker.
func NewRollbacker(entities feed.EntityRepository, pages feed.PageMetadataRepository, logger *slog.Logger) *Rollbacker {
	return &Rollbacker{entities: entities, pages: pages, logger: logger}
}

// pageState is what the read phase learns about one inspected page.
type pageState struct {
	id          string
	metadata    *feed.PageMetadata // nil when no record is stored
	assignments []feed.PageAssignment
}

// Rollback undoes the commit described by journal. The caller deletes the
// journal entry once Rollback returns nil.
//
// Pages the commit introduced (NewPages, plus NewLatestPage when the commit
// split) are suspect: their entities are unassigned and their records
// deleted. Confirmed pages (PreviousLatestPage, the lowest-generation latest
// candidate that is not suspect, and NewLatestPage when the commit only
// extended it in place) are trimmed: entities beyond the stored
// NumberOfEntities are unassigned, the record itself is kept. A Next link on
// a confirmed page pointing at a deleted page is cleared.
//
// Unassigning reverts any pending timestamp adjustment. Rollback is
// idempotent: running it again on the same journal changes nothing.
func (r *Rollbacker) Rollback(ctx context.Context, journal feed.JournalState) (RollbackReport, error) {
	report := RollbackReport{
		DeletedPages:  []string{},
		TrimmedPages:  []string{},
		RepairedPages: []string{},
	}

	// With neither new pages nor a previous latest page the commit targeted a
	// single page: either the existing latest page extended in place or the
	// first page of an empty feed. Both are trimmed rather than deleted; a
	// page that was never saved trims down to nothing.
	inPlace := journal.PreviousLatestPage == "" && len(journal.NewPages) == 0

	doomed := map[string]bool{}
	var deleteIDs []string
	for _, id := range journal.SuspectPages() {
		if inPlace && id == journal.NewLatestPage {
			continue
		}
		if !doomed[id] {
			doomed[id] = true
			deleteIDs = append(deleteIDs, id)
		}
	}

	candidates, err := r.pages.GetWithoutNextLink(ctx)
	if err != nil {
		return report, fmt.Errorf("rollback: %w", err)
	}
	var surviving []feed.PageMetadata
	for _, c := range candidates {
		if !doomed[c.PageID] {
			surviving = append(surviving, c)
		}
	}

	var trimIDs []string
	addTrim := func(id string) {
		if id == "" || doomed[id] {
			return
		}
		for _, t := range trimIDs {
			if t == id {
				return
			}
		}
		trimIDs = append(trimIDs, id)
	}
	addTrim(journal.PreviousLatestPage)
	if inPlace {
		addTrim(journal.NewLatestPage)
	}
	if latest := feed.SelectLatest(surviving); latest != nil {
		addTrim(latest.PageID)
	}

	deleted, trimmed, err := r.load(ctx, deleteIDs, trimIDs)
	if err != nil {
		return report, fmt.Errorf("rollback: %w", err)
	}

	var unassign []feed.PageAssignment
	for _, st := range deleted {
		for _, a := range st.assignments {
			unassign = append(unassign, a.Unassigned())
		}
	}

	var repaired []feed.PageMetadata
	for _, st := range trimmed {
		confirmed := 0
		if st.metadata != nil {
			confirmed = st.metadata.NumberOfEntities
		}
		if len(st.assignments) > confirmed {
			for _, a := range st.assignments[confirmed:] {
				unassign = append(unassign, a.Unassigned())
			}
			report.TrimmedPages = append(report.TrimmedPages, st.id)
		}
		if st.metadata != nil && st.metadata.Next != "" && doomed[st.metadata.Next] {
			fixed := *st.metadata
			fixed.Next = ""
			repaired = append(repaired, fixed)
			report.RepairedPages = append(report.RepairedPages, st.id)
		}
	}

	// Unassign first so no entity ever points at a deleted page, then make the
	// confirmed tail the only latest candidate again, then drop the suspects.
	if len(unassign) > 0 {
		if err := r.entities.SavePageAssignments(ctx, unassign); err != nil {
			return report, fmt.Errorf("rollback: unassign entities: %w", err)
		}
	}
	if len(repaired) > 0 {
		if err := r.pages.Save(ctx, repaired...); err != nil {
			return report, fmt.Errorf("rollback: repair links: %w", err)
		}
	}
	if len(deleteIDs) > 0 {
		if err := r.pages.Delete(ctx, deleteIDs...); err != nil {
			return report, fmt.Errorf("rollback: delete pages: %w", err)
		}
	}

	report.DeletedPages = append(report.DeletedPages, deleteIDs...)
	report.UnassignedEntities = len(unassign)

	r.logger.Info("rolled back interrupted commit",
		"new_latest_page", journal.NewLatestPage,
		"previous_latest_page", journal.PreviousLatestPage,
		"deleted_pages", len(report.DeletedPages),
		"trimmed_pages", len(report.TrimmedPages),
		"repaired_pages", len(report.RepairedPages),
		"unassigned_entities", report.UnassignedEntities,
	)
	return report, nil
}

// load reads the entities (and, for trimmed pages, the metadata) of every
// inspected page. Reads fan out; results keep the order of the id slices.
func (r *Rollbacker) load(ctx context.Context, deleteIDs, trimIDs []string) (deleted, trimmed []pageState, err error) {
	deleted = make([]pageState, len(deleteIDs))
	trimmed = make([]pageState, len(trimIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range deleteIDs {
		g.Go(func() error {
			as, err := r.pageAssignments(gctx, id)
			if err != nil {
				return err
			}
			deleted[i] = pageState{id: id, assignments: as}
			return nil
		})
	}
	for i, id := range trimIDs {
		g.Go(func() error {
			st := pageState{id: id}
			p, err := r.pages.Get(gctx, id)
			switch {
			case errors.Is(err, feed.ErrPageNotFound):
			case err != nil:
				return err
			default:
				st.metadata = &p
			}
			st.assignments, err = r.pageAssignments(gctx, id)
			if err != nil {
				return err
			}
			trimmed[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return deleted, trimmed, nil
}

func (r *Rollbacker) pageAssignments(ctx context.Context, pageID string) ([]feed.PageAssignment, error) {
	as, err := r.entities.GetPageAssignments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if !feed.IsSorted(as) {
		return nil, feed.NewContractError(feed.ErrCodeUnsorted, "get page assignments",
			"entities of page %s not ordered by (last_modified, content_id)", pageID)
	}
	for _, a := range as {
		if a.PageID != pageID {
			return nil, feed.NewContractError(feed.ErrCodeUnexpectedPage, "get page assignments",
				"entity %s attached to %q, requested %s", a.ContentID, a.PageID, pageID)
		}
	}
	return as, nil
}
