// Package producer implements the feed page-assignment and crash-recovery
// engine.
//
// Writers call Append to add entities without a page. A single "assign
// pages" run (Producer.AssignPages) then folds those entities into the page
// chain:
//
//  1. Read the journal; if an entry is present, roll the interrupted commit
//     back and delete the entry.
//  2. Load the latest-page candidates; the lowest generation wins.
//  3. Rotate the latest page's generation if it reached MaxGeneration.
//  4. Load up to MaxEntitiesPerRun unassigned entities.
//  5. Normalize their timestamps (NormalizeTimestamps).
//  6. Pack them into pages (AssignPages); stop if there is nothing to do.
//  7. Save the journal describing the plan.
//  8. Save the entity assignments.
//  9. Save the brand-new pages (nothing references them yet).
//  10. Save the new latest page.
//  11. Save the previous latest page with its Next link. This flips the
//     reader-visible latest page and therefore comes last.
//  12. Delete the journal.
//
// Every step short of 11 is invisible to readers, who only traverse pages
// reachable from the page without a Next link. A run that fails at any point
// leaves the journal behind for the next run's rollback; "run again" is the
// only retry mechanism and is idempotent.
//
// CONCURRENCY:
//
// Only one assign run may be active per feed at a time. The producer does
// not enforce this; callers schedule runs from a single goroutine (see Run)
// and a single process. Appends may interleave with a run at any time.
package producer
