package harness

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/pagefeed/internal/feed"
	"github.com/roach88/pagefeed/internal/producer"
	"github.com/roach88/pagefeed/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Layout   [][]string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nChain layout:\n")
	for i, ids := range e.Layout {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, strings.Join(ids, " "))
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the final state and
// returns the failure messages.
func EvaluateAssertions(
	ctx context.Context,
	st *store.Store,
	limits producer.Limits,
	snapshot *ChainSnapshot,
	assertions []Assertion,
) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(ctx, st, limits, snapshot, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(ctx context.Context, st *store.Store, limits producer.Limits, snapshot *ChainSnapshot, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Layout: snapshot.Layout()}
	}

	switch a.Type {
	case AssertChainValid:
		if problems := chainProblems(ctx, st, limits, snapshot); len(problems) > 0 {
			return fail("valid chain", strings.Join(problems, "; "))
		}

	case AssertLayout:
		expected := a.Layout
		if expected == nil {
			expected = [][]string{}
		}
		actual := snapshot.Layout()
		if !slices.EqualFunc(expected, actual, slices.Equal[[]string]) {
			return fail(fmt.Sprintf("%v", expected), fmt.Sprintf("%v", actual))
		}

	case AssertPageCount:
		if len(snapshot.Pages) != a.Count {
			return fail(fmt.Sprintf("%d pages", a.Count), fmt.Sprintf("%d pages", len(snapshot.Pages)))
		}

	case AssertUnassignedCount:
		if len(snapshot.Unassigned) != a.Count {
			return fail(fmt.Sprintf("%d unassigned", a.Count), fmt.Sprintf("%d unassigned", len(snapshot.Unassigned)))
		}

	case AssertJournalEmpty:
		if snapshot.Journal != nil {
			return fail("no journal", fmt.Sprintf("journal for %s", snapshot.Journal.NewLatestPage))
		}

	case AssertJournalPending:
		if snapshot.Journal == nil {
			return fail("pending journal", "no journal")
		}

	case AssertLatestGeneration:
		if len(snapshot.Pages) == 0 || !snapshot.ChainOrdered {
			return fail(fmt.Sprintf("generation %d", a.Generation), "no single latest page")
		}
		latest := snapshot.Pages[len(snapshot.Pages)-1]
		if latest.Generation != a.Generation {
			return fail(fmt.Sprintf("generation %d", a.Generation), fmt.Sprintf("generation %d", latest.Generation))
		}

	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

// chainProblems runs the chain verifier and cross-checks every page's
// counters against its stored entities.
func chainProblems(ctx context.Context, st *store.Store, limits producer.Limits, snapshot *ChainSnapshot) []string {
	var problems []string

	pages, err := st.ListPages(ctx)
	if err != nil {
		return []string{err.Error()}
	}
	for _, v := range feed.VerifyChain(pages, limits.Bounds()) {
		problems = append(problems, v.String())
	}
	if !snapshot.ChainOrdered {
		return problems
	}

	prevMs := int64(math.MinInt64)
	for _, p := range snapshot.Pages {
		var bytes int64
		for _, e := range p.Entities {
			bytes += e.ContentLength
			if e.LastModifiedMs < prevMs {
				problems = append(problems, fmt.Sprintf("entity %s goes back in time", e.ContentID))
			}
			prevMs = e.LastModifiedMs
		}
		if len(p.Entities) != p.NumberOfEntities {
			problems = append(problems, fmt.Sprintf("page %s counts %d entities, holds %d", p.PageID, p.NumberOfEntities, len(p.Entities)))
		}
		if bytes != p.NumberOfBytes {
			problems = append(problems, fmt.Sprintf("page %s counts %d bytes, holds %d", p.PageID, p.NumberOfBytes, bytes))
		}
		if n := len(p.Entities); n > 0 && p.Entities[n-1].LastModifiedMs != p.LastModifiedMs {
			problems = append(problems, fmt.Sprintf("page %s last modified %d, newest entity %d",
				p.PageID, p.LastModifiedMs, p.Entities[n-1].LastModifiedMs))
		}
	}
	return problems
}
