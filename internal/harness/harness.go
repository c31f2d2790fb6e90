package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/roach88/pagefeed/internal/feed"
	"github.com/roach88/pagefeed/internal/producer"
	"github.com/roach88/pagefeed/internal/store"
	"github.com/roach88/pagefeed/internal/testutil"
)

// Epoch is the instant entity timestamps in scenarios are offsets from.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Harness executes scenario steps against one database.
type Harness struct {
	store    *store.Store
	repo     *testutil.FaultyRepository
	clock    *testclock.Clock
	ids      *testutil.SequentialPageIDs
	limits   producer.Limits
	logger   *slog.Logger
	producer *producer.Producer
	seq      int
}

// Run executes a scenario in a temporary database and evaluates its
// assertions. The returned error reports harness failures (bad setup,
// unexpected repository errors); expectation and assertion failures are
// collected in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "pagefeed-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "feed.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		repo:   testutil.NewFaultyRepository(st),
		clock:  testclock.NewClock(Epoch),
		ids:    testutil.NewSequentialPageIDs("p"),
		limits: scenario.Limits.Producer(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := h.start(); err != nil {
		return nil, err
	}

	result := NewResult()
	var trace []TraceEvent
	for i, step := range scenario.Steps {
		event, err := h.executeStep(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		trace = append(trace, event)
	}

	snapshot, err := h.Snapshot(ctx, scenario.Name)
	if err != nil {
		return nil, err
	}
	snapshot.Trace = trace
	result.Snapshot = snapshot

	for _, msg := range EvaluateAssertions(ctx, h.store, h.limits, snapshot, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// start builds a producer as a freshly started process would.
func (h *Harness) start() error {
	p, err := producer.New(h.repo, h.repo, h.repo, h.limits,
		producer.WithPageIDGenerator(h.ids),
		producer.WithClock(h.clock),
		producer.WithLogger(h.logger),
	)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	h.producer = p
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) (TraceEvent, error) {
	h.seq++
	event := TraceEvent{Seq: h.seq}

	switch {
	case len(step.Append) > 0:
		event.Type = EventAppend
		entities := make([]feed.Entity, 0, len(step.Append))
		for _, e := range step.Append {
			entities = append(entities, feed.Entity{
				PageAssignment: feed.PageAssignment{
					ContentID:    e.ID,
					LastModified: Epoch.Add(time.Duration(e.At) * time.Millisecond),
				},
				ContentType: "application/octet-stream",
				Content:     []byte(strings.Repeat("x", e.Size)),
			})
			event.Entities = append(event.Entities, e.ID)
		}
		if err := h.producer.Append(ctx, entities...); err != nil {
			return event, err
		}

	case step.Assign != nil:
		event.Type = EventAssign
		if step.Assign.CrashAt > 0 {
			h.repo.CrashAt(step.Assign.CrashAt)
		}
		n, err := h.producer.AssignPages(ctx)
		if err != nil && !errors.Is(err, testutil.ErrInjectedCrash) {
			return event, err
		}
		event.Assigned = n
		event.Crashed = h.repo.Crashed()

		if step.Assign.CrashAt > 0 && !event.Crashed {
			result.AddError(fmt.Sprintf("step %d: crash_at %d never fired", h.seq, step.Assign.CrashAt))
		}
		if exp := step.Assign.ExpectAssigned; exp != nil && !event.Crashed && *exp != n {
			result.AddError(fmt.Sprintf("step %d: expected %d entities assigned, got %d", h.seq, *exp, n))
		}

	case step.Restart:
		event.Type = EventRestart
		h.repo.Restart()
		if err := h.start(); err != nil {
			return event, err
		}
	}

	return event, nil
}

// Snapshot dumps the stored chain, the unassigned entities and the journal.
func (h *Harness) Snapshot(ctx context.Context, name string) (*ChainSnapshot, error) {
	pages, err := h.store.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snapshot := &ChainSnapshot{
		ScenarioName: name,
		Trace:        []TraceEvent{},
		ChainOrdered: true,
		Pages:        []PageSnapshot{},
	}

	ordered, err := feed.OrderChain(pages)
	if err != nil {
		snapshot.ChainOrdered = false
		ordered = pages
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageID < ordered[j].PageID })
	}

	for _, p := range ordered {
		as, err := h.store.GetPageAssignments(ctx, p.PageID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		snapshot.Pages = append(snapshot.Pages, PageSnapshot{
			PageID:           p.PageID,
			Prev:             p.Prev,
			Next:             p.Next,
			Generation:       p.Generation,
			LastModifiedMs:   offsetMs(p.LastModified),
			NumberOfBytes:    p.NumberOfBytes,
			NumberOfEntities: p.NumberOfEntities,
			Entities:         entitySnapshots(as),
		})
	}

	// A negative LIMIT is unbounded in SQLite.
	unassigned, err := h.store.GetUnassigned(ctx, -1)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	snapshot.Unassigned = entitySnapshots(unassigned)

	snapshot.Journal, err = h.store.GetJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snapshot, nil
}

func entitySnapshots(as []feed.PageAssignment) []EntitySnapshot {
	out := make([]EntitySnapshot, 0, len(as))
	for _, a := range as {
		out = append(out, EntitySnapshot{
			ContentID:      a.ContentID,
			LastModifiedMs: offsetMs(a.LastModified),
			ContentLength:  a.ContentLength,
		})
	}
	return out
}

func offsetMs(t time.Time) int64 {
	return t.Sub(Epoch).Milliseconds()
}
