package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/pagefeed/internal/feed"
)

// ErrInjectedCrash is returned by FaultyRepository for injected failures.
var ErrInjectedCrash = errors.New("injected crash")

// Mutation names recorded by FaultyRepository.
const (
	OpSaveJournal         = "SaveJournal"
	OpDeleteJournal       = "DeleteJournal"
	OpSavePageAssignments = "SavePageAssignments"
	OpConfirmTimestamps   = "ConfirmTimestamps"
	OpSavePages           = "SavePages"
	OpDeletePages         = "DeletePages"
)

// Repository is the union of the three feed repository contracts, as
// implemented by store.Store.
type Repository interface {
	feed.EntityRepository
	feed.PageMetadataRepository
	feed.JournalRepository
}

// FaultyRepository wraps a Repository and fails mutations on demand.
//
// CrashAt simulates a process dying part way through a commit: the chosen
// mutation and every mutation after it fail without reaching the wrapped
// repository, until Restart. Reads and appends always pass through.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FaultyRepository struct {
	inner Repository

	mu        sync.Mutex
	crashAt   int // 1-based mutation index, 0 = never
	count     int
	crashed   bool
	failingOp map[string]bool
	log       []string
}

// NewFaultyRepository wraps inner with no faults armed.
func NewFaultyRepository(inner Repository) *FaultyRepository {
	return &FaultyRepository{inner: inner, failingOp: map[string]bool{}}
}

// CrashAt arms a crash at the nth mutation from now (1-based).
func (r *FaultyRepository) CrashAt(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashAt = n
	r.count = 0
	r.crashed = false
}

// FailOp makes every call to the named mutation fail until Restart.
func (r *FaultyRepository) FailOp(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failingOp[op] = true
}

// Restart disarms all faults and clears the mutation log, as if the process
// had been restarted against the same durable state.
func (r *FaultyRepository) Restart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashAt = 0
	r.count = 0
	r.crashed = false
	r.failingOp = map[string]bool{}
	r.log = nil
}

// Crashed reports whether an armed crash has fired.
func (r *FaultyRepository) Crashed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.crashed
}

// Mutations returns the names of mutations that reached the wrapped
// repository, in order.
func (r *FaultyRepository) Mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

// mutate runs fn unless a fault applies to op.
func (r *FaultyRepository) mutate(op string, fn func() error) error {
	r.mu.Lock()
	r.count++
	if r.crashAt > 0 && r.count >= r.crashAt {
		r.crashed = true
	}
	fail := r.crashed || r.failingOp[op]
	r.mu.Unlock()

	if fail {
		return fmt.Errorf("%s: %w", op, ErrInjectedCrash)
	}
	if err := fn(); err != nil {
		return err
	}

	r.mu.Lock()
	r.log = append(r.log, op)
	r.mu.Unlock()
	return nil
}

// Append passes through.
func (r *FaultyRepository) Append(ctx context.Context, entities ...feed.Entity) error {
	return r.inner.Append(ctx, entities...)
}

// GetUnassigned passes through.
func (r *FaultyRepository) GetUnassigned(ctx context.Context, limit int) ([]feed.PageAssignment, error) {
	return r.inner.GetUnassigned(ctx, limit)
}

// GetPageAssignments passes through.
func (r *FaultyRepository) GetPageAssignments(ctx context.Context, pageID string) ([]feed.PageAssignment, error) {
	return r.inner.GetPageAssignments(ctx, pageID)
}

func (r *FaultyRepository) SavePageAssignments(ctx context.Context, assignments []feed.PageAssignment) error {
	return r.mutate(OpSavePageAssignments, func() error {
		return r.inner.SavePageAssignments(ctx, assignments)
	})
}

func (r *FaultyRepository) ConfirmTimestamps(ctx context.Context, pageIDs []string) error {
	return r.mutate(OpConfirmTimestamps, func() error {
		return r.inner.ConfirmTimestamps(ctx, pageIDs)
	})
}

// GetWithoutNextLink passes through.
func (r *FaultyRepository) GetWithoutNextLink(ctx context.Context) ([]feed.PageMetadata, error) {
	return r.inner.GetWithoutNextLink(ctx)
}

// Get passes through.
func (r *FaultyRepository) Get(ctx context.Context, pageID string) (feed.PageMetadata, error) {
	return r.inner.Get(ctx, pageID)
}

func (r *FaultyRepository) Save(ctx context.Context, pages ...feed.PageMetadata) error {
	return r.mutate(OpSavePages, func() error {
		return r.inner.Save(ctx, pages...)
	})
}

func (r *FaultyRepository) Delete(ctx context.Context, pageIDs ...string) error {
	return r.mutate(OpDeletePages, func() error {
		return r.inner.Delete(ctx, pageIDs...)
	})
}

func (r *FaultyRepository) SaveJournal(ctx context.Context, journal feed.JournalState) error {
	return r.mutate(OpSaveJournal, func() error {
		return r.inner.SaveJournal(ctx, journal)
	})
}

// GetJournal passes through.
func (r *FaultyRepository) GetJournal(ctx context.Context) (*feed.JournalState, error) {
	return r.inner.GetJournal(ctx)
}

func (r *FaultyRepository) DeleteJournal(ctx context.Context) error {
	return r.mutate(OpDeleteJournal, func() error {
		return r.inner.DeleteJournal(ctx)
	})
}

var _ Repository = (*FaultyRepository)(nil)
