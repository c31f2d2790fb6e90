package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/pagefeed/internal/feed"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func entity(id string, ms int, content string) feed.Entity {
	return feed.Entity{
		PageAssignment: feed.PageAssignment{
			ContentID:     id,
			LastModified:  at(ms),
			ContentLength: int64(len(content)),
		},
		ContentType: "application/json",
		Content:     []byte(content),
	}
}

func ids(as []feed.PageAssignment) []string {
	out := []string{}
	for _, a := range as {
		out = append(out, a.ContentID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAppend_GetUnassignedOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Append(ctx,
		entity("c", 5, "{}"),
		entity("b", 1, "{}"),
		entity("a", 1, "{}"),
		entity("B", 1, "{}"),
	)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	got, err := s.GetUnassigned(ctx, 10)
	if err != nil {
		t.Fatalf("GetUnassigned() failed: %v", err)
	}

	// BINARY collation: upper case sorts before lower case
	want := []string{"B", "a", "b", "c"}
	if !equalIDs(ids(got), want) {
		t.Errorf("GetUnassigned() = %v, want %v", ids(got), want)
	}
	if !feed.IsSorted(got) {
		t.Error("GetUnassigned() result not sorted")
	}
}

func TestGetUnassigned_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, entity(id, i, "x")); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	got, err := s.GetUnassigned(ctx, 2)
	if err != nil {
		t.Fatalf("GetUnassigned() failed: %v", err)
	}
	if !equalIDs(ids(got), []string{"a", "b"}) {
		t.Errorf("GetUnassigned(2) = %v", ids(got))
	}
}

func TestAppend_DuplicateIsIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, entity("a", 1, "first")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, entity("a", 2, "second")); err != nil {
		t.Fatalf("second Append() failed: %v", err)
	}

	e, err := s.GetEntity(ctx, "a")
	if err != nil {
		t.Fatalf("GetEntity() failed: %v", err)
	}
	if string(e.Content) != "first" {
		t.Errorf("content = %q, want first write to win", e.Content)
	}
	if !e.LastModified.Equal(at(1)) {
		t.Errorf("last_modified = %v, want %v", e.LastModified, at(1))
	}
}

func TestSavePageAssignments_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, entity("a", 1, "xx"), entity("b", 1, "yyy")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	orig := at(1)
	err := s.SavePageAssignments(ctx, []feed.PageAssignment{
		{ContentID: "a", LastModified: at(1), ContentLength: 2, PageID: "p1"},
		{ContentID: "b", LastModified: at(2), OriginalLastModified: &orig, ContentLength: 3, PageID: "p1"},
	})
	if err != nil {
		t.Fatalf("SavePageAssignments() failed: %v", err)
	}

	got, err := s.GetPageAssignments(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPageAssignments() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assignments, want 2", len(got))
	}
	if got[0].OriginalLastModified != nil {
		t.Error("a: original_last_modified should be NULL")
	}
	if got[1].OriginalLastModified == nil || !got[1].OriginalLastModified.Equal(orig) {
		t.Errorf("b: original_last_modified = %v, want %v", got[1].OriginalLastModified, orig)
	}
	if !got[1].LastModified.Equal(at(2)) || got[1].PageID != "p1" || got[1].ContentLength != 3 {
		t.Errorf("b: unexpected record %+v", got[1])
	}

	unassigned, err := s.GetUnassigned(ctx, 10)
	if err != nil {
		t.Fatalf("GetUnassigned() failed: %v", err)
	}
	if len(unassigned) != 0 {
		t.Errorf("expected no unassigned entities, got %v", ids(unassigned))
	}
}

func TestSavePageAssignments_AllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, entity("a", 1, "x")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	err := s.SavePageAssignments(ctx, []feed.PageAssignment{
		{ContentID: "a", LastModified: at(1), ContentLength: 1, PageID: "p1"},
		{ContentID: "missing", LastModified: at(1), ContentLength: 1, PageID: "p1"},
	})
	if !errors.Is(err, feed.ErrEntityNotFound) {
		t.Fatalf("SavePageAssignments() error = %v, want ErrEntityNotFound", err)
	}

	got, err := s.GetPageAssignments(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPageAssignments() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("partial write visible: %v", ids(got))
	}
}

func TestSavePageAssignments_Unassign(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, entity("a", 1, "x")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	assigned := feed.PageAssignment{ContentID: "a", LastModified: at(1), ContentLength: 1, PageID: "p1"}
	if err := s.SavePageAssignments(ctx, []feed.PageAssignment{assigned}); err != nil {
		t.Fatalf("SavePageAssignments() failed: %v", err)
	}
	if err := s.SavePageAssignments(ctx, []feed.PageAssignment{assigned.Unassigned()}); err != nil {
		t.Fatalf("SavePageAssignments() failed: %v", err)
	}

	n, err := s.CountUnassigned(ctx)
	if err != nil {
		t.Fatalf("CountUnassigned() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountUnassigned() = %d, want 1", n)
	}
}

func TestConfirmTimestamps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, entity("a", 1, "x"), entity("b", 1, "x")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	orig := at(1)
	err := s.SavePageAssignments(ctx, []feed.PageAssignment{
		{ContentID: "a", LastModified: at(2), OriginalLastModified: &orig, ContentLength: 1, PageID: "p1"},
		{ContentID: "b", LastModified: at(2), OriginalLastModified: &orig, ContentLength: 1, PageID: "p2"},
	})
	if err != nil {
		t.Fatalf("SavePageAssignments() failed: %v", err)
	}

	if err := s.ConfirmTimestamps(ctx, []string{"p1"}); err != nil {
		t.Fatalf("ConfirmTimestamps() failed: %v", err)
	}
	if err := s.ConfirmTimestamps(ctx, nil); err != nil {
		t.Fatalf("ConfirmTimestamps(nil) failed: %v", err)
	}

	a, _ := s.GetEntity(ctx, "a")
	b, _ := s.GetEntity(ctx, "b")
	if a.OriginalLastModified != nil {
		t.Error("a: original_last_modified should be cleared")
	}
	if !a.LastModified.Equal(at(2)) {
		t.Errorf("a: last_modified = %v, want adjusted value kept", a.LastModified)
	}
	if b.OriginalLastModified == nil {
		t.Error("b: original_last_modified should be kept")
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetEntity(context.Background(), "nope")
	if !errors.Is(err, feed.ErrEntityNotFound) {
		t.Errorf("GetEntity() error = %v, want ErrEntityNotFound", err)
	}
}
