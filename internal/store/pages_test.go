package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/pagefeed/internal/feed"
)

func TestSave_GetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := feed.PageMetadata{
		PageID:           "p2",
		LastModified:     at(7),
		Prev:             "p1",
		NumberOfBytes:    42,
		NumberOfEntities: 3,
		Generation:       17,
	}
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Get(ctx, "p2")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.PageID != p.PageID || got.Prev != "p1" || got.Next != "" ||
		got.NumberOfBytes != 42 || got.NumberOfEntities != 3 || got.Generation != 17 ||
		!got.LastModified.Equal(at(7)) {
		t.Errorf("Get() = %+v, want %+v", got, p)
	}
}

func TestSave_Upserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := feed.PageMetadata{PageID: "p1", LastModified: at(1), NumberOfEntities: 1, Generation: 1}
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	p.Next = "p2"
	p.Generation = 2
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	got, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Next != "p2" || got.Generation != 2 {
		t.Errorf("Get() = %+v, want next=p2 generation=2", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, feed.ErrPageNotFound) {
		t.Errorf("Get() error = %v, want ErrPageNotFound", err)
	}
}

func TestGetWithoutNextLink_OrderedByGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Save(ctx,
		feed.PageMetadata{PageID: "p1", LastModified: at(1), Next: "p2", Generation: 3},
		feed.PageMetadata{PageID: "p2", LastModified: at(2), Prev: "p1", Generation: 5},
		feed.PageMetadata{PageID: "p3", LastModified: at(3), Prev: "p2", Generation: 4},
	)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.GetWithoutNextLink(ctx)
	if err != nil {
		t.Fatalf("GetWithoutNextLink() failed: %v", err)
	}
	if len(got) != 2 || got[0].PageID != "p3" || got[1].PageID != "p2" {
		t.Errorf("GetWithoutNextLink() = %+v, want [p3 p2]", got)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Save(ctx,
		feed.PageMetadata{PageID: "p1", LastModified: at(1)},
		feed.PageMetadata{PageID: "p2", LastModified: at(2)},
	)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := s.Delete(ctx, "p1", "unknown"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	pages, err := s.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages() failed: %v", err)
	}
	if len(pages) != 1 || pages[0].PageID != "p2" {
		t.Errorf("ListPages() = %+v, want only p2", pages)
	}
}
