package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pagefeed/internal/feed"
)

// SaveJournal writes the single journal slot, replacing any previous entry.
func (s *Store) SaveJournal(ctx context.Context, j feed.JournalState) error {
	newPages, err := marshalPageIDs(j.NewPages)
	if err != nil {
		return fmt.Errorf("save journal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal
		(id, new_pages, new_latest_page, previous_latest_page)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			new_pages = excluded.new_pages,
			new_latest_page = excluded.new_latest_page,
			previous_latest_page = excluded.previous_latest_page
	`,
		newPages,
		j.NewLatestPage,
		nullString(j.PreviousLatestPage),
	)
	if err != nil {
		return fmt.Errorf("save journal: %w", err)
	}
	return nil
}

// GetJournal returns the journal entry, or nil if the slot is empty.
func (s *Store) GetJournal(ctx context.Context) (*feed.JournalState, error) {
	var (
		newPages string
		j        feed.JournalState
		prev     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT new_pages, new_latest_page, previous_latest_page
		FROM journal
		WHERE id = 1
	`).Scan(&newPages, &j.NewLatestPage, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}

	j.NewPages, err = unmarshalPageIDs(newPages)
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}
	j.PreviousLatestPage = prev.String
	return &j, nil
}

// DeleteJournal empties the journal slot. Deleting an empty slot is not an
// error.
func (s *Store) DeleteJournal(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE id = 1`); err != nil {
		return fmt.Errorf("delete journal: %w", err)
	}
	return nil
}
