package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pagefeed/internal/feed"
)

const pageColumns = `page_id, last_modified, prev, next, number_of_bytes, number_of_entities, generation`

// GetWithoutNextLink returns every latest-page candidate, lowest generation
// first.
func (s *Store) GetWithoutNextLink(ctx context.Context) ([]feed.PageMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageColumns+`
		FROM pages
		WHERE next IS NULL
		ORDER BY generation ASC, page_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest candidates: %w", err)
	}
	return scanPages(rows)
}

// Get retrieves a single page. Returns feed.ErrPageNotFound if not found.
func (s *Store) Get(ctx context.Context, pageID string) (feed.PageMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pageColumns+`
		FROM pages
		WHERE page_id = ?
	`, pageID)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.PageMetadata{}, fmt.Errorf("get page %s: %w", pageID, feed.ErrPageNotFound)
	}
	if err != nil {
		return feed.PageMetadata{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	return p, nil
}

// ListPages returns every stored page ordered by (last_modified, page_id).
// Use feed.OrderChain for chain order.
func (s *Store) ListPages(ctx context.Context) ([]feed.PageMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageColumns+`
		FROM pages
		ORDER BY last_modified ASC, page_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	return scanPages(rows)
}

// Save inserts or replaces pages in one transaction.
func (s *Store) Save(ctx context.Context, pages ...feed.PageMetadata) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pages
			(`+pageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(page_id) DO UPDATE SET
				last_modified = excluded.last_modified,
				prev = excluded.prev,
				next = excluded.next,
				number_of_bytes = excluded.number_of_bytes,
				number_of_entities = excluded.number_of_entities,
				generation = excluded.generation
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range pages {
			if _, err := stmt.ExecContext(ctx,
				p.PageID,
				toMillis(p.LastModified),
				nullString(p.Prev),
				nullString(p.Next),
				p.NumberOfBytes,
				p.NumberOfEntities,
				p.Generation,
			); err != nil {
				return fmt.Errorf("upsert %s: %w", p.PageID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pages: %w", err)
	}
	return nil
}

// Delete removes pages in one transaction. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, pageIDs ...string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range pageIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE page_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (feed.PageMetadata, error) {
	var (
		p          feed.PageMetadata
		lastMod    int64
		prev, next sql.NullString
	)
	if err := row.Scan(&p.PageID, &lastMod, &prev, &next, &p.NumberOfBytes, &p.NumberOfEntities, &p.Generation); err != nil {
		return feed.PageMetadata{}, err
	}
	p.LastModified = fromMillis(lastMod)
	p.Prev = prev.String
	p.Next = next.String
	return p, nil
}

func scanPages(rows *sql.Rows) ([]feed.PageMetadata, error) {
	defer rows.Close()

	pages := []feed.PageMetadata{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
