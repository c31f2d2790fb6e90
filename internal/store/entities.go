package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pagefeed/internal/feed"
)

const assignmentColumns = `content_id, last_modified, original_last_modified, content_length, page_id`

// Append inserts entities without a page in one transaction.
// Uses ON CONFLICT(content_id) DO NOTHING so a writer retrying after an
// ambiguous failure does not duplicate entities. The first write wins.
func (s *Store) Append(ctx context.Context, entities ...feed.Entity) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entities
			(content_id, content_type, content, content_length, last_modified, original_last_modified, page_id)
			VALUES (?, ?, ?, ?, ?, NULL, NULL)
			ON CONFLICT(content_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range entities {
			if _, err := stmt.ExecContext(ctx,
				e.ContentID,
				e.ContentType,
				e.Content,
				e.ContentLength,
				toMillis(e.LastModified),
			); err != nil {
				return fmt.Errorf("insert %s: %w", e.ContentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append entities: %w", err)
	}
	return nil
}

// GetUnassigned returns up to limit entities without a page, ordered by
// (last_modified, content_id).
func (s *Store) GetUnassigned(ctx context.Context, limit int) ([]feed.PageAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM entities
		WHERE page_id IS NULL
		ORDER BY last_modified ASC, content_id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unassigned entities: %w", err)
	}
	return scanAssignments(rows)
}

// GetPageAssignments returns the entities attached to a page, ordered by
// (last_modified, content_id).
func (s *Store) GetPageAssignments(ctx context.Context, pageID string) ([]feed.PageAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM entities
		WHERE page_id = ?
		ORDER BY last_modified ASC, content_id COLLATE BINARY ASC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("query page assignments: %w", err)
	}
	return scanAssignments(rows)
}

// SavePageAssignments updates the placement of existing entities in one
// transaction. Fails with feed.ErrEntityNotFound if any content id is unknown,
// in which case nothing is written.
func (s *Store) SavePageAssignments(ctx context.Context, assignments []feed.PageAssignment) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE entities
			SET last_modified = ?, original_last_modified = ?, page_id = ?
			WHERE content_id = ?
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, a := range assignments {
			res, err := stmt.ExecContext(ctx,
				toMillis(a.LastModified),
				nullMillis(a.OriginalLastModified),
				nullString(a.PageID),
				a.ContentID,
			)
			if err != nil {
				return fmt.Errorf("update %s: %w", a.ContentID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("update %s: %w", a.ContentID, feed.ErrEntityNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save page assignments: %w", err)
	}
	return nil
}

// ConfirmTimestamps clears original_last_modified for every entity attached
// to the given pages.
func (s *Store) ConfirmTimestamps(ctx context.Context, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pageIDs)), ",")
	args := make([]any, len(pageIDs))
	for i, id := range pageIDs {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET original_last_modified = NULL
		WHERE original_last_modified IS NOT NULL
		AND page_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("confirm timestamps: %w", err)
	}
	return nil
}

// GetEntity retrieves a single entity, content included.
// Returns feed.ErrEntityNotFound if not found.
func (s *Store) GetEntity(ctx context.Context, contentID string) (feed.Entity, error) {
	var (
		e        feed.Entity
		lastMod  int64
		origMod  sql.NullInt64
		pageID   sql.NullString
		contentT string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content_id, content_type, content, content_length, last_modified, original_last_modified, page_id
		FROM entities
		WHERE content_id = ?
	`, contentID).Scan(&e.ContentID, &contentT, &e.Content, &e.ContentLength, &lastMod, &origMod, &pageID)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Entity{}, fmt.Errorf("get entity %s: %w", contentID, feed.ErrEntityNotFound)
	}
	if err != nil {
		return feed.Entity{}, fmt.Errorf("get entity %s: %w", contentID, err)
	}

	e.ContentType = contentT
	e.LastModified = fromMillis(lastMod)
	e.OriginalLastModified = fromNullMillis(origMod)
	e.PageID = pageID.String
	return e, nil
}

// CountUnassigned returns the number of entities waiting for a page.
func (s *Store) CountUnassigned(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities WHERE page_id IS NULL
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unassigned: %w", err)
	}
	return n, nil
}

func scanAssignments(rows *sql.Rows) ([]feed.PageAssignment, error) {
	defer rows.Close()

	assignments := []feed.PageAssignment{}
	for rows.Next() {
		var (
			a       feed.PageAssignment
			lastMod int64
			origMod sql.NullInt64
			pageID  sql.NullString
		)
		if err := rows.Scan(&a.ContentID, &lastMod, &origMod, &a.ContentLength, &pageID); err != nil {
			return nil, fmt.Errorf("scan page assignment: %w", err)
		}
		a.LastModified = fromMillis(lastMod)
		a.OriginalLastModified = fromNullMillis(origMod)
		a.PageID = pageID.String
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page assignments: %w", err)
	}
	return assignments, nil
}
