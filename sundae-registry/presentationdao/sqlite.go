package presentationdao

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
)

// SQLite stores presentations in the presentations table. The slug column
// is unique, so concurrent inserts of one slug cannot both succeed.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a presentation store on an already opened and migrated
// database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Insert stores a new entry under slug. If slug is already registered the
// stored entry is left untouched and ErrAlreadyExists is returned.
func (s *SQLite) Insert(ctx context.Context, title, slug string) (Entry, error) {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO presentations (title, slug, created_at) VALUES (?, ?, ?)`,
		title, slug, now,
	)
	if err != nil {
		if sundaesqlite.IsUniqueViolation(err) {
			return Entry{}, fmt.Errorf("presentation %v: %w", slug, ErrAlreadyExists)
		}
		return Entry{}, fmt.Errorf("failed to insert presentation %v: %w", slug, err)
	}

	number, err := result.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read presentation number: %w", err)
	}
	return Entry{Slug: slug, Number: number, Title: title, CreatedAt: now}, nil
}

// List returns every entry ordered by number.
func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, slug, created_at FROM presentations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query presentations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Number, &e.Title, &e.Slug, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan presentation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read presentations: %w", err)
	}
	return entries, nil
}
