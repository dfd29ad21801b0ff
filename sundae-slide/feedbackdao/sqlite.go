package feedbackdao

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
)

// SQLite stores feedback rows in the slide_feedback table.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	ensured bool
}

// NewSQLite creates a feedback store on an already opened database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureTable applies any pending migrations once per store.
func (s *SQLite) EnsureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}
	if err := sundaesqlite.Migrate(ctx, s.db); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// RecordFeedback increments the category counter for a slide inside a single
// transaction, inserting a zeroed row with slideTitle first if none exists.
func (s *SQLite) RecordFeedback(ctx context.Context, slideKey string, slideNumber int64, slideTitle string, category Category) (err error) {
	column, err := category.Column()
	if err != nil {
		return fmt.Errorf("failed to record feedback for slide %v/%v: %w", slideKey, slideNumber, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin feedback tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO slide_feedback (slide_key, slide_number, slide_title) VALUES (?, ?, ?)`,
		slideKey, slideNumber, slideTitle,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback row %v/%v: %w", slideKey, slideNumber, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE slide_feedback SET `+column+` = `+column+` + 1 WHERE slide_key = ? AND slide_number = ?`,
		slideKey, slideNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to increment %v for slide %v/%v: %w", category, slideKey, slideNumber, err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		err = fmt.Errorf("failed to increment %v for slide %v/%v: %v rows affected", category, slideKey, slideNumber, n)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback for slide %v/%v: %w", slideKey, slideNumber, err)
	}
	return nil
}

// ListFeedback returns every row for slideKey ordered by slide number.
func (s *SQLite) ListFeedback(ctx context.Context, slideKey string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slide_key, slide_number, slide_title, feedback_okay, feedback_good, feedback_great, feedback_mind_blown
		   FROM slide_feedback
		  WHERE slide_key = ?
		  ORDER BY slide_number ASC`,
		slideKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback for slide %v: %w", slideKey, err)
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.SlideKey, &r.SlideNumber, &r.SlideTitle, &r.Okay, &r.Good, &r.Great, &r.MindBlown); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback rows: %w", err)
	}
	return results, nil
}
