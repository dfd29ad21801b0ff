package connectiondao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLite stores connection records in the connections table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a connection store on an already opened and migrated
// database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Put stores a connection record, replacing any previous record with the
// same ID.
func (s *SQLite) Put(ctx context.Context, conn Connection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO connections (connection_id, slide_key, identity, connected_at, ttl) VALUES (?, ?, ?, ?, ?)`,
		conn.ConnectionID, conn.SlideKey, conn.Identity, conn.ConnectedAt, conn.TTL,
	)
	if err != nil {
		return fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record by ID.
func (s *SQLite) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	err := s.db.QueryRowContext(ctx,
		`SELECT connection_id, slide_key, identity, connected_at, ttl FROM connections WHERE connection_id = ?`,
		connectionID,
	).Scan(&conn.ConnectionID, &conn.SlideKey, &conn.Identity, &conn.ConnectedAt, &conn.TTL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// SetIdentity stores the identity assigned to an existing connection.
func (s *SQLite) SetIdentity(ctx context.Context, connectionID, identity string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE connections SET identity = ? WHERE connection_id = ?`,
		identity, connectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set identity on connection %v: %w", connectionID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
	}
	return nil
}

// Touch moves an existing connection's expiry to ttl.
func (s *SQLite) Touch(ctx context.Context, connectionID string, ttl int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE connections SET ttl = ? WHERE connection_id = ?`,
		ttl, connectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch connection %v: %w", connectionID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
	}
	return nil
}

// Delete removes a connection record by ID. Deleting a missing record is not
// an error.
func (s *SQLite) Delete(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, connectionID); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return nil
}

// DeleteExpired removes every connection whose TTL is at or before now.
func (s *SQLite) DeleteExpired(ctx context.Context, now int64) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE ttl <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired connections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired connections: %w", err)
	}
	return int(n), nil
}
