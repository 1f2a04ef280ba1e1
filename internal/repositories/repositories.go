// Package repositories persists playlists, songs, users and linked Spotify credentials in SQLite.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Default page sizes for community listings.
const (
	DefaultPublicLimit   = 50
	DefaultTrendingLimit = 20
	DefaultFilterLimit   = 50
)

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both [sql.DB] and [sql.Tx]. Reads that also run inside
// transactions take a querier so a single-connection database never waits on itself.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func now() time.Time {
	return time.Now().UTC()
}
