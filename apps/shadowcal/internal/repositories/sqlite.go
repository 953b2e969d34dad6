package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS kv_expires_at ON kv (expires_at);
`

// SQLiteStore keeps state in a single file for single node deployments.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLiteStore(ctx context.Context, path string, clk clockwork.Clock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// a single writer avoids SQLITE_BUSY under concurrent reconciliation
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		clock: clk,
	}, nil
}

func (store *SQLiteStore) Close() error {
	return store.db.Close()
}

func (store *SQLiteStore) nowMillis() int64 {
	return store.clock.Now().UnixMilli()
}

func (store *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM kv
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`

	var value []byte
	err := store.db.QueryRowContext(ctx, query, key, store.nowMillis()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (store *SQLiteStore) Set(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	query := `
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key)
		DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	now := store.clock.Now()

	var expires sql.NullInt64
	if at := expiresAt(now, ttl); at != nil {
		expires = sql.NullInt64{Int64: at.UnixMilli(), Valid: true}
	}

	_, err := store.db.ExecContext(ctx, query, key, value, expires, now.UnixMilli())
	return err
}

func (store *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := store.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (store *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM kv
			WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
		)
	`

	var exists bool
	err := store.db.QueryRowContext(ctx, query, key, store.nowMillis()).Scan(&exists)
	return exists, err
}

func (store *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	result, err := store.db.ExecContext(
		ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		store.nowMillis(),
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
