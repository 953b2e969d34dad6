package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/xdoubleu/essentia/v2/pkg/database/postgres"
)

type PostgresStore struct {
	db    postgres.DB
	clock clockwork.Clock
}

func NewPostgresStore(db postgres.DB, clk clockwork.Clock) *PostgresStore {
	return &PostgresStore{
		db:    db,
		clock: clk,
	}
}

func (store *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM shadowcal.kv
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var value []byte
	err := store.db.QueryRow(ctx, query, key, store.clock.Now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, postgres.PgxErrorToHTTPError(err)
	}

	return value, true, nil
}

func (store *PostgresStore) Set(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	query := `
		INSERT INTO shadowcal.kv (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key)
		DO UPDATE SET value = $2, expires_at = $3, updated_at = $4
	`

	now := store.clock.Now()
	_, err := store.db.Exec(ctx, query, key, value, expiresAt(now, ttl), now)
	if err != nil {
		return postgres.PgxErrorToHTTPError(err)
	}

	return nil
}

func (store *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `
		DELETE FROM shadowcal.kv
		WHERE key = $1
	`

	_, err := store.db.Exec(ctx, query, key)
	if err != nil {
		return postgres.PgxErrorToHTTPError(err)
	}

	return nil
}

func (store *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM shadowcal.kv
			WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
		)
	`

	var exists bool
	err := store.db.QueryRow(ctx, query, key, store.clock.Now()).Scan(&exists)
	if err != nil {
		return false, postgres.PgxErrorToHTTPError(err)
	}

	return exists, nil
}

func (store *PostgresStore) Purge(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM shadowcal.kv
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`

	result, err := store.db.Exec(ctx, query, store.clock.Now())
	if err != nil {
		return 0, postgres.PgxErrorToHTTPError(err)
	}

	return result.RowsAffected(), nil
}
