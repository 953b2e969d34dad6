package shadowcal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"github.com/pressly/goose/v3"
	"github.com/xdoubleu/essentia/v2/pkg/database/postgres"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var ErrUnsupportedStore = errors.New("unsupported store dsn")

const (
	memoryScheme = "memory://"
	sqliteScheme = "sqlite://"
)

// OpenStore picks the key-value store from the DSN scheme. The returned
// close function releases the underlying connection.
func OpenStore(
	ctx context.Context,
	logger *slog.Logger,
	dsn string,
	clk clockwork.Clock,
) (repositories.KeyValueStore, func(), error) {
	switch {
	case strings.HasPrefix(dsn, memoryScheme):
		logger.Warn("using in-memory store, sync state is lost on restart")
		return repositories.NewMemoryStore(clk), func() {}, nil

	case strings.HasPrefix(dsn, sqliteScheme):
		store, err := repositories.NewSQLiteStore(ctx, strings.TrimPrefix(dsn, sqliteScheme), clk)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := postgres.Connect(
			logger,
			dsn,
			25, //nolint:mnd //no magic number
			"15m",
			60,             //nolint:mnd //no magic number
			10*time.Second, //nolint:mnd //no magic number
			5*time.Minute,  //nolint:mnd //no magic number
		)
		if err != nil {
			return nil, nil, err
		}

		if err = ApplyMigrations(logger, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}

		return repositories.NewPostgresStore(postgres.NewSpanDB(db), clk), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, dsn)
	}
}

func ApplyMigrations(logger *slog.Logger, db *pgxpool.Pool) error {
	migrationsDB := stdlib.OpenDBFromPool(db)
	defer migrationsDB.Close()

	goose.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect(string(goose.DialectPostgres)); err != nil {
		return err
	}

	return goose.Up(migrationsDB, "migrations")
}
