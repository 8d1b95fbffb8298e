package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mohitnawani/taskdeck/db"
)

const commandTimeout = time.Minute

// Runner applies the schema migrations embedded in the binary, so a deploy
// needs no migrations directory on disk.
type Runner struct {
	pool *pgxpool.Pool
	dsn  string
	fsys fs.FS
	log  *slog.Logger
}

// New builds a runner over the embedded migration set.
func New(pool *pgxpool.Pool, dsn string, log *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, errors.New("nil pool provided")
	}
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	if log == nil {
		log = slog.Default()
	}
	fsys, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return &Runner{pool: pool, dsn: dsn, fsys: fsys, log: log}, nil
}

// Ensure applies every pending migration.
func (r *Runner) Ensure(ctx context.Context) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		if len(results) == 0 {
			r.log.Info("schema already up to date")
			return nil
		}
		for _, res := range results {
			r.log.Info("migration applied", "source", res.Source.Path, "duration_ms", res.Duration.Milliseconds())
		}
		return nil
	})
}

// Status logs each migration with its applied/pending state.
func (r *Runner) Status(ctx context.Context) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, s := range statuses {
			r.log.Info("migration", "source", s.Source.Path, "state", string(s.State))
		}
		return nil
	})
}

// Down rolls back the latest migration, or everything above targetVersion
// when one is given.
func (r *Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		if targetVersion > 0 {
			results, err := p.DownTo(ctx, targetVersion)
			if err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
			for _, res := range results {
				r.log.Info("migration rolled back", "source", res.Source.Path)
			}
			return nil
		}
		res, err := p.Down(ctx)
		if err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		r.log.Info("migration rolled back", "source", res.Source.Path)
		return nil
	})
}

// Ping verifies connectivity before running commands.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Runner) Close() {
	r.pool.Close()
}

// withProvider runs fn against a goose provider on a dedicated database/sql
// handle; goose drives stdlib connections while the rest of the service
// stays on the pgx pool.
func (r *Runner) withProvider(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	sqlDB, err := sql.Open("pgx", r.dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, r.fsys)
	if err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(runCtx, provider)
}
