// Package migrations wires golang-migrate execution for the Postgres draw cache.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	dbmigrations "github.com/coachpo/kino/db/migrations"
	"github.com/coachpo/kino/internal/infra/telemetry"
)

var errNotDirectory = errors.New("migrations path must be a directory")

// Options tunes Apply and Rollback. The zero value runs the embedded
// migrations without logging or metrics.
type Options struct {
	// Dir replaces the embedded migrations with an on-disk directory.
	Dir     string
	Logger  logrus.FieldLogger
	Metrics *telemetry.Metrics
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

// Apply brings the Postgres instance reachable via dsn up to the latest schema.
func Apply(ctx context.Context, dsn string, opts Options) error {
	logger := opts.logger()
	m, origin, closeFn, err := open(ctx, dsn, opts.Dir, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.WithField("source", origin).Info("running database migrations")

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			opts.Metrics.RecordMigration(ctx, "noop")
			logger.Info("database migrations up-to-date")
			return nil
		}
		opts.Metrics.RecordMigration(ctx, "failed")
		return fmt.Errorf("apply migrations: %w", err)
	}

	opts.Metrics.RecordMigration(ctx, "applied")
	logger.Info("database migrations applied successfully")
	return nil
}

// Rollback reverts the given number of migration steps.
func Rollback(ctx context.Context, dsn string, steps int, opts Options) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	logger := opts.logger()
	m, origin, closeFn, err := open(ctx, dsn, opts.Dir, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.WithFields(logrus.Fields{"source": origin, "steps": steps}).Info("rolling back database migrations")
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			opts.Metrics.RecordMigration(ctx, "noop")
			return nil
		}
		opts.Metrics.RecordMigration(ctx, "failed")
		return fmt.Errorf("rollback migrations: %w", err)
	}
	opts.Metrics.RecordMigration(ctx, "rolled_back")
	return nil
}

// EmbeddedVersions lists the migration versions compiled into the binary.
func EmbeddedVersions() ([]string, error) {
	entries, err := fs.Glob(dbmigrations.Files, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list embedded migrations: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, name := range entries {
		version, _, _ := strings.Cut(name, "_")
		versions = append(versions, version)
	}
	return versions, nil
}

// open resolves the migration source before touching the database so a bad
// path fails fast.
func open(ctx context.Context, dsn, dir string, logger logrus.FieldLogger) (*migrate.Migrate, string, func(), error) {
	src, origin, err := openSource(dir)
	if err != nil {
		return nil, "", nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		_ = src.Close()
		return nil, "", nil, fmt.Errorf("migrations dsn required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = src.Close()
		return nil, "", nil, fmt.Errorf("open migrations connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, "", nil, fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, "", nil, fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("kino", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, "", nil, fmt.Errorf("initialise migrate instance: %w", err)
	}
	closeFn := func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.WithError(sourceErr).Warn("database migrations source close")
		}
		if dbErr != nil {
			logger.WithError(dbErr).Warn("database migrations db close")
		}
		if cerr := db.Close(); cerr != nil {
			logger.WithError(cerr).Debug("database migrations connection close")
		}
	}
	return m, origin, closeFn, nil
}

func openSource(dir string) (source.Driver, string, error) {
	if strings.TrimSpace(dir) == "" {
		src, err := iofs.New(dbmigrations.Files, ".")
		if err != nil {
			return nil, "", fmt.Errorf("open embedded migrations: %w", err)
		}
		return src, "embedded", nil
	}
	resolved, err := resolveDir(dir)
	if err != nil {
		return nil, "", err
	}
	src, err := source.Open(fileURL(resolved))
	if err != nil {
		return nil, "", fmt.Errorf("open migrations directory: %w", err)
	}
	return src, resolved, nil
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}
