// Package postgres persists draw pages in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/drawstore"
	"github.com/coachpo/kino/internal/domain/kino"
)

// DrawStore keeps one envelope per (draw_date, page) row. The primary key is
// the write-once guard: conflicting inserts are reconciled against the stored row.
type DrawStore struct {
	pool *pgxpool.Pool
}

var _ drawstore.Store = (*DrawStore)(nil)

// NewDrawStore constructs a DrawStore backed by the provided pgx pool.
func NewDrawStore(pool *pgxpool.Pool) *DrawStore {
	return &DrawStore{pool: pool}
}

const (
	drawPageInsertSQL = `
INSERT INTO draw_pages (
    draw_date,
    page,
    payload,
    checksum,
    draw_count,
    is_last
)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (draw_date, page) DO NOTHING;
`
	drawPageSelectSQL = `SELECT payload FROM draw_pages WHERE draw_date = $1 AND page = $2;`
	drawPageExistsSQL = `SELECT EXISTS (SELECT 1 FROM draw_pages WHERE draw_date = $1 AND page = $2);`
)

// PoolOptions sizes the pgx pool. Zero fields keep pgx defaults.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Connect opens a pgx pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errs.New("postgres", errs.CodeInvalid, errs.WithMessage("database dsn required"))
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.New("postgres", errs.CodeInvalid, errs.WithMessage("parse database dsn"), errs.WithCause(err))
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.New("postgres", errs.CodeUnavailable, errs.WithMessage("create pool"), errs.WithCause(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("postgres", errs.CodeUnavailable, errs.WithMessage("ping database"), errs.WithCause(err))
	}
	return pool, nil
}

// Backend implements drawstore.Store.
func (s *DrawStore) Backend() string { return "postgres" }

// Has implements drawstore.Store.
func (s *DrawStore) Has(ctx context.Context, key kino.PageKey) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("draw store: nil pool")
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, drawPageExistsSQL, key.Date, int16(key.Page)).Scan(&exists); err != nil {
		return false, fmt.Errorf("draw store: exists %s: %w", key, err)
	}
	return exists, nil
}

// Load implements drawstore.Store.
func (s *DrawStore) Load(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	if s.pool == nil {
		return kino.Batch{}, fmt.Errorf("draw store: nil pool")
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, drawPageSelectSQL, key.Date, int16(key.Page)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kino.Batch{}, drawstore.Miss("postgres", key)
		}
		return kino.Batch{}, fmt.Errorf("draw store: load %s: %w", key, err)
	}
	return drawstore.Decode(key, payload)
}

// Store implements drawstore.Store.
func (s *DrawStore) Store(ctx context.Context, batch kino.Batch) error {
	if s.pool == nil {
		return fmt.Errorf("draw store: nil pool")
	}
	payload, err := drawstore.Encode(batch)
	if err != nil {
		return err
	}
	checksum, err := drawstore.Checksum(batch.Draws)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, drawPageInsertSQL,
		batch.Key.Date, int16(batch.Key.Page), payload, checksum, int16(len(batch.Draws)), batch.Last)
	if err != nil {
		return fmt.Errorf("draw store: insert %s: %w", batch.Key, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, err := s.Load(ctx, batch.Key)
	if err != nil {
		return err
	}
	return drawstore.Reconcile(existing, batch)
}
