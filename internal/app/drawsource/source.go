// Package drawsource resolves draw pages through the cache, falling back to
// the remote fetcher and populating the cache on a miss.
package drawsource

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/drawstore"
	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/infra/telemetry"
)

const defaultWorkers = 4

// Fetcher retrieves one page from the remote draw service.
type Fetcher interface {
	Fetch(ctx context.Context, key kino.PageKey) (kino.Batch, error)
}

// Source orchestrates cache and fetcher. A nil store disables caching.
type Source struct {
	store   drawstore.Store
	fetcher Fetcher
	workers int
	logger  logrus.FieldLogger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithWorkers bounds concurrent page resolutions.
func WithWorkers(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records cache and resolution metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// WithClock overrides the wall clock that decides whether a day is settled.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Source.
func New(store drawstore.Store, fetcher Fetcher, opts ...Option) (*Source, error) {
	if fetcher == nil {
		return nil, errs.New("drawsource", errs.CodeInvalid, errs.WithMessage("fetcher required"))
	}
	s := &Source{
		store:   store,
		fetcher: fetcher,
		workers: defaultWorkers,
		logger:  logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve returns the batches for pages in the requested order. Pages are
// resolved concurrently; the first terminal failure cancels the rest and is
// returned. An empty page list discovers the day's pages.
func (s *Source) Resolve(ctx context.Context, date time.Time, pages []int) ([]kino.Batch, error) {
	if len(pages) == 0 {
		return s.Discover(ctx, date)
	}
	keys := make([]kino.PageKey, len(pages))
	for i, page := range pages {
		key, err := kino.NewPageKey(date, page)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	results := make([]kino.Batch, len(keys))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(s.workers)
	for i, key := range keys {
		p.Go(func(ctx context.Context) error {
			batch, err := s.resolvePage(ctx, key)
			if err != nil {
				return err
			}
			results[i] = batch
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Discover walks the day's pages from the first until the service (or the
// cached entry) marks a page as last. A missing page after the first ends the
// walk; a missing first page is an error.
func (s *Source) Discover(ctx context.Context, date time.Time) ([]kino.Batch, error) {
	batches := make([]kino.Batch, 0, kino.PagesPerDay)
	for page := 1; page <= kino.PagesPerDay; page++ {
		key, err := kino.NewPageKey(date, page)
		if err != nil {
			return nil, err
		}
		batch, err := s.resolvePage(ctx, key)
		if err != nil {
			if page > 1 && errs.HasCode(err, errs.CodeNotFound) {
				s.logger.WithFields(logrus.Fields{"date": key.DateString(), "page": page}).
					Debug("no further pages")
				break
			}
			return nil, err
		}
		batches = append(batches, batch)
		if batch.Last {
			break
		}
	}
	return batches, nil
}

func (s *Source) resolvePage(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	if err := ctx.Err(); err != nil {
		return kino.Batch{}, fmt.Errorf("resolve %s: %w", key, err)
	}
	logger := s.logger.WithFields(logrus.Fields{"date": key.DateString(), "page": key.Page})
	// Pages of the current Athens day can still grow, so they bypass the cache.
	settled := kino.Settled(key.Date, s.now())

	if s.store != nil && settled {
		batch, err := s.store.Load(ctx, key)
		switch {
		case err == nil:
			s.metrics.RecordCacheLookup(ctx, s.store.Backend(), true)
			s.metrics.RecordPageResolved(ctx, telemetry.SourceCache)
			logger.WithField("source", telemetry.SourceCache).Debug("draw page resolved")
			return batch, nil
		case errs.HasCode(err, errs.CodeCacheMiss):
			s.metrics.RecordCacheLookup(ctx, s.store.Backend(), false)
		default:
			return kino.Batch{}, err
		}
	}

	batch, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		return kino.Batch{}, err
	}
	if err := batch.Validate(); err != nil {
		return kino.Batch{}, errs.New("drawsource", errs.CodeParse,
			errs.WithKey(key.DateString(), key.Page), errs.WithMessage("fetched batch invalid"), errs.WithCause(err))
	}
	switch {
	case s.store == nil:
	case !settled:
		logger.Debug("draw page not cached: day still in progress")
	case !batch.Last && len(batch.Draws) < kino.DrawsPerPage:
		logger.WithField("draws", len(batch.Draws)).Warn("draw page not cached: short page before the last")
	default:
		if err := s.store.Store(ctx, batch); err != nil {
			if errs.HasCode(err, errs.CodeCacheInconsistent) || errs.HasCode(err, errs.CodeCacheCorrupt) {
				return kino.Batch{}, err
			}
			logger.WithError(err).Warn("draw page not cached")
		}
	}
	s.metrics.RecordPageResolved(ctx, telemetry.SourceRemote)
	logger.WithFields(logrus.Fields{"source": telemetry.SourceRemote, "draws": len(batch.Draws)}).Debug("draw page resolved")
	return batch, nil
}
