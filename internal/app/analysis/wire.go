package analysis

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/app/drawsource"
	"github.com/coachpo/kino/internal/domain/drawstore"
	"github.com/coachpo/kino/internal/domain/paytable"
	"github.com/coachpo/kino/internal/infra/adapters/opap"
	"github.com/coachpo/kino/internal/infra/config"
	"github.com/coachpo/kino/internal/infra/persistence/filestore"
	"github.com/coachpo/kino/internal/infra/persistence/memory"
	"github.com/coachpo/kino/internal/infra/persistence/migrations"
	"github.com/coachpo/kino/internal/infra/persistence/postgres"
	"github.com/coachpo/kino/internal/infra/telemetry"
	"github.com/coachpo/kino/internal/payout"
)

// Deps carries the ambient collaborators shared by every component.
type Deps struct {
	Logger  logrus.FieldLogger
	Metrics *telemetry.Metrics
	// Meter backs pool gauges for the postgres cache; nil skips them.
	Meter metric.Meter
	// Fetcher replaces the OPAP client, mainly for tests.
	Fetcher drawsource.Fetcher
}

// Build assembles a Service from configuration. The returned cleanup releases
// backend resources and is safe to call when Build fails.
func Build(ctx context.Context, cfg config.AppConfig, deps Deps) (*Service, func(), error) {
	cleanup := func() {}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, closeStore, err := OpenStore(ctx, cfg, deps)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = closeStore

	fetcher := deps.Fetcher
	if fetcher == nil {
		client, err := opap.NewClient(opap.Options{
			BaseURL:           cfg.OPAP.BaseURL,
			Timeout:           cfg.OPAP.Timeout,
			RequestsPerSecond: cfg.OPAP.RequestsPerSecond,
			Burst:             cfg.OPAP.Burst,
			MaxRetries:        cfg.OPAP.MaxRetries,
			MaxElapsed:        cfg.OPAP.MaxElapsed,
			Logger:            logger,
			Metrics:           deps.Metrics,
		})
		if err != nil {
			return nil, cleanup, err
		}
		fetcher = client
	}

	source, err := drawsource.New(store, fetcher,
		drawsource.WithWorkers(cfg.Workers.Fetch),
		drawsource.WithLogger(logger),
		drawsource.WithMetrics(deps.Metrics))
	if err != nil {
		return nil, cleanup, err
	}

	table := paytable.Default()
	if cfg.PayTable.Path != "" {
		table, err = paytable.LoadFile(cfg.PayTable.Path)
		if err != nil {
			return nil, cleanup, err
		}
	}
	aggregator := payout.NewAggregator(payout.NewEngine(table),
		payout.WithWorkers(cfg.Workers.Evaluate),
		payout.WithLogger(logger),
		payout.WithMetrics(deps.Metrics))

	svc, err := NewService(source, aggregator, WithLogger(logger), WithPayTable(table))
	if err != nil {
		return nil, cleanup, err
	}
	return svc, cleanup, nil
}

// OpenStore opens the configured cache backend. CacheNone yields a nil store.
func OpenStore(ctx context.Context, cfg config.AppConfig, deps Deps) (drawstore.Store, func(), error) {
	noop := func() {}
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, noop, nil
	case config.CacheMemory:
		return memory.NewDrawStore(), noop, nil
	case config.CacheFile:
		store, err := filestore.New(cfg.Cache.Directory)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case config.CachePostgres:
		if cfg.Database.RunMigrations {
			if err := migrations.Apply(ctx, cfg.Database.DSN, migrations.Options{
				Logger:  deps.Logger,
				Metrics: deps.Metrics,
			}); err != nil {
				return nil, noop, errs.New("analysis", errs.CodeUnavailable,
					errs.WithMessage("apply cache migrations"), errs.WithCause(err))
			}
		}
		pool, err := postgres.Connect(ctx, cfg.Database.DSN, postgres.PoolOptions{
			MaxConns:          cfg.Database.MaxConns,
			MinConns:          cfg.Database.MinConns,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			return nil, noop, err
		}
		if err := postgres.ObservePoolMetrics(deps.Meter, pool, "draw_cache"); err != nil && deps.Logger != nil {
			deps.Logger.WithError(err).Warn("pool metrics unavailable")
		}
		return postgres.NewDrawStore(pool), pool.Close, nil
	default:
		return nil, noop, errs.New("analysis", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown cache backend %q", cfg.Cache.Backend)))
	}
}
