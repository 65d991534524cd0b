package payout

import (
	"context"
	"math/big"
	"runtime"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/domain/paytable"
	"github.com/coachpo/kino/internal/infra/logging"
	"github.com/coachpo/kino/internal/infra/telemetry"
)

// MeanPrecision is the number of decimal places kept in Result.Mean.
const MeanPrecision = 16

const defaultChunkSize = 16

// Result is the outcome of one aggregation.
type Result struct {
	NumPayouts int
	Total      decimal.Decimal
	Mean       decimal.Decimal
}

// MeanFloat64 returns the float64 nearest to the exact mean Total/NumPayouts.
func (r Result) MeanFloat64() float64 {
	if r.NumPayouts == 0 {
		return 0
	}
	q := new(big.Rat).Quo(r.Total.Rat(), big.NewRat(int64(r.NumPayouts), 1))
	f, _ := q.Float64()
	return f
}

// Aggregator evaluates draws in parallel and reduces the multipliers to a mean.
type Aggregator struct {
	engine  *Engine
	workers int
	chunk   int
	logger  logrus.FieldLogger
	metrics *telemetry.Metrics
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWorkers bounds the evaluation goroutines. Values <= 0 use GOMAXPROCS.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.workers = n
	}
}

// WithChunkSize sets how many draws one evaluation task handles.
func WithChunkSize(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.chunk = n
		}
	}
}

// WithLogger sets the logger used for per-draw debug output.
func WithLogger(logger logrus.FieldLogger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics records evaluation counts.
func WithMetrics(m *telemetry.Metrics) AggregatorOption {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// NewAggregator builds an Aggregator over the engine.
func NewAggregator(engine *Engine, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		engine: engine,
		chunk:  defaultChunkSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.engine == nil {
		a.engine = NewEngine(nil)
	}
	if a.workers <= 0 {
		a.workers = runtime.GOMAXPROCS(0)
	}
	if a.logger == nil {
		a.logger = logging.Discard()
	}
	return a
}

type partial struct {
	total decimal.Decimal
	count int
}

// ComputeMean flattens the batches in page order, evaluates every draw and
// returns the count and mean multiplier. Evaluation order does not affect the result.
func (a *Aggregator) ComputeMean(ctx context.Context, sel kino.Selection, batches []kino.Batch, v paytable.Variant) (Result, error) {
	draws := kino.Flatten(batches)
	if len(draws) == 0 {
		return Result{}, errs.New("aggregator", errs.CodeEmptyDrawSet, errs.WithMessage("mean payout is undefined over zero draws"))
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	chunks := make([][]kino.Draw, 0, (len(draws)+a.chunk-1)/a.chunk)
	for start := 0; start < len(draws); start += a.chunk {
		end := start + a.chunk
		if end > len(draws) {
			end = len(draws)
		}
		chunks = append(chunks, draws[start:end])
	}

	debug := isDebug(a.logger)
	mapper := iter.Mapper[[]kino.Draw, partial]{MaxGoroutines: a.workers}
	partials := mapper.Map(chunks, func(chunk *[]kino.Draw) partial {
		p := partial{total: decimal.Zero}
		for _, d := range *chunk {
			ev := a.engine.Evaluate(sel, d, v)
			if debug {
				a.logger.WithFields(logrus.Fields{
					"draw_id":    ev.DrawID,
					"matches":    ev.Matches.Slice(),
					"column":     ev.Column.String(),
					"multiplier": ev.Multiplier.String(),
				}).Debug("draw evaluated")
			}
			p.total = p.total.Add(ev.Multiplier)
			p.count++
		}
		return p
	})

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Total: decimal.Zero}
	for _, p := range partials {
		res.Total = res.Total.Add(p.total)
		res.NumPayouts += p.count
	}
	res.Mean = res.Total.DivRound(decimal.NewFromInt(int64(res.NumPayouts)), MeanPrecision)
	a.metrics.RecordEvaluations(ctx, v.String(), res.NumPayouts)
	return res, nil
}

func isDebug(logger logrus.FieldLogger) bool {
	switch l := logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	default:
		return false
	}
}
