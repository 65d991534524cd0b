// Package analysis runs one payout backtest: validate the request, resolve
// the draws, aggregate the payouts and build the report.
package analysis

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/domain/paytable"
	"github.com/coachpo/kino/internal/payout"
)

// DrawTimeZone is the zone whose calendar defines "today" for draw dates.
const DrawTimeZone = kino.DrawTimeZone

// Resolver supplies the batches for a date and page list. An empty page list
// asks the resolver to discover the day's pages.
type Resolver interface {
	Resolve(ctx context.Context, date time.Time, pages []int) ([]kino.Batch, error)
}

// Request is one backtest invocation.
type Request struct {
	Numbers []int
	Bonus   bool
	// Date is YYYY-MM-DD; empty means today in DrawTimeZone.
	Date  string
	Pages []int
}

// Report is the presentation record of a run.
type Report struct {
	RunID           string  `json:"run_id"`
	SelectedNumbers []int   `json:"selected_numbers"`
	Bonus           bool    `json:"bonus"`
	Date            string  `json:"date"`
	Pages           []int   `json:"pages"`
	NumPayouts      int     `json:"num_payouts"`
	MeanPayout      float64 `json:"mean_payout"`
	MeanPayoutExact string  `json:"mean_payout_exact"`
}

// JSON renders the report as indented JSON followed by a newline.
func (r Report) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(out, '\n'), nil
}

// Service validates requests and runs them.
type Service struct {
	source     Resolver
	aggregator *payout.Aggregator
	table      *paytable.Table
	logger     logrus.FieldLogger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock used to reject future dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPayTable records the table the aggregator evaluates against.
func WithPayTable(table *paytable.Table) Option {
	return func(s *Service) {
		if table != nil {
			s.table = table
		}
	}
}

// NewService constructs a Service.
func NewService(source Resolver, aggregator *payout.Aggregator, opts ...Option) (*Service, error) {
	if source == nil || aggregator == nil {
		return nil, errs.New("analysis", errs.CodeInvalid, errs.WithMessage("draw source and aggregator required"))
	}
	s := &Service{
		source:     source,
		aggregator: aggregator,
		logger:     logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PayTable returns the table set with WithPayTable, or nil.
func (s *Service) PayTable() *paytable.Table { return s.table }

type validated struct {
	selection kino.Selection
	variant   paytable.Variant
	date      time.Time
	pages     []int
}

// validate rejects bad input before any fetch happens.
func (s *Service) validate(req Request) (validated, error) {
	sel, err := kino.NewSelection(req.Numbers)
	if err != nil {
		return validated{}, err
	}

	todayDate := kino.Today(s.now())
	date := todayDate
	if req.Date != "" {
		parsed, err := kino.ParseDate(req.Date)
		if err != nil {
			return validated{}, err
		}
		if parsed.After(todayDate) {
			return validated{}, errs.New("analysis", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("date %s is in the future", req.Date)))
		}
		date = parsed
	}

	pages, err := kino.ParsePages(req.Pages)
	if err != nil {
		return validated{}, err
	}

	variant := paytable.Standard
	if req.Bonus {
		variant = paytable.Bonus
	}
	return validated{selection: sel, variant: variant, date: date, pages: pages}, nil
}

// Run executes the backtest described by req.
func (s *Service) Run(ctx context.Context, req Request) (Report, error) {
	in, err := s.validate(req)
	if err != nil {
		return Report{}, err
	}

	runID := uuid.NewString()
	dateString := in.date.Format(kino.DateLayout)
	logger := s.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"date":    dateString,
		"variant": in.variant.String(),
	})
	logger.WithField("numbers", in.selection.Sorted()).Info("backtest started")

	batches, err := s.source.Resolve(ctx, in.date, in.pages)
	if err != nil {
		logger.WithError(err).Error("draw resolution failed")
		return Report{}, err
	}

	result, err := s.aggregator.ComputeMean(ctx, in.selection, batches, in.variant)
	if err != nil {
		return Report{}, err
	}

	pages := make([]int, len(batches))
	for i, b := range batches {
		pages[i] = b.Key.Page
	}
	report := Report{
		RunID:           runID,
		SelectedNumbers: in.selection.Numbers(),
		Bonus:           in.variant == paytable.Bonus,
		Date:            dateString,
		Pages:           pages,
		NumPayouts:      result.NumPayouts,
		MeanPayout:      result.MeanFloat64(),
		MeanPayoutExact: result.Mean.String(),
	}
	logger.WithFields(logrus.Fields{
		"pages":       len(pages),
		"num_payouts": report.NumPayouts,
		"mean_payout": report.MeanPayoutExact,
	}).Info("backtest finished")
	return report, nil
}
