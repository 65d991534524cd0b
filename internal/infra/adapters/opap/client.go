// Package opap fetches KINO draw pages from the OPAP draw service.
package opap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
)

// Client implements the draw fetcher contract against the OPAP REST API.
// Transport failures, 429 and 5xx responses are retried with exponential
// backoff; not-found and parse failures are returned immediately.
type Client struct {
	opts    Options
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  logrus.FieldLogger
}

// NewClient builds a Client. The base URL must be absolute.
func NewClient(opts Options) (*Client, error) {
	base := opts.baseURL()
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errs.New("opap", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("invalid base url %q", base)))
	}
	return &Client{
		opts:    opts,
		base:    base,
		http:    opts.httpClient(),
		limiter: rate.NewLimiter(rate.Limit(opts.requestsPerSecond()), opts.burst()),
		logger:  opts.logger().WithField("component", "opap"),
	}, nil
}

// PageURL returns the endpoint for key. Pages are zero-based on the wire.
func (c *Client) PageURL(key kino.PageKey) string {
	date := key.DateString()
	return fmt.Sprintf("%s/draws/v3.0/%d/draw-date/%s/%s?page=%d", c.base, GameID, date, date, key.Page-1)
}

// Fetch retrieves the draws for key.
func (c *Client) Fetch(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	start := time.Now()
	logger := c.logger.WithFields(logrus.Fields{"date": key.DateString(), "page": key.Page})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.initialInterval()

	attempt := 0
	batch, err := backoff.Retry(ctx, func() (kino.Batch, error) {
		attempt++
		batch, err := c.fetchOnce(ctx, key)
		if err != nil && !retryable(err) {
			var permanent *backoff.PermanentError
			if !errors.As(err, &permanent) {
				err = backoff.Permanent(err)
			}
		}
		return batch, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.opts.maxTries()),
		backoff.WithMaxElapsedTime(c.opts.maxElapsed()),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": next}).Warn("draw fetch failed, retrying")
		}),
	)

	result := "success"
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errs.HasCode(err, errs.CodeNotFound) && !errs.HasCode(err, errs.CodeParse) {
			err = fmt.Errorf("fetch %s: %w", key, ctxErr)
			result = "canceled"
		} else if code := errs.CodeOf(err); code != "" {
			result = string(code)
		} else {
			result = "error"
		}
	}
	c.opts.Metrics.RecordFetch(ctx, result, time.Since(start))
	if err != nil {
		return kino.Batch{}, err
	}
	logger.WithFields(logrus.Fields{"attempt": attempt, "draws": len(batch.Draws), "last": batch.Last}).Debug("draw page fetched")
	return batch, nil
}

func (c *Client) fetchOnce(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return kino.Batch{}, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(key), nil)
	if err != nil {
		return kino.Batch{}, backoff.Permanent(fmt.Errorf("create draw request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return kino.Batch{}, backoff.Permanent(ctxErr)
		}
		return kino.Batch{}, errs.New("opap", errs.CodeFetch,
			errs.WithKey(key.DateString(), key.Page), errs.WithMessage("request draws"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(key, resp); err != nil {
		return kino.Batch{}, err
	}

	var page drawPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return kino.Batch{}, errs.New("opap", errs.CodeParse,
			errs.WithKey(key.DateString(), key.Page), errs.WithMessage("decode draws"), errs.WithCause(err))
	}
	return toBatch(key, page)
}

// classifyStatus maps non-200 responses onto the error taxonomy. 404 is
// not-found; 429 and 5xx are retryable fetch errors honouring Retry-After;
// any other status is a permanent fetch error.
func classifyStatus(key kino.PageKey, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	opts := []errs.Option{
		errs.WithKey(key.DateString(), key.Page),
		errs.WithHTTP(resp.StatusCode),
		errs.WithMessage(strings.TrimSpace(string(body))),
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errs.New("opap", errs.CodeNotFound, opts...)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		fetchErr := errs.New("opap", errs.CodeFetch, opts...)
		if seconds, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			return errors.Join(fetchErr, backoff.RetryAfter(seconds))
		}
		return fetchErr
	default:
		return backoff.Permanent(errs.New("opap", errs.CodeFetch, opts...))
	}
}

// retryable reports whether err is a transient fetch failure. Only
// errs.CodeFetch qualifies; not-found and parse failures are final.
func retryable(err error) bool {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	return errs.HasCode(err, errs.CodeFetch)
}

func retryAfter(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return seconds, true
}
