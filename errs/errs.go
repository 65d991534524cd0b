// Package errs provides structured error types and helpers for the KINO payout tools.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeFetch indicates a transport failure talking to the draw service.
	CodeFetch Code = "fetch"
	// CodeParse indicates a draw service response that could not be decoded into valid draws.
	CodeParse Code = "parse"
	// CodeNotFound indicates the draw service has no data for the requested date and page.
	CodeNotFound Code = "not_found"
	// CodeCacheMiss indicates the cache holds no entry for the key.
	CodeCacheMiss Code = "cache_miss"
	// CodeCacheCorrupt indicates a cache entry that fails decoding or draw validation.
	CodeCacheCorrupt Code = "cache_corrupt"
	// CodeCacheInconsistent indicates a write that would change an existing cache entry.
	CodeCacheInconsistent Code = "cache_inconsistent"
	// CodeEmptyDrawSet indicates an aggregation over zero draws.
	CodeEmptyDrawSet Code = "empty_draw_set"
	// CodeUnavailable indicates a dependency is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the payout stack.
type E struct {
	Component string
	Code      Code
	Date      string
	Page      int
	HTTP      int
	Message   string
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithKey records the (date, page) unit the failure relates to.
func WithKey(date string, page int) Option {
	trimmed := strings.TrimSpace(date)
	return func(e *E) {
		e.Date = trimmed
		e.Page = page
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := e.Component
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Date != "" {
		parts = append(parts, "date="+e.Date)
	}
	if e.Page > 0 {
		parts = append(parts, "page="+strconv.Itoa(e.Page))
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target is an envelope with the same code. A target with an
// empty code never matches.
func (e *E) Is(target error) bool {
	var t *E
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// CodeOf returns the code of the outermost envelope in the chain, or "" when none.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// HasCode reports whether any envelope in the chain carries the code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *E
		if !errors.As(err, &e) || e == nil {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}
