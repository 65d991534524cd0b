// Package httpserver exposes the payout backtest over a read-only HTTP API.
package httpserver

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/app/analysis"
	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/domain/paytable"
)

const (
	backtestPath = "/backtest"
	payTablePath = "/paytable"
	healthPath   = "/healthz"
)

// Runner executes one backtest.
type Runner interface {
	Run(ctx context.Context, req analysis.Request) (analysis.Report, error)
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	environment string
	runner      Runner
	table       *paytable.Table
}

// NewHandler creates the HTTP handler. A nil table serves the embedded pay-table.
func NewHandler(environment string, runner Runner, table *paytable.Table) http.Handler {
	if table == nil {
		table = paytable.Default()
	}
	server := &httpServer{environment: environment, runner: runner, table: table}
	mux := http.NewServeMux()

	mux.Handle(backtestPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getBacktest,
	}))
	mux.Handle(payTablePath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getPayTable,
	}))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHealth,
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

// getBacktest reads numbers, date, pages and bonus from the query string.
// numbers and pages are comma separated.
func (s *httpServer) getBacktest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	numbers, err := parseInts(query.Get("numbers"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "numbers: "+err.Error())
		return
	}
	pages, err := parseInts(query.Get("pages"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "pages: "+err.Error())
		return
	}
	bonus := false
	if raw := strings.TrimSpace(query.Get("bonus")); raw != "" {
		bonus, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bonus must be a boolean")
			return
		}
	}

	report, err := s.runner.Run(r.Context(), analysis.Request{
		Numbers: numbers,
		Bonus:   bonus,
		Date:    strings.TrimSpace(query.Get("date")),
		Pages:   pages,
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *httpServer) getPayTable(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	size, err := strconv.Atoi(strings.TrimSpace(query.Get("size")))
	if err != nil || size < kino.MinSelection || size > kino.MaxSelection {
		writeError(w, http.StatusBadRequest, "size must be within [1,12]")
		return
	}
	variant, err := paytable.ParseVariant(query.Get("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prizes := s.table.Prizes(size, variant)
	out := make(map[string]string, len(prizes))
	for matches, multiplier := range prizes {
		out[strconv.Itoa(matches)] = multiplier.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size":    size,
		"variant": variant.String(),
		"prizes":  out,
	})
}

func (s *httpServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "environment": s.environment})
}

func parseInts(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errs.New("http", errs.CodeInvalid, errs.WithMessage("invalid integer "+strconv.Quote(part)))
		}
		out = append(out, n)
	}
	return out, nil
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeInvalid:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeEmptyDrawSet:
		return http.StatusUnprocessableEntity
	case errs.CodeFetch, errs.CodeParse:
		return http.StatusBadGateway
	case errs.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	payload := map[string]string{"status": "error", "error": err.Error()}
	if code := errs.CodeOf(err); code != "" {
		payload["code"] = string(code)
	}
	writeJSON(w, status, payload)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
