package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/kino/internal/infra/config"
)

func TestParseArgsFlagsAfterNumbers(t *testing.T) {
	opts, err := parseArgs([]string{"4", "8", "-b", "15", "-d", "2020-06-25", "--debug"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []int{4, 8, 15}, opts.numbers)
	require.True(t, opts.bonus)
	require.True(t, opts.debug)
	require.Equal(t, "2020-06-25", opts.date)
}

func TestParseArgsPageForms(t *testing.T) {
	opts, err := parseArgs([]string{"7", "-p", "1", "2", "-page", "5,6", "-c", "cache"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []int{7}, opts.numbers)
	require.Equal(t, pageList{1, 2, 5, 6}, opts.pages)
	require.Equal(t, "cache", opts.cacheDir)
}

func TestParseArgsErrors(t *testing.T) {
	_, err := parseArgs([]string{"-b"}, io.Discard)
	require.Error(t, err)
	_, err = parseArgs([]string{"seven"}, io.Discard)
	require.Error(t, err)
	_, err = parseArgs([]string{"1", "-p", "x"}, io.Discard)
	require.Error(t, err)
}

func TestExpandMultiValue(t *testing.T) {
	got := expandMultiValue([]string{"1", "-p", "3", "4", "-b", "-p", "9"})
	require.Equal(t, []string{"1", "-p", "3", "-p", "4", "-b", "-p", "9"}, got)
}

func opapStub(t *testing.T, pages int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var page int
		_, _ = fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		type winning struct {
			List  []int `json:"list"`
			Bonus []int `json:"bonus"`
		}
		type record struct {
			DrawID         int64   `json:"drawId"`
			WinningNumbers winning `json:"winningNumbers"`
		}
		content := make([]record, 0, 10)
		for slot := 0; slot < 10; slot++ {
			list := make([]int, 20)
			for i := range list {
				list[i] = i + 1 // 1..20
			}
			content = append(content, record{DrawID: int64(page*10 + slot), WinningNumbers: winning{List: list, Bonus: []int{20}}})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"content":    content,
			"last":       page+1 >= pages,
			"totalPages": pages,
			"number":     page,
		}))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRunEndToEnd(t *testing.T) {
	srv, calls := opapStub(t, 2)
	t.Setenv(config.EnvOPAPBaseURL, srv.URL)
	cacheDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	args := []string{"1", "2", "3", "-d", "2020-06-25", "-c", cacheDir}
	code := run(context.Background(), args, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var report map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.EqualValues(t, 20, report["num_payouts"])
	require.Equal(t, "25", report["mean_payout_exact"], "every draw hits all three numbers")
	require.Equal(t, []any{float64(1), float64(2)}, report["pages"])
	require.Equal(t, int32(2), calls.Load())

	stdout.Reset()
	code = run(context.Background(), append(args, "-p", "2"), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	require.Equal(t, int32(2), calls.Load(), "cached page is not refetched")
}

func TestRunRejectsInvalidSelection(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"1", "1"}, &stdout, &stderr)
	require.Equal(t, exitUsage, code)
	require.Empty(t, stdout.String())
	require.True(t, strings.Contains(stderr.String(), "invalid_request"), stderr.String())
}
