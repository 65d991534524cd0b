package drawsource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
	"github.com/coachpo/kino/internal/infra/persistence/filestore"
	"github.com/coachpo/kino/internal/infra/persistence/memory"
)

var day = time.Date(2020, 6, 25, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[int]int
	lastPage int
	fail     map[int]error
	delay    func(page int) time.Duration
}

func newFakeFetcher(lastPage int) *fakeFetcher {
	return &fakeFetcher{calls: make(map[int]int), lastPage: lastPage, fail: make(map[int]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	f.mu.Lock()
	f.calls[key.Page]++
	err := f.fail[key.Page]
	f.mu.Unlock()
	if f.delay != nil {
		select {
		case <-time.After(f.delay(key.Page)):
		case <-ctx.Done():
			return kino.Batch{}, ctx.Err()
		}
	}
	if err != nil {
		return kino.Batch{}, err
	}
	if key.Page > f.lastPage {
		return kino.Batch{}, errs.New("fake", errs.CodeNotFound, errs.WithKey(key.DateString(), key.Page))
	}
	draws := make([]kino.Draw, 0, kino.DrawsPerPage)
	for slot := 0; slot < kino.DrawsPerPage; slot++ {
		numbers := make([]int, kino.NumbersPerDraw)
		for i := range numbers {
			numbers[i] = (key.Page+slot+i*4)%kino.MaxNumber + 1
		}
		d, err := kino.NewDraw(int64(key.Page*100+slot), slot, numbers, 0)
		if err != nil {
			return kino.Batch{}, err
		}
		draws = append(draws, d)
	}
	return kino.Batch{Key: key, Draws: draws, Last: key.Page == f.lastPage}, nil
}

func (f *fakeFetcher) callsFor(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func pagesOf(batches []kino.Batch) []int {
	out := make([]int, len(batches))
	for i, b := range batches {
		out[i] = b.Key.Page
	}
	return out
}

func TestResolvePreservesRequestedOrder(t *testing.T) {
	fetcher := newFakeFetcher(kino.PagesPerDay)
	// Earlier pages finish last.
	fetcher.delay = func(page int) time.Duration { return time.Duration(20-page) * time.Millisecond }
	src, err := New(memory.NewDrawStore(), fetcher, WithWorkers(8))
	require.NoError(t, err)

	requested := []int{7, 1, 12, 3, 18}
	batches, err := src.Resolve(context.Background(), day, requested)
	require.NoError(t, err)
	require.Equal(t, requested, pagesOf(batches))
	require.Equal(t, int64(700), batches[0].Draws[0].ID)
}

func TestResolveServesSecondRunFromCache(t *testing.T) {
	fetcher := newFakeFetcher(kino.PagesPerDay)
	store := memory.NewDrawStore()
	src, err := New(store, fetcher)
	require.NoError(t, err)

	first, err := src.Resolve(context.Background(), day, []int{1, 2})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.total())
	require.Equal(t, 2, store.Len())

	second, err := src.Resolve(context.Background(), day, []int{2, 1})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.total(), "cached pages must not be fetched again")
	require.True(t, first[0].Equal(second[1]))
	require.True(t, first[1].Equal(second[0]))
}

func TestResolveAbortsOnTerminalError(t *testing.T) {
	fetcher := newFakeFetcher(kino.PagesPerDay)
	fetcher.fail[3] = errs.New("fake", errs.CodeParse, errs.WithMessage("bad payload"))
	src, err := New(memory.NewDrawStore(), fetcher, WithWorkers(2))
	require.NoError(t, err)

	batches, err := src.Resolve(context.Background(), day, []int{1, 2, 3, 4})
	require.Nil(t, batches, "partial results are never returned")
	require.True(t, errs.HasCode(err, errs.CodeParse))
}

func TestResolveNotFoundIsTerminal(t *testing.T) {
	src, err := New(memory.NewDrawStore(), newFakeFetcher(2))
	require.NoError(t, err)
	_, err = src.Resolve(context.Background(), day, []int{1, 5})
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestResolveCorruptCacheIsTerminal(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	fetcher := newFakeFetcher(kino.PagesPerDay)
	src, err := New(store, fetcher)
	require.NoError(t, err)
	key, err := kino.NewPageKey(day, 1)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path(key)), 0o755))
	require.NoError(t, os.WriteFile(store.Path(key), []byte("not json"), 0o644))

	_, err = src.Resolve(context.Background(), day, []int{1})
	require.True(t, errs.HasCode(err, errs.CodeCacheCorrupt))
	require.Zero(t, fetcher.callsFor(1), "a corrupt entry is not papered over by a refetch")
}

func TestResolveWithoutCache(t *testing.T) {
	fetcher := newFakeFetcher(kino.PagesPerDay)
	src, err := New(nil, fetcher)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := src.Resolve(context.Background(), day, []int{4})
		require.NoError(t, err)
	}
	require.Equal(t, 2, fetcher.callsFor(4))
}

func TestResolveRejectsInvalidPage(t *testing.T) {
	src, err := New(nil, newFakeFetcher(1))
	require.NoError(t, err)
	_, err = src.Resolve(context.Background(), day, []int{19})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestResolveCanceledContext(t *testing.T) {
	src, err := New(memory.NewDrawStore(), newFakeFetcher(kino.PagesPerDay))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Resolve(ctx, day, []int{1, 2})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverStopsAtLastPage(t *testing.T) {
	fetcher := newFakeFetcher(4)
	store := memory.NewDrawStore()
	src, err := New(store, fetcher)
	require.NoError(t, err)

	batches, err := src.Resolve(context.Background(), day, nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, pagesOf(batches))
	require.Zero(t, fetcher.callsFor(5))

	// Offline rerun: the cached last flag ends the walk.
	again, err := src.Discover(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, again, 4)
	require.Equal(t, 4, fetcher.total())
}

func TestDiscoverEndsOnMissingLaterPage(t *testing.T) {
	fetcher := newFakeFetcher(2)
	fetcher.lastPage = 2
	src, err := New(nil, &notLastFetcher{fakeFetcher: fetcher})
	require.NoError(t, err)
	batches, err := src.Discover(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, pagesOf(batches))
}

func TestDiscoverMissingFirstPage(t *testing.T) {
	src, err := New(nil, newFakeFetcher(0))
	require.NoError(t, err)
	_, err = src.Discover(context.Background(), day)
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestNewRequiresFetcher(t *testing.T) {
	_, err := New(nil, nil)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

// notLastFetcher never reports a last page, so discovery relies on not-found.
type notLastFetcher struct{ *fakeFetcher }

func (f *notLastFetcher) Fetch(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	batch, err := f.fakeFetcher.Fetch(ctx, key)
	batch.Last = false
	return batch, err
}

// growingFetcher serves a single page whose draw count is set per call, the
// way an in-progress day looks to the remote service.
type growingFetcher struct {
	mu    sync.Mutex
	size  int
	last  bool
	calls int
}

func (f *growingFetcher) Fetch(_ context.Context, key kino.PageKey) (kino.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	draws := make([]kino.Draw, 0, f.size)
	for slot := 0; slot < f.size; slot++ {
		numbers := make([]int, kino.NumbersPerDraw)
		for i := range numbers {
			numbers[i] = (slot+i*4)%kino.MaxNumber + 1
		}
		d, err := kino.NewDraw(int64(key.Page*100+slot), slot, numbers, 0)
		if err != nil {
			return kino.Batch{}, err
		}
		draws = append(draws, d)
	}
	return kino.Batch{Key: key, Draws: draws, Last: f.last}, nil
}

func (f *growingFetcher) grow(size int, last bool) {
	f.mu.Lock()
	f.size, f.last = size, last
	f.mu.Unlock()
}

func TestTodaysPagesAreNotCached(t *testing.T) {
	store := memory.NewDrawStore()
	fetcher := &growingFetcher{size: 3, last: true}
	// 21:30 UTC on the 24th is already the 25th in Athens.
	clock := func() time.Time { return time.Date(2020, 6, 24, 21, 30, 0, 0, time.UTC) }
	src, err := New(store, fetcher, WithClock(clock))
	require.NoError(t, err)

	first, err := src.Resolve(context.Background(), day, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, first[0].Draws, 3)
	require.Zero(t, store.Len())

	fetcher.grow(kino.DrawsPerPage, false)
	second, err := src.Resolve(context.Background(), day, []int{1})
	require.NoError(t, err)
	require.Len(t, second[0].Draws, kino.DrawsPerPage, "the grown page replaces the partial one")
	require.Equal(t, 2, fetcher.calls)
	require.Zero(t, store.Len())
}

func TestSettledDayIsCachedOnceComplete(t *testing.T) {
	store := memory.NewDrawStore()
	fetcher := &growingFetcher{size: 3}
	clock := func() time.Time { return time.Date(2020, 6, 26, 12, 0, 0, 0, time.UTC) }
	src, err := New(store, fetcher, WithClock(clock))
	require.NoError(t, err)

	_, err = src.Resolve(context.Background(), day, []int{1})
	require.NoError(t, err)
	require.Zero(t, store.Len(), "a short page before the last is not cached")

	fetcher.grow(kino.DrawsPerPage, false)
	_, err = src.Resolve(context.Background(), day, []int{1})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	_, err = src.Resolve(context.Background(), day, []int{1})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.calls, "the complete page is served from the cache")
}
