package filestore

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
)

func batchFor(t *testing.T, page int, idBase int64) kino.Batch {
	t.Helper()
	key, err := kino.NewPageKey(time.Date(2020, 6, 25, 0, 0, 0, 0, time.UTC), page)
	require.NoError(t, err)
	draws := make([]kino.Draw, 0, kino.DrawsPerPage)
	for slot := 0; slot < kino.DrawsPerPage; slot++ {
		numbers := make([]int, kino.NumbersPerDraw)
		for i := range numbers {
			numbers[i] = (slot+i*4)%kino.MaxNumber + 1
		}
		d, err := kino.NewDraw(idBase+int64(slot), slot, numbers, 0)
		require.NoError(t, err)
		draws = append(draws, d)
	}
	return kino.Batch{Key: key, Draws: draws}
}

func TestStoreThenLoadRoundTrip(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	ctx := context.Background()
	batch := batchFor(t, 4, 1000)

	has, err := store.Has(ctx, batch.Key)
	require.NoError(t, err)
	require.False(t, has)

	_, err = store.Load(ctx, batch.Key)
	require.True(t, errs.HasCode(err, errs.CodeCacheMiss))

	require.NoError(t, store.Store(ctx, batch))
	has, err = store.Has(ctx, batch.Key)
	require.NoError(t, err)
	require.True(t, has)

	loaded, err := store.Load(ctx, batch.Key)
	require.NoError(t, err)
	require.True(t, batch.Equal(loaded))
	require.Equal(t, filepath.Join(store.Root(), "2020", "06", "25", "page-04.json"), store.Path(batch.Key))

	entries, err := os.ReadDir(filepath.Dir(store.Path(batch.Key)))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not remain")
}

func TestStoreIsWriteOnce(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	batch := batchFor(t, 1, 1000)
	require.NoError(t, store.Store(ctx, batch))

	before, err := os.ReadFile(store.Path(batch.Key))
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, batchFor(t, 1, 1000)), "identical rewrite is a no-op")

	err = store.Store(ctx, batchFor(t, 1, 2000))
	require.True(t, errs.HasCode(err, errs.CodeCacheInconsistent))

	after, err := os.ReadFile(store.Path(batch.Key))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestConcurrentStoresOfSameKey(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	batch := batchFor(t, 2, 3000)
	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- store.Store(ctx, batch)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	loaded, err := store.Load(ctx, batch.Key)
	require.NoError(t, err)
	require.Len(t, loaded.Draws, kino.DrawsPerPage)
}

func TestLoadCorruptEntry(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	batch := batchFor(t, 3, 1000)
	require.NoError(t, store.Store(ctx, batch))
	require.NoError(t, os.WriteFile(store.Path(batch.Key), []byte(`{"version":1`), 0o644))

	_, err = store.Load(ctx, batch.Key)
	require.True(t, errs.HasCode(err, errs.CodeCacheCorrupt))

	err = store.Store(ctx, batch)
	require.True(t, errs.HasCode(err, errs.CodeCacheCorrupt), "corrupt entries are never silently replaced")
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("  ")
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}
