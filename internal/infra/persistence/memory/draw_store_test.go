package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
)

func batchFor(t *testing.T, page int, idBase int64) kino.Batch {
	t.Helper()
	key, err := kino.NewPageKey(time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), page)
	require.NoError(t, err)
	numbers := make([]int, kino.NumbersPerDraw)
	for i := range numbers {
		numbers[i] = i*3 + 2
	}
	d, err := kino.NewDraw(idBase, 0, numbers, numbers[0])
	require.NoError(t, err)
	return kino.Batch{Key: key, Draws: []kino.Draw{d}, Last: true}
}

func TestMemoryStoreContract(t *testing.T) {
	store := NewDrawStore()
	ctx := context.Background()
	batch := batchFor(t, 1, 42)

	_, err := store.Load(ctx, batch.Key)
	require.True(t, errs.HasCode(err, errs.CodeCacheMiss))

	require.NoError(t, store.Store(ctx, batch))
	require.NoError(t, store.Store(ctx, batch))
	require.Equal(t, 1, store.Len())

	has, err := store.Has(ctx, batch.Key)
	require.NoError(t, err)
	require.True(t, has)

	loaded, err := store.Load(ctx, batch.Key)
	require.NoError(t, err)
	require.True(t, batch.Equal(loaded))

	err = store.Store(ctx, batchFor(t, 1, 43))
	require.True(t, errs.HasCode(err, errs.CodeCacheInconsistent))

	store.corrupt(batch.Key, []byte("{}"))
	_, err = store.Load(ctx, batch.Key)
	require.True(t, errs.HasCode(err, errs.CodeCacheCorrupt))
	require.Equal(t, "memory", store.Backend())
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	store := NewDrawStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Has(ctx, batchFor(t, 1, 1).Key)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, store.Store(ctx, batchFor(t, 1, 1)), context.Canceled)
}
