package thumbnail

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingThumbnail(userID string, at time.Time) Thumbnail {
	return Thumbnail{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       "title",
		Style:       DefaultStyle,
		AspectRatio: DefaultAspectRatio,
		ColorScheme: DefaultColorScheme,
		Status:      StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestMemoryStoreListNewestFirstAndScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := pendingThumbnail("u1", base)
	newer := pendingThumbnail("u1", base.Add(time.Minute))
	other := pendingThumbnail("u2", base.Add(2*time.Minute))
	for _, th := range []Thumbnail{older, newer, other} {
		require.NoError(t, s.Create(ctx, th))
	}

	items, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, newer.ID, items[0].ID)
	assert.Equal(t, older.ID, items[1].ID)

	empty, err := s.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemoryStoreTransitionOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	th := pendingThumbnail("u1", time.Now())
	require.NoError(t, s.Create(ctx, th))

	ok, err := s.Transition(ctx, th.ID, Ready("https://cdn.example/a.png"), time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Transition(ctx, th.ID, Failed(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, "https://cdn.example/a.png", *got.ImageURL)

	ok, err = s.Transition(ctx, uuid.NewString(), Failed(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreConcurrentTransitionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	th := pendingThumbnail("u1", time.Now())
	require.NoError(t, s.Create(ctx, th))

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := Failed()
			if i%2 == 0 {
				out = Ready("loc")
			}
			ok, err := s.Transition(ctx, th.ID, out, time.Now())
			assert.NoError(t, err)
			if ok {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load())
}

func TestMemoryStoreDeleteRequiresOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	th := pendingThumbnail("u1", time.Now())
	require.NoError(t, s.Create(ctx, th))

	assert.ErrorIs(t, s.Delete(ctx, "u2", th.ID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, "u1", th.ID))
	assert.ErrorIs(t, s.Delete(ctx, "u1", th.ID), ErrNotFound)
	_, err := s.Get(ctx, th.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "thumbnails.json")

	s := NewMemoryStore(path)
	th := pendingThumbnail("u1", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.Create(ctx, th))

	reloaded := NewMemoryStore(path)
	require.NoError(t, reloaded.Load())
	got, err := reloaded.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.Title, got.Title)
	assert.Nil(t, got.ImageURL)

	ids, err := reloaded.PendingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{th.ID}, ids)
}
