package thumbnail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 8)

	d, err := NewDispatcher(3, 8, time.Second, func(_ context.Context, job Job) {
		mu.Lock()
		seen[job.ThumbnailID] = true
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Submit(Job{ThumbnailID: id}))
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 4)
}

func TestDispatcherQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d, err := NewDispatcher(1, 1, time.Second, func(_ context.Context, _ Job) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)
	d.Start(context.Background())

	require.NoError(t, d.Submit(Job{ThumbnailID: "running"}))
	<-started
	require.NoError(t, d.Submit(Job{ThumbnailID: "queued"}))
	assert.ErrorIs(t, d.Submit(Job{ThumbnailID: "overflow"}), ErrQueueFull)
	assert.Equal(t, 1, d.Len())

	close(release)
	d.Stop()
}

func TestDispatcherStopDrainsAndRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var ran []string
	d, err := NewDispatcher(1, 4, time.Second, func(_ context.Context, job Job) {
		mu.Lock()
		ran = append(ran, job.ThumbnailID)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, d.Submit(Job{ThumbnailID: "a"}))
	require.NoError(t, d.Submit(Job{ThumbnailID: "b"}))
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	assert.ErrorIs(t, d.Submit(Job{ThumbnailID: "c"}), ErrDispatcherStopped)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestDispatcherAppliesJobTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	errs := make(chan error, 1)
	d, err := NewDispatcher(1, 1, 20*time.Millisecond, func(ctx context.Context, _ Job) {
		<-ctx.Done()
		errs <- ctx.Err()
	})
	require.NoError(t, err)
	d.Start(context.Background())
	require.NoError(t, d.Submit(Job{ThumbnailID: "slow"}))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatalf("job context never expired")
	}
	d.Stop()
}

func TestNewDispatcherValidation(t *testing.T) {
	h := func(context.Context, Job) {}
	_, err := NewDispatcher(0, 1, time.Second, h)
	assert.Error(t, err)
	_, err = NewDispatcher(1, 0, time.Second, h)
	assert.Error(t, err)
	_, err = NewDispatcher(1, 1, 0, h)
	assert.Error(t, err)
	_, err = NewDispatcher(1, 1, time.Second, nil)
	assert.Error(t, err)
}
