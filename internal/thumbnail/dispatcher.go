package thumbnail

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type JobHandler func(ctx context.Context, job Job)

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
// Submit never blocks; a full queue is reported to the caller.
type Dispatcher struct {
	workers int
	timeout time.Duration
	handler JobHandler
	jobs    chan Job

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(workers, queueSize int, timeout time.Duration, h JobHandler) (*Dispatcher, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be > 0")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("job timeout must be > 0")
	}
	if h == nil {
		return nil, fmt.Errorf("job handler is required")
	}
	return &Dispatcher{
		workers: workers,
		timeout: timeout,
		handler: h,
		jobs:    make(chan Job, queueSize),
	}, nil
}

// Start launches the workers. Jobs submitted earlier are already queued and
// run once a worker is free. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.jobs {
		jobCtx, cancel := context.WithTimeout(ctx, d.timeout)
		d.handler(jobCtx, job)
		cancel()
	}
}

func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of queued jobs not yet picked up by a worker.
func (d *Dispatcher) Len() int {
	return len(d.jobs)
}

// Stop rejects new jobs, lets the workers drain the queue and waits for them.
// Jobs still queued on a dispatcher that was never started are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
