package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

// Dispatch runs each selected task concurrently, at most parallel at once,
// and blocks until all of them finish. run owns the full task lifecycle.
func (q *Queue) Dispatch(ctx context.Context, tasks []store.Task, parallel int, run func(ctx context.Context, t store.Task)) {
	if len(tasks) == 0 {
		return
	}
	if parallel < 1 {
		parallel = 1
	}

	sem := semaphore.NewWeighted(int64(parallel))
	var wg sync.WaitGroup
	for _, t := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		telemetry.TasksDispatched.Inc()
		wg.Add(1)
		go func(t store.Task) {
			defer wg.Done()
			defer sem.Release(1)
			run(ctx, t)
		}(t)
	}
	wg.Wait()
}
