package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentfarm/internal/config"
	"agentfarm/internal/store"
)

func seedTask(t *testing.T, mem *store.Memory, title string, priority store.Priority, opts store.Task) string {
	t.Helper()
	opts.Title = title
	opts.Priority = priority
	if opts.Status == "" {
		opts.Status = store.TaskPending
	}
	id, err := mem.CreateTask(context.Background(), opts)
	require.NoError(t, err)
	return id
}

func TestSelectRunnablePriorityOrder(t *testing.T) {
	mem := store.NewMemory()
	seedTask(t, mem, "low", store.PriorityLow, store.Task{})
	seedTask(t, mem, "urgent-1", store.PriorityUrgent, store.Task{})
	seedTask(t, mem, "medium", store.PriorityMedium, store.Task{})
	seedTask(t, mem, "urgent-2", store.PriorityUrgent, store.Task{})
	seedTask(t, mem, "high", store.PriorityHigh, store.Task{})

	cfg := config.Defaults()
	cfg.MaxConcurrentAgents = 3
	picked, err := New(mem, nil).SelectRunnable(context.Background(), nil, cfg)
	require.NoError(t, err)
	require.Len(t, picked, 3)
	// Urgent tasks first in arrival order, then high.
	require.Equal(t, "urgent-1", picked[0].Title)
	require.Equal(t, "urgent-2", picked[1].Title)
	require.Equal(t, "high", picked[2].Title)
}

func TestSelectRunnableSkipsHumanGatedTasks(t *testing.T) {
	mem := store.NewMemory()
	seedTask(t, mem, "approve trade", store.PriorityUrgent, store.Task{RequiresHuman: true})
	seedTask(t, mem, "write article", store.PriorityLow, store.Task{})

	picked, err := New(mem, nil).SelectRunnable(context.Background(), nil, config.Defaults())
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.Equal(t, "write article", picked[0].Title)
}

func TestSelectRunnableBudgetCountsRosterWork(t *testing.T) {
	mem := store.NewMemory()
	roster := []store.Agent{{Name: "scout"}, {Name: "builder"}}

	seedTask(t, mem, "running here", store.PriorityMedium, store.Task{Status: store.TaskInProgress, Agent: "scout"})
	seedTask(t, mem, "running elsewhere", store.PriorityMedium, store.Task{Status: store.TaskInProgress, Agent: "remote-agent"})
	seedTask(t, mem, "next-1", store.PriorityMedium, store.Task{})
	seedTask(t, mem, "next-2", store.PriorityMedium, store.Task{})
	seedTask(t, mem, "next-3", store.PriorityMedium, store.Task{})

	cfg := config.Defaults()
	cfg.MaxConcurrentAgents = 2

	// One slot is taken by this roster's agent; the other machine's task
	// does not count against the local budget.
	picked, err := New(mem, nil).SelectRunnable(context.Background(), roster, cfg)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.Equal(t, "next-1", picked[0].Title)
}

func TestSelectRunnableCostGuardDeprioritizes(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.CreateProject(context.Background(), store.Project{
		Name: "MoneyPit", Status: store.ProjectActive, CostTotal: 99,
	})
	require.NoError(t, err)

	seedTask(t, mem, "expensive urgent", store.PriorityUrgent, store.Task{Project: "MoneyPit"})
	seedTask(t, mem, "cheap low", store.PriorityLow, store.Task{Project: "Lean"})

	cfg := config.Defaults()
	cfg.MaxCostPerProject = 10
	cfg.MaxConcurrentAgents = 1

	picked, err := New(mem, nil).SelectRunnable(context.Background(), nil, cfg)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.Equal(t, "cheap low", picked[0].Title)
}

func TestReclaimStale(t *testing.T) {
	mem := store.NewMemory()
	fresh := seedTask(t, mem, "fresh", store.PriorityMedium, store.Task{})
	stale := seedTask(t, mem, "stale", store.PriorityMedium, store.Task{})

	// Start both, then age the stale one past its lease.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mem.Now = func() time.Time { return base }
	require.NoError(t, mem.UpdateTask(context.Background(), stale, store.TaskUpdate{Status: store.TaskInProgress}))
	mem.Now = func() time.Time { return base.Add(115 * time.Minute) }
	require.NoError(t, mem.UpdateTask(context.Background(), fresh, store.TaskUpdate{Status: store.TaskInProgress}))

	q := New(mem, nil)
	q.now = func() time.Time { return base.Add(2 * time.Hour) }

	reclaimed, err := q.ReclaimStale(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	require.Zero(t, reclaimed)

	q.now = func() time.Time { return base.Add(121 * time.Minute) }
	reclaimed, err = q.ReclaimStale(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	pending, err := mem.Tasks(context.Background(), store.TaskFilter{Status: store.TaskPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "stale", pending[0].Title)
}

func TestDispatchBoundsParallelism(t *testing.T) {
	mem := store.NewMemory()
	var tasks []store.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, store.Task{ID: string(rune('a' + i))})
	}

	var mu sync.Mutex
	var current, peak int
	var ran atomic.Int64

	New(mem, nil).Dispatch(context.Background(), tasks, 2, func(_ context.Context, _ store.Task) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		ran.Add(1)
	})

	require.Equal(t, int64(6), ran.Load())
	require.LessOrEqual(t, peak, 2)
}
