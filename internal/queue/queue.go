// Package queue selects which pending tasks run next: stale lease reclaim,
// concurrency budgeting, cost guarding and priority ordering.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentfarm/internal/config"
	"agentfarm/internal/logging"
	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

// Queue plans task dispatch against the shared store.
type Queue struct {
	store  store.Store
	logger logging.Logger

	// now is overridable in tests.
	now func() time.Time
}

func New(s store.Store, logger logging.Logger) *Queue {
	return &Queue{store: s, logger: logging.OrNop(logger), now: time.Now}
}

// ReclaimStale returns in-progress tasks whose lease expired back to
// pending. A task loses its lease when the machine running it died without
// reporting a result.
func (q *Queue) ReclaimStale(ctx context.Context, lease time.Duration) (int, error) {
	running, err := q.store.Tasks(ctx, store.TaskFilter{Status: store.TaskInProgress})
	if err != nil {
		return 0, fmt.Errorf("list running tasks: %w", err)
	}

	cutoff := q.now().Add(-lease)
	reclaimed := 0
	for _, t := range running {
		started := t.StartedAt
		if started == nil {
			// Legacy rows without a start timestamp age from creation.
			started = &t.CreatedAt
		}
		if !started.Before(cutoff) {
			continue
		}
		if err := q.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: store.TaskPending}); err != nil {
			q.logger.Warn("could not reclaim task %s: %v", t.ID, err)
			continue
		}
		q.logger.Warn("reclaimed stale task %q (started %s)", t.Title, started.Format(time.RFC3339))
		telemetry.TasksReclaimed.Inc()
		reclaimed++
	}
	return reclaimed, nil
}

// SelectRunnable picks the tasks this machine should dispatch now, at most
// the concurrency budget left after counting work already running on the
// given roster. Human-gated tasks never dispatch, and tasks of projects
// that blew their cost cap sink below everything else.
func (q *Queue) SelectRunnable(ctx context.Context, roster []store.Agent, cfg config.Runtime) ([]store.Task, error) {
	budget, err := q.remainingBudget(ctx, roster, cfg.MaxConcurrentAgents)
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		return nil, nil
	}

	pending, err := q.store.Tasks(ctx, store.TaskFilter{Status: store.TaskPending})
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}

	overBudget := q.overBudgetProjects(ctx, cfg.MaxCostPerProject)

	runnable := pending[:0:0]
	for _, t := range pending {
		if t.RequiresHuman {
			continue
		}
		runnable = append(runnable, t)
	}

	// Stable sort preserves arrival order inside each priority class.
	sort.SliceStable(runnable, func(i, j int) bool {
		ri, rj := rank(runnable[i], overBudget), rank(runnable[j], overBudget)
		return ri < rj
	})

	if len(runnable) > budget {
		runnable = runnable[:budget]
	}
	return runnable, nil
}

// remainingBudget subtracts tasks already running on this roster's agents
// from the configured concurrency cap.
func (q *Queue) remainingBudget(ctx context.Context, roster []store.Agent, maxConcurrent int) (int, error) {
	running, err := q.store.Tasks(ctx, store.TaskFilter{Status: store.TaskInProgress})
	if err != nil {
		return 0, fmt.Errorf("list running tasks: %w", err)
	}

	names := make(map[string]bool, len(roster))
	for _, a := range roster {
		names[strings.ToLower(a.Name)] = true
	}
	inFlight := 0
	for _, t := range running {
		if names[strings.ToLower(t.Agent)] {
			inFlight++
		}
	}

	budget := maxConcurrent - inFlight
	if budget < 0 {
		budget = 0
	}
	return budget, nil
}

// overBudgetProjects names active projects whose spend passed the per
// project cost cap. Their tasks still run eventually, but only after every
// healthy project's work.
func (q *Queue) overBudgetProjects(ctx context.Context, maxCost float64) map[string]bool {
	if maxCost <= 0 {
		return nil
	}
	out := map[string]bool{}
	for _, status := range []store.ProjectStatus{store.ProjectActive, store.ProjectScaling} {
		projects, err := q.store.Projects(ctx, status)
		if err != nil {
			q.logger.Warn("could not list %s projects for cost guard: %v", status, err)
			continue
		}
		for _, p := range projects {
			if p.CostTotal > maxCost {
				out[strings.ToLower(p.Name)] = true
			}
		}
	}
	return out
}

// rank orders tasks for dispatch. Cost-guarded projects sort after every
// priority class.
func rank(t store.Task, overBudget map[string]bool) int {
	r := t.Priority.Rank()
	if overBudget[strings.ToLower(t.Project)] {
		r += 10
	}
	return r
}
