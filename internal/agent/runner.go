package agent

import (
	"context"

	"agentfarm/internal/logging"
	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

// Runner drives the full lifecycle of one task execution: claim, execute,
// persist the result, log activity and fold the outcome into the agent's
// stats. A Runner is cheap and built per dispatch.
type Runner struct {
	deps   Deps
	logger logging.Logger
}

func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps, logger: logging.OrNop(deps.Logger)}
}

// Run executes task with worker. The returned error covers infrastructure
// failures only; a task the model could not complete is recorded as failed
// and returns nil.
func (r *Runner) Run(ctx context.Context, worker Agent, task store.Task, agentID string) error {
	s := r.deps.Store
	r.logger.Info("[%s] starting task: %s", worker.Name(), task.Title)

	if err := s.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: store.TaskInProgress, Agent: worker.Name()}); err != nil {
		return err
	}
	if agentID != "" {
		if err := s.UpdateAgentStatus(ctx, agentID, store.AgentWorking); err != nil {
			r.logger.Warn("could not mark agent %s working: %v", worker.Name(), err)
		}
	}

	telemetry.TasksInFlight.Inc()
	result, execErr := worker.Execute(ctx, task)
	telemetry.TasksInFlight.Dec()

	if execErr != nil {
		r.logger.Error("[%s] task failed: %s: %v", worker.Name(), task.Title, execErr)
		telemetry.TasksCompleted.WithLabelValues(string(store.TaskFailed)).Inc()

		if err := s.UpdateTask(ctx, task.ID, store.TaskUpdate{
			Status: store.TaskFailed,
			Result: "Error: " + execErr.Error(),
			Agent:  worker.Name(),
		}); err != nil {
			return err
		}
		r.logActivity(ctx, worker, task, "task_failed", clampText(execErr.Error(), 500), nil)
		r.recordOutcome(ctx, agentID, worker.Name(), false, store.AgentError)
		return nil
	}

	status := store.TaskDone
	if result.NeedsHuman || task.RequiresHuman {
		status = store.TaskNeedsHuman
	}
	if err := s.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:     status,
		Result:     result.Text,
		Agent:      worker.Name(),
		TokensUsed: result.TokensUsed,
		CostUSD:    result.CostUSD,
	}); err != nil {
		return err
	}
	telemetry.TasksCompleted.WithLabelValues(string(status)).Inc()

	r.logActivity(ctx, worker, task, "task_completed", clampText(result.Text, 500), result)
	r.recordOutcome(ctx, agentID, worker.Name(), true, store.AgentIdle)
	r.logger.Info("[%s] task completed: %s", worker.Name(), task.Title)
	return nil
}

func (r *Runner) logActivity(ctx context.Context, worker Agent, task store.Task, action, summary string, result *Result) {
	entry := store.ActivityEntry{
		Agent:   worker.Name(),
		Project: task.Project,
		Action:  action,
		Result:  summary,
	}
	if result != nil {
		entry.ModelUsed = result.ModelUsed
		entry.TokensUsed = result.TokensUsed
		entry.CostUSD = result.CostUSD
	}
	if err := r.deps.Store.LogActivity(ctx, entry); err != nil {
		r.logger.Warn("could not log activity for %s: %v", task.ID, err)
	}
}

func (r *Runner) recordOutcome(ctx context.Context, agentID, name string, success bool, status store.AgentStatus) {
	if agentID == "" {
		return
	}
	if err := r.deps.Store.RecordAgentOutcome(ctx, agentID, success); err != nil {
		r.logger.Warn("could not record outcome for agent %s: %v", name, err)
	}
	if err := r.deps.Store.UpdateAgentStatus(ctx, agentID, status); err != nil {
		r.logger.Warn("could not reset agent %s status: %v", name, err)
	}
}
