// Package orchestrator runs the main control loop: refresh config, send the
// machine heartbeat, advance project lifecycles, and dispatch pending tasks
// to agents. Every step is isolated so one failing collaborator never takes
// down the loop.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"agentfarm/internal/agent"
	"agentfarm/internal/config"
	"agentfarm/internal/deploy"
	"agentfarm/internal/learnings"
	"agentfarm/internal/llm"
	"agentfarm/internal/logging"
	"agentfarm/internal/machine"
	"agentfarm/internal/project"
	"agentfarm/internal/queue"
	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

// Dependencies wires the orchestrator's collaborators. Store and LLM are
// required; the rest have working zero values.
type Dependencies struct {
	Store store.Store
	LLM   llm.Completer

	// LocalModels lists the models loaded on this machine for the
	// heartbeat. Nil means no local runtime.
	LocalModels func(ctx context.Context) []string

	// MachineName overrides the hostname reported in heartbeats.
	MachineName string

	// RosterPath is an optional agents.yaml used when the store has no
	// agents registered for this machine.
	RosterPath string

	// Updater applies git self-updates when self_update_enabled is set.
	Updater *deploy.SelfUpdater

	// Restart is invoked after a successful self-update so the process
	// supervisor brings up the new code. Nil disables the restart.
	Restart func()

	Logger logging.Logger
}

type Orchestrator struct {
	deps      Dependencies
	queue     *queue.Queue
	learnings *learnings.Engine
	logger    logging.Logger

	cfg       config.Runtime
	loopCount int
}

func New(deps Dependencies) *Orchestrator {
	logger := logging.OrNop(deps.Logger)
	if deps.MachineName == "" {
		deps.MachineName = machine.Collect(context.Background()).Hostname
	}
	return &Orchestrator{
		deps:      deps,
		queue:     queue.New(deps.Store, logger),
		learnings: learnings.NewEngine(deps.Store, deps.LLM, logger),
		logger:    logger,
		cfg:       config.Defaults(),
	}
}

// RunOnce executes a single loop iteration.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	o.loopCount++
	start := time.Now()
	o.logger.Info("orchestrator loop #%d", o.loopCount)

	o.refreshConfig(ctx)
	o.heartbeat(ctx)
	humanCount := o.scanHumanQueue(ctx)

	manager := project.NewManager(o.deps.Store, o.learnings, o.logger)

	ideas := 0
	o.step(ctx, "process_ideas", func(ctx context.Context) error {
		n, err := manager.ProcessNewIdeas(ctx)
		if n > 0 {
			o.logger.Info("processed %d new idea(s)", n)
		}
		ideas = n
		return err
	})

	o.step(ctx, "evaluate_projects", func(ctx context.Context) error {
		actions, err := manager.EvaluateProjects(ctx, o.cfg)
		if len(actions.Scaled) > 0 {
			o.logger.Info("scaled projects: %v", actions.Scaled)
		}
		if len(actions.Archived) > 0 {
			o.logger.Info("archived projects: %v", actions.Archived)
		}
		return err
	})

	o.step(ctx, "reclaim_stale", func(ctx context.Context) error {
		_, err := o.queue.ReclaimStale(ctx, o.cfg.TaskLease)
		return err
	})

	dispatched := 0
	o.step(ctx, "dispatch", func(ctx context.Context) error {
		var err error
		dispatched, err = o.dispatchTasks(ctx)
		return err
	})

	// First-iteration warmup for the jobs that otherwise wait for cron.
	if o.loopCount == 1 {
		o.hourly(ctx)
		o.weekly(ctx)
	}

	telemetry.LoopIterations.Inc()
	o.logger.Info("loop done in %.1fs | human queue: %d | ideas: %d | dispatched: %d",
		time.Since(start).Seconds(), humanCount, ideas, dispatched)
}

// Run loops until ctx is cancelled. Hourly and weekly jobs run on a cron
// schedule alongside the main cadence.
func (o *Orchestrator) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc("@hourly", func() { o.hourly(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc("@weekly", func() { o.weekly(ctx) }); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	o.RunOnce(ctx)
	o.logger.Info("orchestrator loop every %s", o.cfg.LoopInterval)

	timer := time.NewTimer(o.cfg.LoopInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			o.markOffline()
			return ctx.Err()
		case <-timer.C:
			o.RunOnce(ctx)
			// Interval may have changed with the config refresh.
			timer.Reset(o.cfg.LoopInterval)
		}
	}
}

func (o *Orchestrator) refreshConfig(ctx context.Context) {
	raw, err := o.deps.Store.Config(ctx)
	if err != nil {
		o.logger.Error("config refresh failed, keeping previous: %v", err)
		telemetry.LoopStepErrors.WithLabelValues("config").Inc()
		return
	}
	o.cfg = config.Parse(raw)
}

func (o *Orchestrator) heartbeat(ctx context.Context) {
	info := machine.Collect(ctx)
	var models []string
	if o.deps.LocalModels != nil {
		models = o.deps.LocalModels(ctx)
	}
	err := o.deps.Store.UpsertMachine(ctx, store.Machine{
		Name:     o.deps.MachineName,
		IP:       info.IP,
		OS:       info.OS,
		RAMGB:    info.RAMGB,
		CPUCores: info.CPUCores,
		Status:   "online",
		Models:   models,
	})
	if err != nil {
		o.logger.Warn("heartbeat failed: %v", err)
		telemetry.LoopStepErrors.WithLabelValues("heartbeat").Inc()
	}
}

func (o *Orchestrator) markOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info := machine.Collect(ctx)
	err := o.deps.Store.UpsertMachine(ctx, store.Machine{
		Name:     o.deps.MachineName,
		IP:       info.IP,
		OS:       info.OS,
		RAMGB:    info.RAMGB,
		CPUCores: info.CPUCores,
		Status:   "offline",
	})
	if err != nil {
		o.logger.Warn("could not mark machine offline: %v", err)
	}
}

func (o *Orchestrator) scanHumanQueue(ctx context.Context) int {
	tasks, err := o.deps.Store.Tasks(ctx, store.TaskFilter{Status: store.TaskNeedsHuman})
	if err != nil {
		o.logger.Error("human queue check failed: %v", err)
		telemetry.LoopStepErrors.WithLabelValues("human_queue").Inc()
		return 0
	}
	if len(tasks) > 0 {
		o.logger.Warn("%d task(s) need human attention:", len(tasks))
		for _, t := range tasks {
			o.logger.Warn("  [%s] %s (project: %s)", t.Priority, t.Title, t.Project)
		}
	}
	return len(tasks)
}

func (o *Orchestrator) dispatchTasks(ctx context.Context) (int, error) {
	if o.cfg.AutonomyLevel == 0 {
		o.logger.Info("autonomy level 0, skipping task execution")
		return 0, nil
	}

	roster, err := o.roster(ctx)
	if err != nil {
		return 0, err
	}
	tasks, err := o.queue.SelectRunnable(ctx, roster, o.cfg)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		o.logger.Debug("no pending tasks to process")
		return 0, nil
	}

	deps := agent.Deps{
		Store:  o.deps.Store,
		LLM:    o.deps.LLM,
		Config: func() config.Runtime { return o.cfg },
		Logger: o.logger,
	}
	runner := agent.NewRunner(deps)

	var dispatched atomic.Int64
	o.queue.Dispatch(ctx, tasks, o.cfg.MaxConcurrentAgents, func(ctx context.Context, task store.Task) {
		worker := agent.ForTask(deps, task, roster)
		if worker == nil {
			o.logger.Warn("no agent available for task: %s", task.Title)
			return
		}
		agentID := rosterAgentID(roster, worker.Name())
		if err := runner.Run(ctx, worker, task, agentID); err != nil {
			o.logger.Error("dispatch of %q failed: %v", task.Title, err)
			telemetry.LoopStepErrors.WithLabelValues("dispatch").Inc()
			return
		}
		dispatched.Add(1)
	})
	return int(dispatched.Load()), nil
}

// roster loads the agents configured for this machine, falling back to the
// yaml roster file and then to the built-in defaults.
func (o *Orchestrator) roster(ctx context.Context) ([]store.Agent, error) {
	agents, err := o.deps.Store.Agents(ctx, o.deps.MachineName)
	if err != nil {
		return nil, err
	}
	if len(agents) > 0 {
		return agents, nil
	}
	if o.deps.RosterPath != "" {
		if agents, err := agent.LoadRoster(o.deps.RosterPath, o.deps.MachineName); err == nil {
			return agents, nil
		} else {
			o.logger.Warn("roster file %s unusable, using defaults: %v", o.deps.RosterPath, err)
		}
	}
	return agent.DefaultRoster(o.deps.MachineName), nil
}

func (o *Orchestrator) hourly(ctx context.Context) {
	o.step(ctx, "generate_ideas", func(ctx context.Context) error {
		manager := project.NewManager(o.deps.Store, o.learnings, o.logger)
		_, err := manager.AutoGenerateIdeas(ctx, o.cfg)
		return err
	})
	o.selfUpdate(ctx)
}

func (o *Orchestrator) weekly(ctx context.Context) {
	o.step(ctx, "strategy_review", func(ctx context.Context) error {
		strategy, err := o.learnings.GenerateStrategyReview(ctx)
		if err != nil || strategy == "" {
			return err
		}
		return o.deps.Store.LogActivity(ctx, store.ActivityEntry{
			Agent:  "orchestrator",
			Action: "task_completed",
			Result: "Strategy review: " + clip(strategy, 300),
		})
	})
}

func (o *Orchestrator) selfUpdate(ctx context.Context) {
	if !o.cfg.SelfUpdateEnabled || o.deps.Updater == nil {
		return
	}
	updated, err := o.deps.Updater.CheckAndUpdate(ctx)
	if err != nil {
		o.logger.Warn("self-update check failed: %v", err)
		telemetry.LoopStepErrors.WithLabelValues("self_update").Inc()
		return
	}
	if updated && o.deps.Restart != nil {
		o.logger.Info("restarting after self-update")
		o.deps.Restart()
	}
}

// step runs one loop stage and converts its failure into a log line and a
// counter bump. Returns true when the stage succeeded.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	if err := fn(ctx); err != nil {
		o.logger.Error("%s failed: %v", name, err)
		telemetry.LoopStepErrors.WithLabelValues(name).Inc()
		return false
	}
	return true
}

func rosterAgentID(roster []store.Agent, name string) string {
	for _, a := range roster {
		if a.Name == name {
			return a.ID
		}
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
