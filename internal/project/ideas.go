package project

import (
	"context"
	"fmt"
	"strings"

	"agentfarm/internal/config"
	"agentfarm/internal/store"
)

const ideasTaskTitle = "Auto-generate new project ideas"

// AutoGenerateIdeas enqueues a low-priority idea generation task when the
// portfolio has room for more projects. The instructions carry the learnings
// brief and the stored strategy brief so the generating agent steers away
// from past failures. Returns true when a task was created.
func (m *Manager) AutoGenerateIdeas(ctx context.Context, cfg config.Runtime) (bool, error) {
	names, err := m.workingProjectNames(ctx)
	if err != nil {
		return false, err
	}
	if len(names) >= cfg.ParallelProjectsMax {
		m.logger.Debug("at max projects (%d), skipping idea generation", cfg.ParallelProjectsMax)
		return false, nil
	}

	// One open generation task at a time.
	pending, err := m.store.Tasks(ctx, store.TaskFilter{Status: store.TaskPending})
	if err != nil {
		return false, fmt.Errorf("list pending tasks: %w", err)
	}
	for _, t := range pending {
		if t.Kind == store.KindGenerateIdeas {
			return false, nil
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GENERATE_IDEAS\nGenerate 3 new profitable micro-project ideas.\n")
	fmt.Fprintf(&b, "Current active projects: [%s]\n", strings.Join(names, ", "))
	b.WriteString("Avoid ideas similar to existing projects. Focus on quick wins with minimal execution cost.\n")

	if m.learnings != nil {
		if brief := m.learnings.IntelligenceBrief(ctx); brief != "" {
			b.WriteString("\n" + brief + "\n")
		}
	}
	if cfgMap, err := m.store.Config(ctx); err == nil {
		if strategy := cfgMap[config.KeyStrategyBrief]; strategy != "" {
			b.WriteString("\nSTRATEGIC DIRECTION:\n" + strategy + "\n")
		}
	}

	if _, err := m.store.CreateTask(ctx, store.Task{
		Title:        ideasTaskTitle,
		Instructions: b.String(),
		Priority:     store.PriorityLow,
		Kind:         store.KindGenerateIdeas,
	}); err != nil {
		return false, fmt.Errorf("create idea generation task: %w", err)
	}
	m.logger.Info("created auto-generate ideas task")
	return true, nil
}

func (m *Manager) workingProjectNames(ctx context.Context) ([]string, error) {
	var names []string
	for _, status := range []store.ProjectStatus{store.ProjectActive, store.ProjectResearch, store.ProjectScaling} {
		projects, err := m.store.Projects(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s projects: %w", status, err)
		}
		for _, p := range projects {
			names = append(names, p.Name)
		}
	}
	return names, nil
}
