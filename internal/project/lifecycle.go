// Package project drives the project lifecycle state machine:
// idea -> research -> active -> scaling or archived. Transitions are
// evaluated once per orchestrator loop against the revenue ledger.
package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentfarm/internal/config"
	"agentfarm/internal/learnings"
	"agentfarm/internal/logging"
	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

const orchestratorActor = "orchestrator"

// Manager evaluates project transitions. The learnings engine is optional;
// when nil, scale and archive transitions skip learning extraction.
type Manager struct {
	store     store.Store
	learnings *learnings.Engine
	logger    logging.Logger

	now func() time.Time
}

func NewManager(s store.Store, eng *learnings.Engine, logger logging.Logger) *Manager {
	return &Manager{
		store:     s,
		learnings: eng,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// ProcessNewIdeas moves idea projects into research by creating a viability
// check task for each. A project that already has a pending or running
// research task is left alone. Returns the number of ideas picked up.
func (m *Manager) ProcessNewIdeas(ctx context.Context) (int, error) {
	ideas, err := m.store.Projects(ctx, store.ProjectIdea)
	if err != nil {
		return 0, fmt.Errorf("list idea projects: %w", err)
	}

	created := 0
	for _, p := range ideas {
		has, err := m.hasOpenResearchTask(ctx, p.Name)
		if err != nil {
			return created, err
		}
		if has {
			m.logger.Debug("project %q already has a research task, skipping", p.Name)
			continue
		}

		instructions := fmt.Sprintf("VIABILITY_CHECK\nDESCRIPTION: %s\nGOAL: %s",
			orDefault(p.Description, "No description provided"),
			orDefault(p.Goal, "Generate revenue"))

		if _, err := m.store.CreateTask(ctx, store.Task{
			Title:        fmt.Sprintf("Research: Viability check for '%s'", p.Name),
			Project:      p.Name,
			Instructions: instructions,
			Priority:     store.PriorityHigh,
			Kind:         store.KindViabilityCheck,
		}); err != nil {
			return created, fmt.Errorf("create viability task for %q: %w", p.Name, err)
		}

		if err := m.store.UpdateProjectStatus(ctx, p.ID, store.ProjectResearch, ""); err != nil {
			return created, fmt.Errorf("move %q to research: %w", p.Name, err)
		}
		telemetry.ProjectTransitions.WithLabelValues(string(store.ProjectResearch)).Inc()

		m.logActivity(ctx, p.Name, "project_created", "Moved to research phase, viability task created")
		m.logger.Info("created viability research task for project %q", p.Name)
		created++
	}
	return created, nil
}

// Actions summarizes one EvaluateProjects pass.
type Actions struct {
	Evaluated int
	Scaled    []string
	Archived  []string
}

// EvaluateProjects reconciles revenue from the ledger and applies the scale
// and archive rules to every active and scaling project. A project scaled in
// this pass is never archived in the same pass.
func (m *Manager) EvaluateProjects(ctx context.Context, cfg config.Runtime) (Actions, error) {
	var actions Actions

	active, err := m.store.Projects(ctx, store.ProjectActive)
	if err != nil {
		return actions, fmt.Errorf("list active projects: %w", err)
	}
	scaling, err := m.store.Projects(ctx, store.ProjectScaling)
	if err != nil {
		return actions, fmt.Errorf("list scaling projects: %w", err)
	}
	projects := append(active, scaling...)
	actions.Evaluated = len(projects)
	now := m.now()

	for _, p := range projects {
		rev30 := p.Revenue30d

		// The ledger is authoritative; the cached project fields drift when
		// revenue rows are added out of band.
		actual30, err := m.store.RevenueSince(ctx, p.Name, now.AddDate(0, 0, -30))
		if err != nil {
			m.logger.Warn("revenue reconcile failed for %q: %v", p.Name, err)
		} else if abs(actual30-rev30) > 0.01 {
			total, err := m.store.RevenueSince(ctx, p.Name, now.AddDate(0, 0, -3650))
			if err == nil {
				if err := m.store.UpdateProjectRevenue(ctx, p.ID, total, actual30); err != nil {
					m.logger.Warn("revenue update failed for %q: %v", p.Name, err)
				}
			}
			rev30 = actual30
		}

		if rev30 >= cfg.ScaleThresholdUSD && p.Status != store.ProjectScaling {
			if err := m.scaleProject(ctx, p, rev30, cfg.ScaleThresholdUSD); err != nil {
				m.logger.Warn("scale %q: %v", p.Name, err)
				continue
			}
			actions.Scaled = append(actions.Scaled, p.Name)
			continue
		}

		daysSince := 999
		if !p.LastActivity.IsZero() {
			daysSince = int(now.Sub(p.LastActivity).Hours() / 24)
		}
		if daysSince > cfg.ArchiveDaysNoRev && rev30 == 0 && p.Status != store.ProjectScaling {
			reason := fmt.Sprintf("No revenue in %d days (threshold: %dd). Cost incurred: $%.2f",
				daysSince, cfg.ArchiveDaysNoRev, p.CostTotal)
			if err := m.store.UpdateProjectStatus(ctx, p.ID, store.ProjectArchived, reason); err != nil {
				m.logger.Warn("archive %q: %v", p.Name, err)
				continue
			}
			telemetry.ProjectTransitions.WithLabelValues(string(store.ProjectArchived)).Inc()
			m.logActivity(ctx, p.Name, "project_archived", reason)
			m.logger.Info("archived project %q: %s", p.Name, reason)
			if m.learnings != nil {
				if _, err := m.learnings.ExtractFromProject(ctx, p, learnings.OutcomeFailure); err != nil {
					m.logger.Warn("failure learning for %q: %v", p.Name, err)
				}
			}
			actions.Archived = append(actions.Archived, p.Name)
		}
	}
	return actions, nil
}

func (m *Manager) scaleProject(ctx context.Context, p store.Project, rev30, threshold float64) error {
	if err := m.store.UpdateProjectStatus(ctx, p.ID, store.ProjectScaling, ""); err != nil {
		return err
	}
	telemetry.ProjectTransitions.WithLabelValues(string(store.ProjectScaling)).Inc()

	if m.learnings != nil {
		if _, err := m.learnings.ExtractFromProject(ctx, p, learnings.OutcomeSuccess); err != nil {
			m.logger.Warn("success learning for %q: %v", p.Name, err)
		}
	}

	instructions := fmt.Sprintf("RESEARCH: Scaling analysis\n"+
		"Project '%s' is generating $%.2f/month.\n"+
		"Analyze:\n"+
		"1. Current bottlenecks\n"+
		"2. Top 3 scaling opportunities (traffic, pricing, new markets)\n"+
		"3. Required resources and timeline\n"+
		"4. Recommended immediate action\n"+
		"Output a concrete action plan.", p.Name, rev30)

	if _, err := m.store.CreateTask(ctx, store.Task{
		Title:        fmt.Sprintf("Scale: Analyze scaling opportunities for '%s'", p.Name),
		Project:      p.Name,
		Instructions: instructions,
		Priority:     store.PriorityHigh,
		Kind:         store.KindScalingAnalysis,
	}); err != nil {
		return fmt.Errorf("create scaling task: %w", err)
	}

	m.logActivity(ctx, p.Name, "project_scaled",
		fmt.Sprintf("Revenue $%.2f/30d exceeded threshold $%.2f", rev30, threshold))
	m.logger.Info("scaling project %q ($%.2f/30d)", p.Name, rev30)
	return nil
}

func (m *Manager) hasOpenResearchTask(ctx context.Context, project string) (bool, error) {
	tasks, err := m.store.Tasks(ctx, store.TaskFilter{Project: project})
	if err != nil {
		return false, fmt.Errorf("list tasks for %q: %w", project, err)
	}
	for _, t := range tasks {
		if t.Status != store.TaskPending && t.Status != store.TaskInProgress {
			continue
		}
		title := strings.ToLower(t.Title)
		if strings.Contains(title, "viability") || strings.Contains(title, "research") {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) logActivity(ctx context.Context, project, action, result string) {
	if err := m.store.LogActivity(ctx, store.ActivityEntry{
		Agent:   orchestratorActor,
		Project: project,
		Action:  action,
		Result:  result,
	}); err != nil {
		m.logger.Warn("activity log failed: %v", err)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
