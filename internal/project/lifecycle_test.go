package project

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentfarm/internal/config"
	"agentfarm/internal/store"
)

func TestProcessNewIdeasCreatesViabilityTask(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateProject(ctx, store.Project{
		Name:        "InvoiceBot",
		Status:      store.ProjectIdea,
		Description: "Automated invoice generator",
		Goal:        "First paying customer in 30 days",
	})
	require.NoError(t, err)

	m := NewManager(mem, nil, nil)
	created, err := m.ProcessNewIdeas(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	tasks, err := mem.Tasks(ctx, store.TaskFilter{Project: "InvoiceBot"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	require.Equal(t, "Research: Viability check for 'InvoiceBot'", task.Title)
	require.Equal(t, store.KindViabilityCheck, task.Kind)
	require.Equal(t, store.PriorityHigh, task.Priority)
	require.Contains(t, task.Instructions, "DESCRIPTION: Automated invoice generator")
	require.Contains(t, task.Instructions, "GOAL: First paying customer in 30 days")

	projects, err := mem.Projects(ctx, store.ProjectResearch)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	// Second pass finds no idea projects and creates nothing.
	created, err = m.ProcessNewIdeas(ctx)
	require.NoError(t, err)
	require.Zero(t, created)
	tasks, err = mem.Tasks(ctx, store.TaskFilter{Project: "InvoiceBot"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestProcessNewIdeasSkipsWhenResearchTaskOpen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateProject(ctx, store.Project{Name: "Foo", Status: store.ProjectIdea})
	require.NoError(t, err)
	_, err = mem.CreateTask(ctx, store.Task{
		Title:   "Research: Viability check for 'Foo'",
		Project: "Foo",
		Status:  store.TaskInProgress,
	})
	require.NoError(t, err)

	created, err := NewManager(mem, nil, nil).ProcessNewIdeas(ctx)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestEvaluateProjectsScalesAtThreshold(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	id, err := mem.CreateProject(ctx, store.Project{Name: "Earner", Status: store.ProjectActive})
	require.NoError(t, err)
	require.NoError(t, mem.LogRevenue(ctx, store.RevenueEntry{Project: "Earner", Amount: 10}))

	cfg := config.Defaults()
	cfg.ScaleThresholdUSD = 10 // boundary is inclusive

	actions, err := NewManager(mem, nil, nil).EvaluateProjects(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"Earner"}, actions.Scaled)

	projects, err := mem.Projects(ctx, store.ProjectScaling)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, id, projects[0].ID)
	// Ledger reconcile wrote the cached revenue back.
	require.InDelta(t, 10.0, projects[0].Revenue30d, 0.001)

	tasks, err := mem.Tasks(ctx, store.TaskFilter{Project: "Earner"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, store.KindScalingAnalysis, tasks[0].Kind)
	require.Contains(t, tasks[0].Title, "scaling opportunities")
}

func TestEvaluateProjectsArchivesStaleZeroRevenue(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	stale := time.Now().AddDate(0, 0, -22)
	_, err := mem.CreateProject(ctx, store.Project{
		Name:         "Dud",
		Status:       store.ProjectActive,
		CostTotal:    3.5,
		LastActivity: stale,
	})
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.ArchiveDaysNoRev = 21

	actions, err := NewManager(mem, nil, nil).EvaluateProjects(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"Dud"}, actions.Archived)

	archived, err := mem.Projects(ctx, store.ProjectArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Contains(t, archived[0].ArchivedReason, "No revenue in 22 days")
	require.Contains(t, archived[0].ArchivedReason, "$3.50")
}

func TestEvaluateProjectsKeepsEarningStaleProject(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateProject(ctx, store.Project{
		Name:         "SlowBurn",
		Status:       store.ProjectActive,
		LastActivity: time.Now().AddDate(0, 0, -40),
	})
	require.NoError(t, err)
	require.NoError(t, mem.LogRevenue(ctx, store.RevenueEntry{Project: "SlowBurn", Amount: 0.01}))

	actions, err := NewManager(mem, nil, nil).EvaluateProjects(ctx, config.Defaults())
	require.NoError(t, err)
	require.Empty(t, actions.Archived)
	require.Equal(t, 1, actions.Evaluated)
}

func TestEvaluateProjectsNeverArchivesScaling(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateProject(ctx, store.Project{
		Name:         "Winner",
		Status:       store.ProjectScaling,
		LastActivity: time.Now().AddDate(0, 0, -60),
	})
	require.NoError(t, err)

	actions, err := NewManager(mem, nil, nil).EvaluateProjects(ctx, config.Defaults())
	require.NoError(t, err)
	require.Empty(t, actions.Archived)
	require.Empty(t, actions.Scaled)
}

func TestAutoGenerateIdeas(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateProject(ctx, store.Project{Name: "Alpha", Status: store.ProjectActive})
	require.NoError(t, err)
	require.NoError(t, mem.SetConfigValue(ctx, config.KeyStrategyBrief, "Double down on content"))

	cfg := config.Defaults()
	cfg.ParallelProjectsMax = 3

	m := NewManager(mem, nil, nil)
	created, err := m.AutoGenerateIdeas(ctx, cfg)
	require.NoError(t, err)
	require.True(t, created)

	tasks, err := mem.Tasks(ctx, store.TaskFilter{Status: store.TaskPending})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	require.Equal(t, store.KindGenerateIdeas, task.Kind)
	require.Equal(t, store.PriorityLow, task.Priority)
	require.True(t, strings.HasPrefix(task.Instructions, "GENERATE_IDEAS\n"))
	require.Contains(t, task.Instructions, "Current active projects: [Alpha]")
	require.Contains(t, task.Instructions, "STRATEGIC DIRECTION:\nDouble down on content")

	// A pending generation task blocks another one.
	created, err = m.AutoGenerateIdeas(ctx, cfg)
	require.NoError(t, err)
	require.False(t, created)
}

func TestAutoGenerateIdeasRespectsPortfolioCap(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for _, name := range []string{"A", "B"} {
		_, err := mem.CreateProject(ctx, store.Project{Name: name, Status: store.ProjectActive})
		require.NoError(t, err)
	}
	cfg := config.Defaults()
	cfg.ParallelProjectsMax = 2

	created, err := NewManager(mem, nil, nil).AutoGenerateIdeas(ctx, cfg)
	require.NoError(t, err)
	require.False(t, created)
}
