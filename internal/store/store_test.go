package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryTaskCompletionTimestamps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreateTask(ctx, Task{Title: "write landing page", Kind: KindLandingPage})
	require.NoError(t, err)

	require.NoError(t, m.UpdateTask(ctx, id, TaskUpdate{Status: TaskInProgress, Agent: "code-default"}))
	tasks, err := m.Tasks(ctx, TaskFilter{Status: TaskInProgress})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Nil(t, tasks[0].CompletedAt, "completed_at must only be set on done/failed")

	require.NoError(t, m.UpdateTask(ctx, id, TaskUpdate{Status: TaskDone, Result: "shipped"}))
	tasks, err = m.Tasks(ctx, TaskFilter{Status: TaskDone})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].CompletedAt)
}

func TestMemoryAgentOutcomeRollingRate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := m.AddAgent(Agent{Name: "research-default", Type: TypeResearch, Machine: "box"})

	require.NoError(t, m.RecordAgentOutcome(ctx, id, true))
	require.NoError(t, m.RecordAgentOutcome(ctx, id, true))
	require.NoError(t, m.RecordAgentOutcome(ctx, id, false))

	agents, err := m.Agents(ctx, "box")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, 3, agents[0].TasksCompleted)
	require.InDelta(t, 2.0/3.0, agents[0].SuccessRate, 1e-9)
}

func TestMemoryRevenueSince(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	require.NoError(t, m.LogRevenue(ctx, RevenueEntry{Project: "Foo", Amount: 5, Date: now.AddDate(0, 0, -10)}))
	require.NoError(t, m.LogRevenue(ctx, RevenueEntry{Project: "Foo", Amount: 7, Date: now.AddDate(0, 0, -40)}))
	require.NoError(t, m.LogRevenue(ctx, RevenueEntry{Project: "Bar", Amount: 100, Date: now}))

	total, err := m.RevenueSince(ctx, "foo", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, 5.0, total)
}

func TestLargeValueChunkingRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// Spans multiple chunks and does not align with the chunk boundary.
	value := strings.Repeat("x", chunkSize*2+37)
	require.NoError(t, SetLargeValue(ctx, m, "learnings_json", value))

	config, err := m.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, "3", config["learnings_json__chunks"])
	require.Len(t, config["learnings_json"], chunkSize)
	require.Len(t, config["learnings_json__2"], 37)

	got, err := GetLargeValue(ctx, m, "learnings_json", "")
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestLargeValueShrinkRemovesStaleChunks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, SetLargeValue(ctx, m, "learnings_json", strings.Repeat("a", chunkSize*3+5)))
	require.NoError(t, SetLargeValue(ctx, m, "learnings_json", strings.Repeat("b", chunkSize+5)))

	config, err := m.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", config["learnings_json__chunks"])
	require.NotContains(t, config, "learnings_json__2")
	require.NotContains(t, config, "learnings_json__3")

	got, err := GetLargeValue(ctx, m, "learnings_json", "")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("b", chunkSize+5), got)
}

func TestLargeValueEmptyAndPlainFallback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := GetLargeValue(ctx, m, "missing", "fallback")
	require.NoError(t, err)
	require.Equal(t, "fallback", got)

	// A plain value written without chunk metadata still reads back.
	require.NoError(t, m.SetConfigValue(ctx, "plain", "v"))
	got, err = GetLargeValue(ctx, m, "plain", "")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	require.NoError(t, SetLargeValue(ctx, m, "empty", ""))
	got, err = GetLargeValue(ctx, m, "empty", "fallback")
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir() + "/farm.db")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, s.SetConfigValue(ctx, "viability_threshold", "70"))
	config, err := s.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, "70", config["viability_threshold"])

	pid, err := s.CreateProject(ctx, Project{Name: "Foo", Status: ProjectIdea, Source: SourceHuman})
	require.NoError(t, err)
	require.NoError(t, s.UpdateProjectViability(ctx, pid, 72))

	projects, err := s.Projects(ctx, ProjectIdea)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.NotNil(t, projects[0].ViabilityScore)
	require.Equal(t, 72.0, *projects[0].ViabilityScore)

	// Arrival order survives filtering, which the priority sort relies on.
	for _, title := range []string{"a", "b", "c"} {
		_, err := s.CreateTask(ctx, Task{Title: title, Project: "Foo"})
		require.NoError(t, err)
	}
	tasks, err := s.Tasks(ctx, TaskFilter{Project: "foo"})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{tasks[0].Title, tasks[1].Title, tasks[2].Title})

	require.ErrorIs(t, s.UpdateProjectStatus(ctx, "no-such-id", ProjectActive, ""), ErrNotFound)
}
