package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

func TestDetectKind(t *testing.T) {
	cases := []struct {
		title        string
		instructions string
		want         store.TaskKind
	}{
		{"Research: Viability check for 'X'", "VIABILITY_CHECK\nDESCRIPTION: tool", store.KindViabilityCheck},
		{"Generate ideas", "GENERATE_IDEAS using learnings", store.KindGenerateIdeas},
		{"Scale analysis", "SCALING_ANALYSIS for project", store.KindScalingAnalysis},
		{"Build API", "CREATE_API for invoice tool", store.KindCreateAPI},
		{"Write landing", "CREATE_LANDING for product", store.KindLandingPage},
		{"Blog", "SEO_ARTICLE about budgeting apps", store.KindSEOArticle},
		{"Signals", "ANALYZE_CRYPTO for BTC", store.KindCryptoAnalysis},
		{"Market deep dive", "RESEARCH the niche", store.KindResearch},
		{"Do a thing", "no markers here", store.KindGeneral},
	}
	for _, c := range cases {
		require.Equal(t, c.want, DetectKind(c.title, c.instructions), "title=%s", c.title)
	}
}

func TestPreferredType(t *testing.T) {
	require.Equal(t, store.TypeResearch, preferredType(store.Task{Kind: store.KindViabilityCheck}))
	require.Equal(t, store.TypeCode, preferredType(store.Task{Kind: store.KindDeploy}))
	require.Equal(t, store.TypeTrading, preferredType(store.Task{Kind: store.KindBacktest}))
	// No kind: keyword fallback, then research by default.
	require.Equal(t, store.TypeContent, preferredType(store.Task{Kind: store.KindGeneral, Title: "Draft BLOG outline"}))
	require.Equal(t, store.TypeResearch, preferredType(store.Task{Kind: store.KindGeneral, Title: "mystery"}))
}

func TestForTaskMatching(t *testing.T) {
	deps := Deps{Store: store.NewMemory(), LLM: llm.NewMock("ok")}
	roster := []store.Agent{
		{ID: "a1", Name: "scout", Type: store.TypeResearch, Status: store.AgentIdle},
		{ID: "a2", Name: "builder", Type: store.TypeCode, Status: store.AgentIdle},
		{ID: "a3", Name: "trader", Type: store.TypeTrading, Status: store.AgentWorking},
	}

	// Explicit assignment wins when the agent is free.
	picked := ForTask(deps, store.Task{Agent: "builder", Kind: store.KindResearch}, roster)
	require.NotNil(t, picked)
	require.Equal(t, "builder", picked.Name())

	// A busy explicit assignment falls back to type matching.
	picked = ForTask(deps, store.Task{Agent: "trader", Kind: store.KindWriteCode}, roster)
	require.NotNil(t, picked)
	require.Equal(t, "builder", picked.Name())

	// Type match.
	picked = ForTask(deps, store.Task{Kind: store.KindViabilityCheck}, roster)
	require.NotNil(t, picked)
	require.Equal(t, "scout", picked.Name())

	// No idle agent of the wanted type: any idle one serves.
	picked = ForTask(deps, store.Task{Kind: store.KindBacktest}, roster)
	require.NotNil(t, picked)
	require.Equal(t, "scout", picked.Name())

	// Nobody idle.
	busy := []store.Agent{{ID: "a3", Name: "trader", Type: store.TypeTrading, Status: store.AgentWorking}}
	require.Nil(t, ForTask(deps, store.Task{Kind: store.KindBacktest}, busy))
}

func TestRunnerCompletesTask(t *testing.T) {
	mem := store.NewMemory()
	agentID := mem.AddAgent(store.Agent{Name: "writer", Type: store.TypeContent, Status: store.AgentIdle})
	deps := Deps{Store: mem, LLM: llm.NewMock("the article text")}

	taskID, err := mem.CreateTask(context.Background(), store.Task{
		Title:        "Write article",
		Project:      "InvoiceBot",
		Status:       store.TaskPending,
		Kind:         store.KindSEOArticle,
		Instructions: "SEO_ARTICLE about invoicing",
	})
	require.NoError(t, err)

	tasks, err := mem.Tasks(context.Background(), store.TaskFilter{})
	require.NoError(t, err)
	worker := New(deps, store.Agent{ID: agentID, Name: "writer", Type: store.TypeContent})

	require.NoError(t, NewRunner(deps).Run(context.Background(), worker, tasks[0], agentID))

	tasks, err = mem.Tasks(context.Background(), store.TaskFilter{Status: store.TaskDone})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, taskID, tasks[0].ID)
	require.Equal(t, "the article text", tasks[0].Result)
	require.Equal(t, "writer", tasks[0].Agent)
	require.NotNil(t, tasks[0].CompletedAt)

	agents, err := mem.Agents(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, store.AgentIdle, agents[0].Status)
	require.Equal(t, 1, agents[0].TasksCompleted)
	require.Equal(t, 1.0, agents[0].SuccessRate)

	acts := mem.Activities()
	require.Len(t, acts, 1)
	require.Equal(t, "task_completed", acts[0].Action)
}

func TestRunnerRecordsFailure(t *testing.T) {
	mem := store.NewMemory()
	agentID := mem.AddAgent(store.Agent{Name: "scout", Type: store.TypeResearch, Status: store.AgentIdle})

	mock := llm.NewMock()
	mock.Enqueue(llm.MockResponse{Err: llm.ErrNoProviderAvailable})
	deps := Deps{Store: mem, LLM: mock}

	_, err := mem.CreateTask(context.Background(), store.Task{
		Title: "General research", Status: store.TaskPending, Kind: store.KindGeneral, Instructions: "look into x",
	})
	require.NoError(t, err)
	tasks, _ := mem.Tasks(context.Background(), store.TaskFilter{})
	worker := New(deps, store.Agent{ID: agentID, Name: "scout", Type: store.TypeResearch})

	require.NoError(t, NewRunner(deps).Run(context.Background(), worker, tasks[0], agentID))

	tasks, err = mem.Tasks(context.Background(), store.TaskFilter{Status: store.TaskFailed})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Contains(t, tasks[0].Result, "Error:")

	agents, _ := mem.Agents(context.Background(), "")
	require.Equal(t, store.AgentError, agents[0].Status)
	require.Equal(t, 0.0, agents[0].SuccessRate)
}

func TestTradingResultsAlwaysNeedHumanReview(t *testing.T) {
	mem := store.NewMemory()
	agentID := mem.AddAgent(store.Agent{Name: "trader", Type: store.TypeTrading, Status: store.AgentIdle})
	deps := Deps{Store: mem, LLM: llm.NewMock("BTC looks rangebound.")}

	_, err := mem.CreateTask(context.Background(), store.Task{
		Title: "Strategy eval", Status: store.TaskPending, Kind: store.KindBacktest, Instructions: "BACKTEST my RSI strategy",
	})
	require.NoError(t, err)
	tasks, _ := mem.Tasks(context.Background(), store.TaskFilter{})
	worker := New(deps, store.Agent{ID: agentID, Name: "trader", Type: store.TypeTrading})

	require.NoError(t, NewRunner(deps).Run(context.Background(), worker, tasks[0], agentID))

	tasks, err = mem.Tasks(context.Background(), store.TaskFilter{Status: store.TaskNeedsHuman})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Contains(t, tasks[0].Result, "HUMAN REVIEW REQUIRED")
}

func TestExtractField(t *testing.T) {
	text := "VIABILITY_CHECK\nDESCRIPTION: An invoice tool\nfor freelancers\nGOAL: 100 USD MRR"
	require.Equal(t, "An invoice tool\nfor freelancers", extractField(text, "DESCRIPTION"))
	require.Equal(t, "100 USD MRR", extractField(text, "GOAL"))
	require.Empty(t, extractField(text, "BUDGET"))
}

func TestCodeAgentSavesAnnotatedFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTFARM_PROJECTS_DIR", dir)

	output := "Here you go:\n```python\n# filename: main.py\nprint('hi')\n```\n" +
		"```text\n# filename: ../escape.txt\nnope\n```"
	deps := Deps{Store: store.NewMemory(), LLM: llm.NewMock(output)}
	worker := NewCode(deps, store.Agent{Name: "builder"})

	resp, err := worker.Execute(context.Background(), store.Task{
		Project: "Invoice Bot", Kind: store.KindWriteCode, Instructions: "WRITE_CODE a greeter",
	})
	require.NoError(t, err)
	require.Contains(t, resp.Text, "Saved 1 files")

	saved, err := os.ReadFile(filepath.Join(dir, "invoice_bot", "main.py"))
	require.NoError(t, err)
	require.Equal(t, "print('hi')\n", string(saved))

	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestCodeAgentDeployWithoutTarget(t *testing.T) {
	t.Setenv("DEPLOY_HOST", "")
	deps := Deps{Store: store.NewMemory(), LLM: llm.NewMock("unused")}
	worker := NewCode(deps, store.Agent{Name: "builder"})

	resp, err := worker.Execute(context.Background(), store.Task{
		Project: "Invoice Bot", Kind: store.KindDeploy,
		Instructions: "DEPLOY\nDOMAIN: invoicebot.example.com",
	})
	require.NoError(t, err)
	require.True(t, resp.NeedsHuman)
	require.Contains(t, resp.Text, "not configured")
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - name: scout
    type: research
  - name: quant
    type: trading
    model: premium
    system_prompt: "You analyze markets."
`), 0o644))

	roster, err := LoadRoster(path, "worker-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, store.TypeResearch, roster[0].Type)
	require.Equal(t, "auto", roster[0].Model)
	require.Equal(t, "worker-1", roster[0].Machine)
	require.Equal(t, "premium", roster[1].Model)
	require.Equal(t, "You analyze markets.", roster[1].SystemPrompt)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"), "worker-1")
	require.Error(t, err)
}
