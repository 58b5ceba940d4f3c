package learnings

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

func failureJSON(avoidPattern string) string {
	return fmt.Sprintf(`{
		"category": "trading",
		"failure_reason": "no edge over the market",
		"cost_wasted": 42.5,
		"warning_signs": ["no validation"],
		"lesson": "validate signal quality before building",
		"avoid_pattern": %q
	}`, avoidPattern)
}

const successJSON = `{
	"category": "saas",
	"why_it_worked": "solved a painful niche problem",
	"success_factors": ["fast launch", "clear pricing"],
	"replicable_pattern": "landing + stripe quick win",
	"recommended_niches": ["invoice tooling", "seo audits"]
}`

func testProject(id, name string) store.Project {
	score := 55.0
	return store.Project{
		ID:             id,
		Name:           name,
		Description:    "crypto trading signal service",
		Status:         store.ProjectArchived,
		CostTotal:      42.5,
		Revenue30d:     0,
		ViabilityScore: &score,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastActivity:   time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtractFromProjectIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	mock := llm.NewMock(failureJSON("crypto signals without data"))
	engine := NewEngine(mem, mock, nil)

	project := testProject("p-1", "SignalBot")

	recorded, err := engine.ExtractFromProject(context.Background(), project, OutcomeFailure)
	require.NoError(t, err)
	require.True(t, recorded)

	// Second pass must not consult the model again.
	recorded, err = engine.ExtractFromProject(context.Background(), project, OutcomeFailure)
	require.NoError(t, err)
	require.False(t, recorded)
	require.Len(t, mock.Calls(), 1)

	data, err := engine.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, data.Meta.TotalProjectsAnalyzed)
	require.Len(t, data.FailurePatterns, 1)
	require.Equal(t, "trading", data.FailurePatterns[0].Category)
	require.Equal(t, 42.5, data.FailurePatterns[0].CostWasted)
}

func TestFailurePatternRingKeepsNewest(t *testing.T) {
	data := NewData()
	for i := 0; i < 25; i++ {
		data.mergeFailure(failureLearning{
			Category:      "other",
			FailureReason: fmt.Sprintf("reason %d", i),
			AvoidPattern:  fmt.Sprintf("pattern %d", i),
		}, store.Project{Name: fmt.Sprintf("proj-%d", i)})
	}

	require.Len(t, data.FailurePatterns, 20)
	require.Equal(t, "reason 5", data.FailurePatterns[0].FailureReason)
	require.Equal(t, "reason 24", data.FailurePatterns[19].FailureReason)
}

func TestAvoidListPromotionNeedsRecurrence(t *testing.T) {
	data := NewData()

	data.mergeFailure(failureLearning{AvoidPattern: "Crypto Signals"}, store.Project{Name: "a"})
	require.Empty(t, data.AvoidList)

	// Second occurrence differs only in case and still promotes.
	data.mergeFailure(failureLearning{AvoidPattern: "crypto signals"}, store.Project{Name: "b"})
	require.Equal(t, []string{"crypto signals"}, data.AvoidList)

	// A third occurrence must not duplicate the entry.
	data.mergeFailure(failureLearning{AvoidPattern: "CRYPTO SIGNALS"}, store.Project{Name: "c"})
	require.Len(t, data.AvoidList, 1)
}

func TestCategoryPerformanceIncrementalMean(t *testing.T) {
	data := NewData()
	data.updateCategory("saas", true, 100)
	data.updateCategory("saas", false, 0)
	data.updateCategory("saas", true, 50)

	stats := data.CategoryPerformance["saas"]
	require.Equal(t, 3, stats.Count)
	require.InDelta(t, 50.0, stats.AvgRevenue, 1e-9)
	require.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
}

func TestViabilityCalibrationIsRecencyWeighted(t *testing.T) {
	avg := updateRollingAvg(nil, 80)
	require.Equal(t, 80.0, *avg)

	avg = updateRollingAvg(avg, 40)
	require.Equal(t, 60.0, *avg)

	avg = updateRollingAvg(avg, 100)
	require.Equal(t, 80.0, *avg)
}

func TestBuildBriefLayoutAndBound(t *testing.T) {
	data := NewData()
	success := successLearning{}
	require.NoError(t, llm.Decode(successJSON, &success))
	data.mergeSuccess(success, store.Project{Name: "InvoiceBot", Description: "saas billing tool"})
	data.mergeFailure(failureLearning{
		Category:   "trading",
		Lesson:     "do not trade without backtests",
		CostWasted: 12.3,
	}, store.Project{Name: "SignalBot"})
	data.Meta.TotalProjectsAnalyzed = 2

	brief := BuildBrief(data)
	require.True(t, strings.HasPrefix(brief, "=== WHAT WE KNOW FROM PAST PROJECTS ==="))
	require.True(t, strings.HasSuffix(brief, "=== END OF LEARNINGS ==="))
	require.Contains(t, brief, "(Based on 2 analyzed projects)")
	require.Contains(t, brief, "- [saas] landing + stripe quick win")
	require.Contains(t, brief, "- [trading] do not trade without backtests (wasted $12.30)")
	require.Contains(t, brief, "PROMISING NICHES: invoice tooling, seo audits")
	require.LessOrEqual(t, len(brief), maxBriefLen)
}

func TestBuildBriefEmptyBeforeFirstAnalysis(t *testing.T) {
	require.Empty(t, BuildBrief(NewData()))
}

func TestExtractSuccessUpdatesCalibrationAndBriefCache(t *testing.T) {
	mem := store.NewMemory()
	mock := llm.NewMock(successJSON)
	engine := NewEngine(mem, mock, nil)

	score := 82.0
	project := store.Project{ID: "p-9", Name: "InvoiceBot", Description: "saas billing", ViabilityScore: &score}

	recorded, err := engine.ExtractFromProject(context.Background(), project, OutcomeSuccess)
	require.NoError(t, err)
	require.True(t, recorded)

	data, err := engine.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data.ViabilityInsights.AvgScoreOfSuccesses)
	require.Equal(t, 82.0, *data.ViabilityInsights.AvgScoreOfSuccesses)

	brief := engine.IntelligenceBrief(context.Background())
	require.Contains(t, brief, "WHAT WORKS:")
}

func TestGenerateStrategyReview(t *testing.T) {
	mem := store.NewMemory()
	mock := llm.NewMock(successJSON, "Focus on saas tooling. Abandon crypto signals.")
	engine := NewEngine(mem, mock, nil)

	// No analysis yet, review is skipped quietly.
	strategy, err := engine.GenerateStrategyReview(context.Background())
	require.NoError(t, err)
	require.Empty(t, strategy)
	require.Empty(t, mock.Calls())

	_, err = engine.ExtractFromProject(context.Background(), store.Project{ID: "p-1", Name: "InvoiceBot"}, OutcomeSuccess)
	require.NoError(t, err)

	strategy, err = engine.GenerateStrategyReview(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Focus on saas tooling. Abandon crypto signals.", strategy)

	cfg, err := mem.Config(context.Background())
	require.NoError(t, err)
	require.Equal(t, strategy, cfg["strategy_brief"])
}

func TestInferCategory(t *testing.T) {
	require.Equal(t, "trading", inferCategory(store.Project{Name: "SignalBot", Description: "crypto trading alerts"}))
	require.Equal(t, "saas", inferCategory(store.Project{Name: "SaaS starter"}))
	require.Equal(t, "other", inferCategory(store.Project{Name: "Mystery"}))
}
