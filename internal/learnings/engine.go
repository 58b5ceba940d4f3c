package learnings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agentfarm/internal/config"
	"agentfarm/internal/llm"
	"agentfarm/internal/logging"
	"agentfarm/internal/store"
)

const learningsKey = "learnings_json"

// BriefCacheKey is the config key holding the rendered intelligence brief.
// Agents read it directly when building calibrated prompts.
const BriefCacheKey = "learnings_brief_cache"

// Outcome classifies how a project ended for learning extraction.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const failurePromptTemplate = `Analyze this FAILED project and return ONLY a JSON object.

Project data:
- Name: %s
- Description: %s
- Category: %s
- Cost incurred: $%.2f
- Revenue generated: $%.2f
- Days active: %d
- Archived reason: %s

Return JSON:
{
  "category": "...",
  "failure_reason": "one sentence",
  "cost_wasted": <number>,
  "warning_signs": ["sign1", "sign2"],
  "lesson": "key lesson in one sentence",
  "avoid_pattern": "short label for pattern to avoid (e.g. 'crypto signals without data')"
}`

const successPromptTemplate = `Analyze this SUCCESSFUL project and return ONLY a JSON object.

Project data:
- Name: %s
- Description: %s
- Category: %s
- Revenue (30d): $%.2f
- Viability score when started: %s

Return JSON:
{
  "category": "...",
  "why_it_worked": "one sentence",
  "success_factors": ["factor1", "factor2"],
  "replicable_pattern": "short label for pattern (e.g. 'landing + stripe quick win')",
  "recommended_niches": ["niche1", "niche2"]
}`

const strategyPromptTemplate = `You are the strategic director of an autonomous AI agent farm whose goal is
to maximise revenue. Review the historical data below and output a strategic brief.

PROJECTS SUMMARY:
%s

LEARNINGS:
%s

Output a plain-text brief (no JSON) covering:
1. Top 3 categories to prioritise NOW (with 1-line rationale each)
2. Top 3 approaches to abandon
3. Recommended viability score threshold (0-100)
4. Idea focus for the next 7 days
5. One contrarian bet worth exploring

Keep it under 600 words.`

// Engine runs the learning cycle against the store and the inference router.
type Engine struct {
	store  store.Store
	llm    llm.Completer
	logger logging.Logger

	// now is overridable in tests.
	now func() time.Time
}

func NewEngine(s store.Store, completer llm.Completer, logger logging.Logger) *Engine {
	return &Engine{
		store:  s,
		llm:    completer,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// ExtractFromProject distills one finished project into the learnings
// document. Idempotent per project id; already analyzed projects are skipped.
// Reports whether a new learning was recorded.
func (e *Engine) ExtractFromProject(ctx context.Context, project store.Project, outcome Outcome) (bool, error) {
	data, err := e.Load(ctx)
	if err != nil {
		return false, err
	}
	if data.analyzed(project.ID) {
		e.logger.Debug("project %q already analyzed, skipping", project.Name)
		return false, nil
	}

	switch outcome {
	case OutcomeFailure:
		learning, err := e.extractFailure(ctx, project)
		if err != nil {
			return false, err
		}
		data.mergeFailure(learning, project)
	default:
		learning, err := e.extractSuccess(ctx, project)
		if err != nil {
			return false, err
		}
		data.mergeSuccess(learning, project)
	}

	data.markAnalyzed(project.ID, e.now())
	if err := e.save(ctx, data); err != nil {
		return false, err
	}
	e.logger.Info("extracted %s learning from %q", outcome, project.Name)
	return true, nil
}

// IntelligenceBrief returns the cached brief, empty when nothing has been
// learned yet.
func (e *Engine) IntelligenceBrief(ctx context.Context) string {
	cfg, err := e.store.Config(ctx)
	if err != nil {
		e.logger.Debug("could not load intelligence brief: %v", err)
		return ""
	}
	return cfg[BriefCacheKey]
}

// GenerateStrategyReview produces the weekly strategic brief and persists it
// under the strategy_brief config key. Empty when no project has been
// analyzed yet.
func (e *Engine) GenerateStrategyReview(ctx context.Context) (string, error) {
	data, err := e.Load(ctx)
	if err != nil {
		return "", err
	}
	if data.Meta.TotalProjectsAnalyzed == 0 {
		e.logger.Debug("no projects analyzed yet, skipping strategy review")
		return "", nil
	}

	var projects []store.Project
	for _, status := range []store.ProjectStatus{store.ProjectArchived, store.ProjectScaling, store.ProjectActive} {
		batch, err := e.store.Projects(ctx, status)
		if err != nil {
			return "", fmt.Errorf("list %s projects: %w", status, err)
		}
		projects = append(projects, batch...)
	}

	prompt := fmt.Sprintf(strategyPromptTemplate,
		clamp(summarizeProjects(projects), 3000),
		clamp(BuildBrief(data), 2000))

	resp, err := e.llm.Complete(ctx, prompt, llm.Options{Level: llm.LevelComplex, MaxTokens: 1000})
	if err != nil {
		return "", fmt.Errorf("strategy review completion: %w", err)
	}
	strategy := strings.TrimSpace(resp.Content)
	if strategy == "" {
		return "", nil
	}
	if err := e.store.SetConfigValue(ctx, config.KeyStrategyBrief, clamp(strategy, maxStrategyLen)); err != nil {
		return "", fmt.Errorf("save strategy brief: %w", err)
	}
	e.logger.Info("strategy review generated and saved")
	return strategy, nil
}

// Load reads the persisted learnings document, starting fresh when absent or
// unreadable.
func (e *Engine) Load(ctx context.Context) (*Data, error) {
	raw, err := store.GetLargeValue(ctx, e.store, learningsKey, "")
	if err != nil {
		return nil, fmt.Errorf("load learnings: %w", err)
	}
	if raw == "" {
		return NewData(), nil
	}
	data := NewData()
	if err := json.Unmarshal([]byte(raw), data); err != nil {
		e.logger.Warn("stored learnings unreadable, starting fresh: %v", err)
		return NewData(), nil
	}
	return data, nil
}

func (e *Engine) save(ctx context.Context, data *Data) error {
	serialized, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize learnings: %w", err)
	}
	if err := store.SetLargeValue(ctx, e.store, learningsKey, string(serialized)); err != nil {
		return fmt.Errorf("persist learnings: %w", err)
	}
	// Rebuild the prompt-injection cache alongside the document.
	if err := e.store.SetConfigValue(ctx, BriefCacheKey, BuildBrief(data)); err != nil {
		return fmt.Errorf("cache brief: %w", err)
	}
	return nil
}

func (e *Engine) extractFailure(ctx context.Context, project store.Project) (failureLearning, error) {
	days := 0
	if !project.CreatedAt.IsZero() && !project.LastActivity.IsZero() {
		if d := int(project.LastActivity.Sub(project.CreatedAt).Hours() / 24); d > 0 {
			days = d
		}
	}
	prompt := fmt.Sprintf(failurePromptTemplate,
		orDefault(project.Name, "Unknown"),
		clamp(project.Description, 500),
		inferCategory(project),
		project.CostTotal,
		project.RevenueTotal,
		days,
		clamp(project.ArchivedReason, 300))

	var learning failureLearning
	if err := e.complete(ctx, prompt, &learning); err != nil {
		return failureLearning{}, err
	}
	return learning, nil
}

func (e *Engine) extractSuccess(ctx context.Context, project store.Project) (successLearning, error) {
	score := "unknown"
	if project.ViabilityScore != nil {
		score = fmt.Sprintf("%.0f", *project.ViabilityScore)
	}
	prompt := fmt.Sprintf(successPromptTemplate,
		orDefault(project.Name, "Unknown"),
		clamp(project.Description, 500),
		inferCategory(project),
		project.Revenue30d,
		score)

	var learning successLearning
	if err := e.complete(ctx, prompt, &learning); err != nil {
		return successLearning{}, err
	}
	return learning, nil
}

func (e *Engine) complete(ctx context.Context, prompt string, v any) error {
	resp, err := e.llm.Complete(ctx, prompt, llm.Options{Level: llm.LevelComplex, MaxTokens: 400})
	if err != nil {
		return fmt.Errorf("learning completion: %w", err)
	}
	if err := llm.Decode(resp.Content, v); err != nil {
		return fmt.Errorf("parse learning: %w", err)
	}
	return nil
}

func summarizeProjects(projects []store.Project) string {
	if len(projects) > 30 {
		projects = projects[:30]
	}
	lines := make([]string, 0, len(projects))
	for _, p := range projects {
		score := "?"
		if p.ViabilityScore != nil {
			score = fmt.Sprintf("%.0f", *p.ViabilityScore)
		}
		lines = append(lines, fmt.Sprintf("- %s [%s] revenue=$%.2f/30d score=%s",
			orDefault(p.Name, "?"), p.Status, p.Revenue30d, score))
	}
	return strings.Join(lines, "\n")
}

func clamp(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
