package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"agentfarm/internal/learnings"
	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

const researchSystemPrompt = `You are a business viability analyst for an autonomous AI agent farm.
Your job is to evaluate business ideas and determine if they're worth pursuing.

Focus on:
- Speed to first dollar (days/weeks/months)
- Whether people are already paying for something similar
- Whether an AI agent can execute it without human help
- Low execution cost relative to revenue potential
- Scalability

Always output valid JSON in your responses when asked.
Be realistic and conservative in revenue estimates.
Prioritize quick wins over ambitious long-term projects.`

const viabilityPromptTemplate = `Evaluate this business idea and return ONLY a JSON object:

IDEA: %s
DESCRIPTION: %s
GOAL: %s

Score each criterion from 0-100 and provide a brief rationale:

{
  "time_to_revenue": {
    "score": 0-100,
    "days_estimate": <number>,
    "rationale": "..."
  },
  "market_exists": {
    "score": 0-100,
    "evidence": "...",
    "rationale": "..."
  },
  "execution_cost": {
    "score": 0-100,
    "estimated_cost_usd": <number>,
    "rationale": "..."
  },
  "autonomy": {
    "score": 0-100,
    "human_touch_points": ["..."],
    "rationale": "..."
  },
  "scalability": {
    "score": 0-100,
    "rationale": "..."
  },
  "overall_score": <weighted average>,
  "recommendation": "ACTIVATE" | "REJECT" | "NEEDS_RESEARCH",
  "next_steps": ["step1", "step2", "step3"],
  "monetization_model": "...",
  "competitive_advantage": "..."
}

Weights: time_to_revenue=25%%, market_exists=20%%, execution_cost=20%%, autonomy=20%%, scalability=15%%`

const taskPlanPromptTemplate = `Given this research result for project '%s', create an execution task plan.

RESEARCH SUMMARY:
%s

Create a JSON array of tasks to execute this project. Each task should be doable by an AI agent:

[
  {
    "title": "...",
    "instructions": "Detailed prompt/instructions for the agent executing this task...",
    "priority": "high" | "medium" | "low",
    "agent_type": "code" | "content" | "research" | "trading",
    "requires_human": false
  },
  ...
]

Include 3-7 concrete tasks. Be specific in instructions - they will be passed directly to agents.
Start with the task that generates first revenue fastest.`

const ideasPromptTemplate = `Generate %d profitable micro-SaaS or digital product ideas that AI agents can execute autonomously.

Prioritize:
1. Quick time to first revenue (days/weeks)
2. Proven market (people paying for similar things)
3. Minimal human intervention needed
4. Low running cost

For each idea output JSON:
[
  {
    "name": "Short project name",
    "description": "What it is and how it works",
    "goal": "How it generates revenue",
    "category": "saas|content|service|data|trading",
    "estimated_days_to_revenue": <number>,
    "why_this_will_work": "one sentence connecting to known patterns or market evidence"
  },
  ...
]

Context/constraints: %s`

// ResearchAgent scores ideas, plans activated projects and generates new
// ones.
type ResearchAgent struct {
	base
}

func NewResearch(deps Deps, record store.Agent) *ResearchAgent {
	record.Type = store.TypeResearch
	return &ResearchAgent{base: newBase(deps, record, llm.LevelComplex, researchSystemPrompt)}
}

func (a *ResearchAgent) Execute(ctx context.Context, task store.Task) (*Result, error) {
	switch task.Kind {
	case store.KindViabilityCheck:
		return a.viabilityCheck(ctx, task)
	case store.KindGenerateIdeas:
		return a.generateIdeas(ctx, task)
	default:
		return a.generalResearch(ctx, task)
	}
}

// viabilityAnalysis is the scored result the model returns. Untyped criteria
// stay raw so the full analysis can be echoed back into the task result.
type viabilityAnalysis struct {
	OverallScore   float64 `json:"overall_score"`
	Recommendation string  `json:"recommendation"`

	raw json.RawMessage
}

type plannedTask struct {
	Title         string `json:"title"`
	Instructions  string `json:"instructions"`
	Priority      string `json:"priority"`
	AgentType     string `json:"agent_type"`
	RequiresHuman bool   `json:"requires_human"`
}

func (a *ResearchAgent) viabilityCheck(ctx context.Context, task store.Task) (*Result, error) {
	projectName := task.Project
	if projectName == "" {
		projectName = "Unknown Project"
	}
	description := extractField(task.Instructions, "DESCRIPTION")
	if description == "" {
		description = task.Instructions
	}
	goal := extractField(task.Instructions, "GOAL")
	if goal == "" {
		goal = "Generate revenue"
	}

	prompt := fmt.Sprintf(viabilityPromptTemplate, projectName, description, goal)
	if brief := a.loadBrief(ctx); brief != "" {
		prompt = brief + "\n\n" +
			"Use the above context to calibrate your scores. " +
			"If this idea matches a known failure pattern, score lower. " +
			"If it matches a success pattern, increase time_to_revenue and market_exists scores.\n\n" +
			prompt
	}

	scored, err := a.callLLM(ctx, prompt, 2000, llm.LevelComplex)
	if err != nil {
		return nil, err
	}

	analysis := viabilityAnalysis{Recommendation: "NEEDS_RESEARCH"}
	if doc, perr := llm.ExtractJSON(scored.Text); perr != nil {
		// A garbled analysis scores zero instead of crashing the task.
		a.logger.Warn("viability JSON unparseable: %v", perr)
		analysis.raw = json.RawMessage(`{}`)
	} else {
		if uerr := json.Unmarshal([]byte(doc), &analysis); uerr != nil {
			a.logger.Warn("viability JSON has wrong shape: %v", uerr)
			analysis = viabilityAnalysis{Recommendation: "NEEDS_RESEARCH"}
		}
		analysis.raw = json.RawMessage(doc)
	}

	project := a.findProject(ctx, projectName)
	if project != nil {
		if err := a.deps.Store.UpdateProjectViability(ctx, project.ID, analysis.OverallScore); err != nil {
			a.logger.Warn("could not record viability score for %q: %v", projectName, err)
		}
	}

	threshold := a.deps.runtime().ViabilityThreshold
	var sb strings.Builder
	fmt.Fprintf(&sb, "Viability Score: %g/100\nRecommendation: %s\n\n", analysis.OverallScore, analysis.Recommendation)

	if analysis.Recommendation == "ACTIVATE" && analysis.OverallScore >= threshold {
		a.planExecution(ctx, projectName, analysis.raw, &sb)
		if project != nil {
			if err := a.deps.Store.UpdateProjectStatus(ctx, project.ID, store.ProjectActive, ""); err != nil {
				a.logger.Warn("could not activate %q: %v", projectName, err)
			}
		}
		sb.WriteString("\nProject ACTIVATED.")
	} else {
		if project != nil {
			reason := fmt.Sprintf("Viability score %g/100 below threshold. %s", analysis.OverallScore, analysis.Recommendation)
			if err := a.deps.Store.UpdateProjectStatus(ctx, project.ID, store.ProjectArchived, reason); err != nil {
				a.logger.Warn("could not archive %q: %v", projectName, err)
			}
		}
		sb.WriteString("\nProject ARCHIVED (below viability threshold).")
	}

	fmt.Fprintf(&sb, "\n\nFull Analysis:\n%s", string(analysis.raw))
	scored.Text = sb.String()
	return scored, nil
}

// planExecution asks the model for a task plan and creates the tasks.
func (a *ResearchAgent) planExecution(ctx context.Context, projectName string, analysis json.RawMessage, sb *strings.Builder) {
	summary := string(analysis)
	if len(summary) > 3000 {
		summary = summary[:3000]
	}
	planned, err := a.callLLM(ctx, fmt.Sprintf(taskPlanPromptTemplate, projectName, summary), 2000, llm.LevelComplex)
	if err != nil {
		a.logger.Warn("task plan completion failed: %v", err)
		return
	}

	var plan []plannedTask
	if err := llm.Decode(planned.Text, &plan); err != nil {
		a.logger.Warn("task plan unparseable: %v", err)
		return
	}

	created := 0
	for _, t := range plan {
		title := t.Title
		if title == "" {
			title = "Task"
		}
		_, err := a.deps.Store.CreateTask(ctx, store.Task{
			Title:         title,
			Project:       projectName,
			Status:        store.TaskPending,
			Priority:      parsePriority(t.Priority),
			Kind:          DetectKind(title, t.Instructions),
			Instructions:  t.Instructions,
			RequiresHuman: t.RequiresHuman,
		})
		if err != nil {
			a.logger.Warn("could not create planned task %q: %v", title, err)
			continue
		}
		created++
	}
	if created > 0 {
		fmt.Fprintf(sb, "Created %d execution tasks.\nFirst task: %s\n", created, plan[0].Title)
	}
}

type generatedIdea struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Goal        string `json:"goal"`
	Category    string `json:"category"`
}

func (a *ResearchAgent) generateIdeas(ctx context.Context, task store.Task) (*Result, error) {
	const count = 3
	prompt := fmt.Sprintf(ideasPromptTemplate, count, task.Instructions)
	if strings.Contains(task.Instructions, "WHAT WE KNOW FROM PAST PROJECTS") {
		prompt += "\nCRITICAL: Use the learnings to guide your ideas. Replicate success patterns, avoid failure patterns.\n"
	}

	resp, err := a.callLLM(ctx, prompt, 2000, llm.LevelComplex)
	if err != nil {
		return nil, err
	}

	var ideas []generatedIdea
	if err := llm.Decode(resp.Text, &ideas); err != nil {
		resp.Text = fmt.Sprintf("Failed to parse ideas: %v\nRaw: %s", err, clampText(resp.Text, 500))
		return resp, nil
	}

	var created []string
	for _, idea := range ideas {
		name := idea.Name
		if name == "" {
			name = "New Idea"
		}
		_, err := a.deps.Store.CreateProject(ctx, store.Project{
			Name:        name,
			Status:      store.ProjectIdea,
			Source:      store.SourceGenerated,
			Description: idea.Description,
			Goal:        idea.Goal,
		})
		if err != nil {
			a.logger.Warn("could not create generated idea %q: %v", name, err)
			continue
		}
		created = append(created, name)
	}
	resp.Text = fmt.Sprintf("Generated %d ideas: %s", len(created), strings.Join(created, ", "))
	return resp, nil
}

func (a *ResearchAgent) generalResearch(ctx context.Context, task store.Task) (*Result, error) {
	prompt := task.Instructions
	if prompt == "" {
		prompt = "Perform a business research analysis."
	}
	return a.callLLM(ctx, prompt, 3000, llm.LevelComplex)
}

func (a *ResearchAgent) loadBrief(ctx context.Context) string {
	cfg, err := a.deps.Store.Config(ctx)
	if err != nil {
		return ""
	}
	return cfg[learnings.BriefCacheKey]
}

func (a *ResearchAgent) findProject(ctx context.Context, name string) *store.Project {
	projects, err := a.deps.Store.Projects(ctx, "")
	if err != nil {
		a.logger.Warn("could not list projects: %v", err)
		return nil
	}
	for i := range projects {
		if strings.EqualFold(projects[i].Name, name) {
			return &projects[i]
		}
	}
	return nil
}

// extractField pulls "FIELD: value" out of instruction text.
func extractField(text, field string) string {
	re, err := regexp.Compile(`(?is)` + field + `:\s*(.+?)(?:\n[A-Z_]+:|\z)`)
	if err != nil {
		return ""
	}
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func parsePriority(s string) store.Priority {
	switch store.Priority(strings.ToLower(strings.TrimSpace(s))) {
	case store.PriorityUrgent:
		return store.PriorityUrgent
	case store.PriorityHigh:
		return store.PriorityHigh
	case store.PriorityLow:
		return store.PriorityLow
	default:
		return store.PriorityMedium
	}
}

func clampText(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
