// Package agent implements the worker roles that execute tasks: research,
// code, content, trading and custom agents, plus the matcher that pairs a
// pending task with an idle agent.
package agent

import (
	"context"
	"fmt"

	"agentfarm/internal/config"
	"agentfarm/internal/llm"
	"agentfarm/internal/logging"
	"agentfarm/internal/store"
)

// Result is what one task execution produced. NeedsHuman forces the task
// into the human review queue regardless of how it was created.
type Result struct {
	Text       string
	TokensUsed int
	CostUSD    float64
	ModelUsed  string
	NeedsHuman bool
}

// Agent executes tasks of its specialty.
type Agent interface {
	Name() string
	Type() store.AgentType
	Execute(ctx context.Context, task store.Task) (*Result, error)
}

// Deps wires an agent to the rest of the system.
type Deps struct {
	Store  store.Store
	LLM    llm.Completer
	Config func() config.Runtime
	Logger logging.Logger
}

func (d Deps) runtime() config.Runtime {
	if d.Config != nil {
		return d.Config()
	}
	return config.Defaults()
}

// base carries the state every concrete agent shares.
type base struct {
	deps         Deps
	record       store.Agent
	level        llm.Level
	systemPrompt string
	logger       logging.Logger
}

func newBase(deps Deps, record store.Agent, defaultLevel llm.Level, defaultSystemPrompt string) base {
	level := defaultLevel
	if record.Model != "" && record.Model != "auto" {
		level = llm.ParseLevel(record.Model)
	}
	systemPrompt := record.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return base{
		deps:         deps,
		record:       record,
		level:        level,
		systemPrompt: systemPrompt,
		logger:       logging.OrNop(deps.Logger),
	}
}

func (b *base) Name() string {
	if b.record.Name != "" {
		return b.record.Name
	}
	return string(b.record.Type)
}

func (b *base) Type() store.AgentType { return b.record.Type }

// callLLM routes one completion with the agent's defaults and packages it as
// a Result.
func (b *base) callLLM(ctx context.Context, prompt string, maxTokens int, level llm.Level) (*Result, error) {
	if level == "" {
		level = b.level
	}
	resp, err := b.deps.LLM.Complete(ctx, prompt, llm.Options{
		Level:        level,
		SystemPrompt: b.systemPrompt,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:       resp.Content,
		TokensUsed: resp.TokensUsed,
		CostUSD:    resp.CostUSD,
		ModelUsed:  fmt.Sprintf("%s/%s", resp.Provider, resp.Model),
	}, nil
}

func genericSystemPrompt(agentType store.AgentType) string {
	return fmt.Sprintf("You are an AI agent of type '%s' working in an autonomous agent farm. "+
		"Your goal is to help generate revenue through autonomous work. "+
		"Be concise, practical, and output structured results. "+
		"Always think about ROI and time-to-revenue.", agentType)
}
