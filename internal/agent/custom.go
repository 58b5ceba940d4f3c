package agent

import (
	"context"

	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

// CustomAgent runs its configured system prompt against the task
// instructions verbatim. It exists so operators can add specialties without
// a code change.
type CustomAgent struct {
	base
}

func NewCustom(deps Deps, record store.Agent) *CustomAgent {
	record.Type = store.TypeCustom
	return &CustomAgent{base: newBase(deps, record, llm.LevelMedium, genericSystemPrompt(store.TypeCustom))}
}

func (a *CustomAgent) Execute(ctx context.Context, task store.Task) (*Result, error) {
	prompt := task.Instructions
	if prompt == "" {
		prompt = task.Title
	}
	return a.callLLM(ctx, prompt, 3000, "")
}
