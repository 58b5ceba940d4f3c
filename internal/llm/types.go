// Package llm implements the multi-provider inference router: local-first
// routing across ordered provider tiers with availability probing, model
// matching, and ordered fallback.
package llm

import (
	"context"
	"errors"
)

// ErrNoProviderAvailable is returned when every tier in the routing table
// failed or was unavailable. It is fatal for the calling task; the router
// itself never retries past it.
var ErrNoProviderAvailable = errors.New(
	"no inference provider available: check the local runtime is up, or set GROQ_API_KEY / ANTHROPIC_API_KEY")

// Level is the abstraction tier a caller requests; each level maps to an
// ordered provider/model routing table.
type Level string

const (
	LevelSimple  Level = "simple"  // small local model: text, formatting, summaries
	LevelMedium  Level = "medium"  // mid local model: simple code, analysis
	LevelComplex Level = "complex" // large local model: reasoning, planning
	LevelCloud   Level = "cloud"   // fast cloud backup
	LevelPremium Level = "premium" // paid frontier model: critical decisions
)

// ParseLevel maps a level name to a Level; unknown names fall back to medium.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelSimple, LevelMedium, LevelComplex, LevelCloud, LevelPremium:
		return Level(s)
	default:
		return LevelMedium
	}
}

// Request carries one completion call to a concrete provider.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// Response is the result of a routed completion.
type Response struct {
	Content    string
	Provider   string
	Model      string
	TokensUsed int
	CostUSD    float64
	LatencyMS  int64
}

// Options steers a routed completion.
type Options struct {
	Level        Level
	SystemPrompt string
	MaxTokens    int
	// ForceProvider bypasses routing and targets one provider tier
	// ("ollama", "groq", "anthropic").
	ForceProvider string
}

// Completer is the contract agents and the learnings engine depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (*Response, error)
}

// provider is one tier the router can call.
type provider interface {
	Name() string
	Available(ctx context.Context) bool
	Complete(ctx context.Context, model string, req Request) (*Response, error)
}

const defaultMaxTokens = 2048
