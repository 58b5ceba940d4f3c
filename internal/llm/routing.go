package llm

import "strings"

// route lists the model per provider tier for one level, in fallback order:
// local first, then the free cloud tier, then the paid tier. An empty model
// means the tier is not configured for that level.
type route struct {
	Ollama    string
	Groq      string
	Anthropic string
}

// routingTable maps each level to its provider/model pairs.
var routingTable = map[Level]route{
	LevelSimple:  {Ollama: "llama3.2:3b", Groq: "llama-3.1-8b-instant"},
	LevelMedium:  {Ollama: "mistral:7b", Groq: "mixtral-8x7b-32768"},
	LevelComplex: {Ollama: "llama3.1:8b", Groq: "llama-3.3-70b-versatile"},
	LevelCloud:   {Groq: "llama-3.3-70b-versatile"},
	LevelPremium: {Anthropic: "claude-haiku-4-5-20251001"},
}

// costPer1K is the approximate USD cost per 1K tokens by provider rate key.
// Local and free-tier providers cost nothing.
var costPer1K = map[string]float64{
	"ollama":        0,
	"groq":          0,
	"claude-haiku":  0.001,
	"claude-sonnet": 0.015,
}

// anthropicCost estimates the USD cost of an Anthropic call from total tokens.
func anthropicCost(model string, tokens int) float64 {
	key := "claude-sonnet"
	if strings.Contains(model, "haiku") {
		key = "claude-haiku"
	}
	return float64(tokens) / 1000 * costPer1K[key]
}

// baseModelName strips the tag from an identifier like "llama3.2:3b".
func baseModelName(model string) string {
	if idx := strings.Index(model, ":"); idx >= 0 {
		return model[:idx]
	}
	return model
}

// matchLoadedModel returns the first loaded model whose identifier prefix-
// matches the routed model's base name, or "" when none is loaded. Matching
// against actually loaded models avoids silently routing to a model the
// runtime would reject.
func matchLoadedModel(loaded []string, routed string) string {
	base := baseModelName(routed)
	for _, m := range loaded {
		if strings.HasPrefix(m, base) {
			return m
		}
	}
	return ""
}
