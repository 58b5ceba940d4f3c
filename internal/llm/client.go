package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"agentfarm/internal/logging"
	"agentfarm/internal/telemetry"
)

// probeTTL bounds how long availability probes are trusted. Providers come
// and go mid-run (local runtime restarts, keys rotated in), so probes are
// re-checked once the cache entry ages out.
const probeTTL = 30 * time.Second

type probeResult struct {
	available bool
	models    []string
}

// ClientConfig configures the router and its provider tiers.
type ClientConfig struct {
	OllamaURL       string
	GroqAPIKey      string
	AnthropicAPIKey string
	Logger          logging.Logger
}

// Client routes completions across provider tiers: local runtime first, then
// the free cloud tier, then the paid tier. A tier failure falls through to
// the next tier; only when the whole chain is exhausted does the caller see
// an error.
type Client struct {
	ollama    *OllamaProvider
	groq      *GroqProvider
	anthropic *AnthropicProvider
	probes    *expirable.LRU[string, probeResult]
	logger    logging.Logger
}

// NewClient builds a router from the given provider credentials. Providers
// with no credentials configured simply never become available.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		ollama:    NewOllama(cfg.OllamaURL),
		groq:      NewGroq(cfg.GroqAPIKey),
		anthropic: NewAnthropic(cfg.AnthropicAPIKey),
		probes:    expirable.NewLRU[string, probeResult](8, nil, probeTTL),
		logger:    logging.OrNop(cfg.Logger),
	}
}

var _ Completer = (*Client)(nil)

// Complete routes one completion through the tier chain for the requested
// level.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (*Response, error) {
	level := opts.Level
	if level == "" {
		level = LevelMedium
	}
	r, ok := routingTable[level]
	if !ok {
		r = routingTable[LevelMedium]
	}
	req := Request{Prompt: prompt, SystemPrompt: opts.SystemPrompt, MaxTokens: opts.MaxTokens}

	if opts.ForceProvider != "" {
		return c.completeForced(ctx, opts.ForceProvider, r, req)
	}

	var lastErr error

	if r.Ollama != "" {
		if probe := c.probeOllama(ctx); probe.available {
			if model := matchLoadedModel(probe.models, r.Ollama); model != "" {
				resp, err := c.attempt(ctx, c.ollama, model, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
			} else {
				c.logger.Debug("no loaded local model matches %q, skipping local tier", r.Ollama)
			}
		}
	}

	if r.Groq != "" && c.groq.Available(ctx) {
		resp, err := c.attempt(ctx, c.groq, r.Groq, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	if r.Anthropic != "" && c.anthropic.Available(ctx) {
		resp, err := c.attempt(ctx, c.anthropic, r.Anthropic, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last failure: %v", ErrNoProviderAvailable, lastErr)
	}
	return nil, ErrNoProviderAvailable
}

func (c *Client) completeForced(ctx context.Context, name string, r route, req Request) (*Response, error) {
	var p provider
	var model string
	switch name {
	case "ollama":
		p, model = c.ollama, r.Ollama
		if probe := c.probeOllama(ctx); probe.available {
			if matched := matchLoadedModel(probe.models, model); matched != "" {
				model = matched
			}
		}
	case "groq":
		p, model = c.groq, r.Groq
	case "anthropic":
		p, model = c.anthropic, r.Anthropic
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if model == "" {
		return nil, fmt.Errorf("provider %q has no model configured for this level", name)
	}
	if !p.Available(ctx) {
		return nil, fmt.Errorf("provider %q is not available: %w", name, ErrNoProviderAvailable)
	}
	return c.attempt(ctx, p, model, req)
}

func (c *Client) attempt(ctx context.Context, p provider, model string, req Request) (*Response, error) {
	resp, err := p.Complete(ctx, model, req)
	if err != nil {
		telemetry.LLMRequests.WithLabelValues(p.Name(), "error").Inc()
		c.logger.Warn("provider %s failed for model %s: %v", p.Name(), model, err)
		return nil, err
	}
	telemetry.LLMRequests.WithLabelValues(p.Name(), "success").Inc()
	telemetry.LLMTokensUsed.Add(float64(resp.TokensUsed))
	if resp.CostUSD > 0 {
		telemetry.LLMCostUSD.Add(resp.CostUSD)
	}
	c.logger.Debug("%s/%s completed in %dms, %d tokens", resp.Provider, resp.Model, resp.LatencyMS, resp.TokensUsed)
	return resp, nil
}

// probeOllama checks local runtime availability and loaded models, cached
// for probeTTL so a busy dispatch loop does not hammer the tags endpoint.
func (c *Client) probeOllama(ctx context.Context) probeResult {
	if cached, ok := c.probes.Get("ollama"); ok {
		return cached
	}
	result := probeResult{}
	if c.ollama.Available(ctx) {
		models, err := c.ollama.LoadedModels(ctx)
		if err == nil {
			result = probeResult{available: true, models: models}
		} else {
			c.logger.Warn("local runtime answered probe but listing models failed: %v", err)
		}
	}
	c.probes.Add("ollama", result)
	return result
}

// LocalModels lists the models loaded on the local runtime, or nil when it
// is down. Used by the machine heartbeat.
func (c *Client) LocalModels(ctx context.Context) []string {
	probe := c.probeOllama(ctx)
	if !probe.available {
		return nil
	}
	return probe.models
}

// ProviderStatus reports one tier's availability for the status command.
type ProviderStatus struct {
	Name      string
	Available bool
	Models    []string
}

// Status probes every tier.
func (c *Client) Status(ctx context.Context) []ProviderStatus {
	probe := c.probeOllama(ctx)
	return []ProviderStatus{
		{Name: c.ollama.Name(), Available: probe.available, Models: probe.models},
		{Name: c.groq.Name(), Available: c.groq.Available(ctx)},
		{Name: c.anthropic.Name(), Available: c.anthropic.Available(ctx)},
	}
}
