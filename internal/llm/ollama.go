package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agentfarm/internal/httpclient"
	"agentfarm/internal/logging"
)

// OllamaProvider completes against a local Ollama server. Calls are never
// retried here: a local failure falls through to the next tier instead.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	probe      *http.Client
	logger     logging.Logger
}

// NewOllama creates a provider for the given base URL
// (default http://localhost:11434).
func NewOllama(baseURL string) *OllamaProvider {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL:    base,
		httpClient: httpclient.New(120 * time.Second),
		probe:      httpclient.New(3 * time.Second),
		logger:     logging.NewComponentLogger("ollama"),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// Available reports whether the server answers its tags endpoint.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// LoadedModels lists the model identifiers currently loaded on the server.
func (p *OllamaProvider) LoadedModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Error           string `json:"error"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	start := time.Now()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload, err := json.Marshal(map[string]any{
		"model":   model,
		"prompt":  req.Prompt,
		"system":  req.SystemPrompt,
		"stream":  false,
		"options": map[string]any{"num_predict": maxTokens},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := httpclient.ReadAllWithLimit(resp.Body, 4096)
		return nil, fmt.Errorf("ollama request failed: %s", strings.TrimSpace(string(body)))
	}

	var decoded ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", decoded.Error)
	}

	return &Response{
		Content:    decoded.Response,
		Provider:   p.Name(),
		Model:      model,
		TokensUsed: decoded.EvalCount + decoded.PromptEvalCount,
		CostUSD:    0,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}
