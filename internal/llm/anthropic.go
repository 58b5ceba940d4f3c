package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agentfarm/internal/errors"
	"agentfarm/internal/httpclient"
	"agentfarm/internal/logging"
)

const (
	anthropicEndpoint   = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicProvider is the paid last-resort tier. Every call carries a real
// dollar cost, so the router only reaches it after local and free tiers fail.
type AnthropicProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
}

// NewAnthropic creates a provider. An empty API key marks the tier
// unavailable.
func NewAnthropic(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:     strings.TrimSpace(apiKey),
		endpoint:   anthropicEndpoint,
		httpClient: httpclient.New(120 * time.Second),
		logger:     logging.NewComponentLogger("anthropic"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Available(_ context.Context) bool {
	return p.apiKey != ""
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	start := time.Now()
	decoded, err := errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func(ctx context.Context) (*anthropicResponse, error) {
		return p.call(ctx, model, req)
	}, p.logger)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	tokens := decoded.Usage.InputTokens + decoded.Usage.OutputTokens
	return &Response{
		Content:    sb.String(),
		Provider:   p.Name(),
		Model:      model,
		TokensUsed: tokens,
		CostUSD:    anthropicCost(model, tokens),
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

func (p *AnthropicProvider) call(ctx context.Context, model string, req Request) (*anthropicResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, errors.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := httpclient.ReadAllWithLimit(resp.Body, 4096)
		return nil, errors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("anthropic request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Permanent(fmt.Errorf("decode anthropic response: %w", err))
	}
	if decoded.Error != nil {
		return nil, errors.Permanent(fmt.Errorf("anthropic error: %s", decoded.Error.Message))
	}
	return &decoded, nil
}
