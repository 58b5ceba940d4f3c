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
	"agentfarm/internal/token"
)

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// GroqProvider completes against Groq's OpenAI-compatible chat API.
// Transient failures are retried with backoff before falling through to the
// next tier.
type GroqProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
}

// NewGroq creates a provider. An empty API key marks the tier unavailable.
func NewGroq(apiKey string) *GroqProvider {
	return &GroqProvider{
		apiKey:     strings.TrimSpace(apiKey),
		endpoint:   groqEndpoint,
		httpClient: httpclient.New(60 * time.Second),
		logger:     logging.NewComponentLogger("groq"),
	}
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) Available(_ context.Context) bool {
	return p.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *GroqProvider) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	start := time.Now()
	decoded, err := errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func(ctx context.Context) (*chatResponse, error) {
		return p.call(ctx, model, req)
	}, p.logger)
	if err != nil {
		return nil, err
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices")
	}

	content := decoded.Choices[0].Message.Content
	tokens := decoded.Usage.TotalTokens
	if tokens == 0 {
		tokens = token.Count(req.Prompt) + token.Count(content)
	}
	return &Response{
		Content:    content,
		Provider:   p.Name(),
		Model:      model,
		TokensUsed: tokens,
		CostUSD:    0,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

func (p *GroqProvider) call(ctx context.Context, model string, req Request) (*chatResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload, err := json.Marshal(chatRequest{Model: model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return nil, errors.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := httpclient.ReadAllWithLimit(resp.Body, 4096)
		return nil, errors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("groq request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Permanent(fmt.Errorf("decode groq response: %w", err))
	}
	if decoded.Error != nil {
		return nil, errors.Permanent(fmt.Errorf("groq error: %s", decoded.Error.Message))
	}
	return &decoded, nil
}
