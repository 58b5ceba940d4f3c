package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Completer for tests. Responses are returned in
// order; when the script runs out the last entry repeats.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall
	index     int
}

// MockResponse is one scripted completion outcome.
type MockResponse struct {
	Content string
	Err     error
}

// MockCall records the prompt and options of one Complete invocation.
type MockCall struct {
	Prompt  string
	Options Options
}

// NewMock builds a scripted client from content strings.
func NewMock(contents ...string) *MockClient {
	responses := make([]MockResponse, 0, len(contents))
	for _, c := range contents {
		responses = append(responses, MockResponse{Content: c})
	}
	return &MockClient{responses: responses}
}

var _ Completer = (*MockClient)(nil)

// Enqueue appends one scripted outcome.
func (m *MockClient) Enqueue(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

func (m *MockClient) Complete(_ context.Context, prompt string, opts Options) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: opts})
	if len(m.responses) == 0 {
		return &Response{Content: "", Provider: "mock", Model: "mock"}, nil
	}
	idx := m.index
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.index++
	}
	scripted := m.responses[idx]
	if scripted.Err != nil {
		return nil, scripted.Err
	}
	return &Response{
		Content:    scripted.Content,
		Provider:   "mock",
		Model:      "mock",
		TokensUsed: len(scripted.Content) / 4,
	}, nil
}

// Calls returns every recorded invocation.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
