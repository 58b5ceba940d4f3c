package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, loaded []string, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[`))
		for i, m := range loaded {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = w.Write([]byte(`{"name":"` + m + `"}`))
		}
		_, _ = w.Write([]byte(`]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"` + reply + `","eval_count":12,"prompt_eval_count":8}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGroqServer(t *testing.T, status int, body string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const groqOK = `{"choices":[{"message":{"role":"assistant","content":"from groq"}}],"usage":{"total_tokens":20}}`
const anthropicOK = `{"content":[{"type":"text","text":"from anthropic"}],"usage":{"input_tokens":9,"output_tokens":11}}`

func TestCompletePrefersLocalModel(t *testing.T) {
	ollama := newOllamaServer(t, []string{"llama3.1:8b-instruct-q4_K_M"}, "from local")

	client := NewClient(ClientConfig{OllamaURL: ollama.URL, GroqAPIKey: "gk", AnthropicAPIKey: "ak"})

	resp, err := client.Complete(context.Background(), "plan something", Options{Level: LevelComplex})
	require.NoError(t, err)
	require.Equal(t, "ollama", resp.Provider)
	require.Equal(t, "from local", resp.Content)
	require.Equal(t, "llama3.1:8b-instruct-q4_K_M", resp.Model)
	require.Equal(t, 20, resp.TokensUsed)
	require.Zero(t, resp.CostUSD)
}

func TestCompleteFallsThroughToFreeTierFirst(t *testing.T) {
	// Local runtime is down, so routing should land on the free cloud tier
	// without ever touching the paid one.
	var anthropicCalls atomic.Int64
	groq := newGroqServer(t, http.StatusOK, groqOK, nil)
	anthropic := newGroqServer(t, http.StatusOK, anthropicOK, &anthropicCalls)

	client := NewClient(ClientConfig{OllamaURL: "http://127.0.0.1:1", GroqAPIKey: "gk", AnthropicAPIKey: "ak"})
	client.groq.endpoint = groq.URL
	client.anthropic.endpoint = anthropic.URL

	resp, err := client.Complete(context.Background(), "summarize", Options{Level: LevelSimple})
	require.NoError(t, err)
	require.Equal(t, "groq", resp.Provider)
	require.Equal(t, "from groq", resp.Content)
	require.Zero(t, resp.CostUSD)
	require.Zero(t, anthropicCalls.Load())
}

func TestCompleteSkipsLocalWhenModelNotLoaded(t *testing.T) {
	ollama := newOllamaServer(t, []string{"qwen2.5:7b"}, "should not be used")
	groq := newGroqServer(t, http.StatusOK, groqOK, nil)

	client := NewClient(ClientConfig{OllamaURL: ollama.URL, GroqAPIKey: "gk"})
	client.groq.endpoint = groq.URL

	resp, err := client.Complete(context.Background(), "write", Options{Level: LevelSimple})
	require.NoError(t, err)
	require.Equal(t, "groq", resp.Provider)
}

func TestCompletePremiumUsesPaidTier(t *testing.T) {
	anthropic := newGroqServer(t, http.StatusOK, anthropicOK, nil)

	client := NewClient(ClientConfig{OllamaURL: "http://127.0.0.1:1", AnthropicAPIKey: "ak"})
	client.anthropic.endpoint = anthropic.URL

	resp, err := client.Complete(context.Background(), "decide", Options{Level: LevelPremium})
	require.NoError(t, err)
	require.Equal(t, "anthropic", resp.Provider)
	require.Equal(t, "from anthropic", resp.Content)
	require.Equal(t, 20, resp.TokensUsed)
	require.InDelta(t, 0.00002, resp.CostUSD, 1e-9)
}

func TestCompleteNoProviderAvailable(t *testing.T) {
	client := NewClient(ClientConfig{OllamaURL: "http://127.0.0.1:1"})

	_, err := client.Complete(context.Background(), "anything", Options{Level: LevelMedium})
	require.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestCompleteChainErrorStillMatchesSentinel(t *testing.T) {
	// A permanent remote failure with no further tiers surfaces as the
	// no-provider sentinel so callers can treat it as fatal.
	groq := newGroqServer(t, http.StatusBadRequest, `{"error":{"message":"bad request"}}`, nil)

	client := NewClient(ClientConfig{OllamaURL: "http://127.0.0.1:1", GroqAPIKey: "gk"})
	client.groq.endpoint = groq.URL

	_, err := client.Complete(context.Background(), "anything", Options{Level: LevelSimple})
	require.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestCompleteForceProvider(t *testing.T) {
	ollama := newOllamaServer(t, []string{"mistral:7b"}, "local")
	anthropic := newGroqServer(t, http.StatusOK, anthropicOK, nil)

	client := NewClient(ClientConfig{OllamaURL: ollama.URL, AnthropicAPIKey: "ak"})
	client.anthropic.endpoint = anthropic.URL

	resp, err := client.Complete(context.Background(), "decide", Options{Level: LevelPremium, ForceProvider: "anthropic"})
	require.NoError(t, err)
	require.Equal(t, "anthropic", resp.Provider)

	_, err = client.Complete(context.Background(), "decide", Options{ForceProvider: "groq"})
	require.Error(t, err)
}

func TestMatchLoadedModel(t *testing.T) {
	loaded := []string{"qwen2.5:7b", "llama3.2:3b-instruct-fp16", "mistral:7b"}

	require.Equal(t, "llama3.2:3b-instruct-fp16", matchLoadedModel(loaded, "llama3.2:3b"))
	require.Equal(t, "mistral:7b", matchLoadedModel(loaded, "mistral:7b"))
	require.Empty(t, matchLoadedModel(loaded, "llama3.1:8b"))
	require.Empty(t, matchLoadedModel(nil, "llama3.2:3b"))
}

func TestParseLevelFallsBackToMedium(t *testing.T) {
	require.Equal(t, LevelComplex, ParseLevel("complex"))
	require.Equal(t, LevelMedium, ParseLevel("nonsense"))
	require.Equal(t, LevelMedium, ParseLevel(""))
}
