package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gatewarden/gatewarden/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMessages starts a fake Messages endpoint that answers every call
// with the given text blocks and echoes the requested model back. The
// returned getter yields the most recently decoded request body.
func stubMessages(t *testing.T, blocks ...string) (*httptest.Server, func() map[string]any) {
	t.Helper()

	var (
		mu   sync.Mutex
		last map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		last = body
		mu.Unlock()

		content := make([]map[string]string, 0, len(blocks))
		for _, b := range blocks {
			content = append(content, map[string]string{"type": "text", "text": b})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_stub",
			"type":        "message",
			"role":        "assistant",
			"model":       body["model"],
			"stop_reason": "end_turn",
			"content":     content,
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 7},
		}))
	}))
	t.Cleanup(srv.Close)

	return srv, func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

// stubProvider points a provider at the fake endpoint with retries off.
func stubProvider(t *testing.T, srv *httptest.Server) *llm.AnthropicProvider {
	t.Helper()
	p, err := llm.NewAnthropicProvider(
		llm.WithAPIKey("stub-key"),
		llm.WithBaseURL(srv.URL),
		llm.WithMaxRetries(0),
	)
	require.NoError(t, err)
	return p
}

func TestNewAnthropicProvider_KeyResolution(t *testing.T) {
	t.Run("explicit key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		p, err := llm.NewAnthropicProvider(llm.WithAPIKey("opt-key"))
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("environment key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		p, err := llm.NewAnthropicProvider()
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("explicit key beats environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		p, err := llm.NewAnthropicProvider(llm.WithAPIKey("opt-key"))
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("no key fails", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		p, err := llm.NewAnthropicProvider()
		assert.Nil(t, p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	})
}

func TestNewAnthropicProvider_Defaults(t *testing.T) {
	p, err := llm.NewAnthropicProvider(llm.WithAPIKey("k"))
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5-20250929", p.Model())
	assert.Equal(t, 3, p.MaxRetries())
}

func TestNewAnthropicProvider_Overrides(t *testing.T) {
	p, err := llm.NewAnthropicProvider(
		llm.WithAPIKey("k"),
		llm.WithModel("claude-haiku-3-5-20241022"),
		llm.WithMaxRetries(6),
	)
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku-3-5-20241022", p.Model())
	assert.Equal(t, 6, p.MaxRetries())
}

func TestComplete_DefaultsOnWire(t *testing.T) {
	srv, lastBody := stubMessages(t, "ok")
	p := stubProvider(t, srv)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	body := lastBody()
	require.NotNil(t, body)
	assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])
	assert.Equal(t, float64(4096), body["max_tokens"])
	_, hasSystem := body["system"]
	assert.False(t, hasSystem, "no system block without a system prompt")
	_, hasTemp := body["temperature"]
	assert.False(t, hasTemp, "temperature stays unset unless requested")
}

func TestComplete_RequestShape(t *testing.T) {
	srv, lastBody := stubMessages(t, "ok")
	p := stubProvider(t, srv)

	temp := 0.2
	_, err := p.Complete(context.Background(), llm.Request{
		Prompt:       "inspect this repository",
		SystemPrompt: "answer with JSON only",
		MaxTokens:    512,
		Temperature:  &temp,
	})
	require.NoError(t, err)

	body := lastBody()
	require.NotNil(t, body)
	assert.Equal(t, float64(512), body["max_tokens"])
	assert.Equal(t, 0.2, body["temperature"])

	system, ok := body["system"].([]any)
	require.True(t, ok, "system must be a block array")
	require.Len(t, system, 1)
	assert.Equal(t, "answer with JSON only", system[0].(map[string]any)["text"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestComplete_ModelOverride(t *testing.T) {
	srv, lastBody := stubMessages(t, "done")
	p := stubProvider(t, srv)

	resp, err := p.Complete(context.Background(), llm.Request{
		Prompt: "hi",
		Model:  "claude-haiku-3-5-20241022",
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku-3-5-20241022", lastBody()["model"])
	assert.Equal(t, "claude-haiku-3-5-20241022", resp.Model)
}

func TestComplete_JoinsTextBlocks(t *testing.T) {
	srv, _ := stubMessages(t, "gate ", "summary")
	p := stubProvider(t, srv)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "gate summary", resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestComplete_NoTextBlocks(t *testing.T) {
	srv, _ := stubMessages(t)
	p := stubProvider(t, srv)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestComplete_APIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	}))
	t.Cleanup(srv.Close)
	p := stubProvider(t, srv)

	resp, err := p.Complete(context.Background(), llm.Request{Prompt: "hi"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: completion failed")
}
