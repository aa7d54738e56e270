// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gatewarden/gatewarden/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_ScriptReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("responses arrive in script order", func(t *testing.T) {
		m := llm.NewMockProvider(
			llm.MockResponse{Content: "one"},
			llm.MockResponse{Content: "two"},
		)
		for _, want := range []string{"one", "two"} {
			resp, err := m.Complete(ctx, llm.Request{Prompt: want})
			require.NoError(t, err)
			assert.Equal(t, want, resp.Content)
		}
	})

	t.Run("final response repeats", func(t *testing.T) {
		m := llm.NewMockProvider(llm.MockResponse{Content: "last"})
		for range 4 {
			resp, err := m.Complete(ctx, llm.Request{Prompt: "again"})
			require.NoError(t, err)
			assert.Equal(t, "last", resp.Content)
		}
	})

	t.Run("empty script succeeds with empty content", func(t *testing.T) {
		m := llm.NewMockProvider()
		resp, err := m.Complete(ctx, llm.Request{Prompt: "anything"})
		require.NoError(t, err)
		assert.Empty(t, resp.Content)
		assert.Equal(t, "mock", resp.Model)
	})

	t.Run("error entries surface as errors", func(t *testing.T) {
		boom := errors.New("quota exhausted")
		m := llm.NewMockProvider(
			llm.MockResponse{Err: boom},
			llm.MockResponse{Content: "recovered"},
		)

		resp, err := m.Complete(ctx, llm.Request{Prompt: "a"})
		assert.Nil(t, resp)
		require.ErrorIs(t, err, boom)

		resp, err = m.Complete(ctx, llm.Request{Prompt: "b"})
		require.NoError(t, err)
		assert.Equal(t, "recovered", resp.Content)
	})
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	m := llm.NewMockProvider(llm.MockResponse{Content: "ok"})
	ctx := context.Background()

	temp := 0.1
	_, err := m.Complete(ctx, llm.Request{
		Prompt:       "find retry wrappers",
		Model:        "claude-haiku-3-5-20241022",
		MaxTokens:    256,
		Temperature:  &temp,
		SystemPrompt: "respond tersely",
	})
	require.NoError(t, err)
	_, err = m.Complete(ctx, llm.Request{Prompt: "second"})
	require.NoError(t, err)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "find retry wrappers", calls[0].Prompt)
	assert.Equal(t, "claude-haiku-3-5-20241022", calls[0].Model)
	assert.Equal(t, 256, calls[0].MaxTokens)
	assert.Equal(t, "respond tersely", calls[0].SystemPrompt)
	assert.Equal(t, "second", calls[1].Prompt)
	assert.Empty(t, calls[1].Model)
}

func TestMockProvider_CancelledContextLeavesNoRecord(t *testing.T) {
	m := llm.NewMockProvider(llm.MockResponse{Content: "unreached"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := m.Complete(ctx, llm.Request{Prompt: "late"})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Calls())
}

func TestMockProvider_ResetRewindsScript(t *testing.T) {
	m := llm.NewMockProvider(
		llm.MockResponse{Content: "first"},
		llm.MockResponse{Content: "second"},
	)
	ctx := context.Background()

	resp, err := m.Complete(ctx, llm.Request{Prompt: "a"})
	require.NoError(t, err)
	require.Equal(t, "first", resp.Content)
	require.Len(t, m.Calls(), 1)

	m.Reset()
	assert.Empty(t, m.Calls())

	resp, err = m.Complete(ctx, llm.Request{Prompt: "b"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content, "reset must rewind to the start of the script")
}

func TestMockProvider_UsageIsNonZero(t *testing.T) {
	m := llm.NewMockProvider(llm.MockResponse{Content: "some evidence text"})

	resp, err := m.Complete(context.Background(), llm.Request{Prompt: "scan"})
	require.NoError(t, err)
	assert.Positive(t, resp.Usage.InputTokens)
	assert.Positive(t, resp.Usage.OutputTokens)
}

func TestMockProvider_ParallelCalls(t *testing.T) {
	m := llm.NewMockProvider(llm.MockResponse{Content: "shared"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Complete(ctx, llm.Request{Prompt: "p"})
		}()
	}
	wg.Wait()

	assert.Len(t, m.Calls(), 16)
}
