// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package llm_test

import (
	"context"
	"testing"

	"github.com/gatewarden/gatewarden/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeOnce drives a Provider the way collectors do: one prompt in,
// one text reply out, no retry loop of its own.
func completeOnce(ctx context.Context, p llm.Provider, prompt string) (string, error) {
	resp, err := p.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func TestProviderContract(t *testing.T) {
	var p llm.Provider = llm.NewMockProvider(llm.MockResponse{Content: "evidence"})

	out, err := completeOnce(context.Background(), p, "list logging calls")
	require.NoError(t, err)
	assert.Equal(t, "evidence", out)
}

func TestRequestDefaultsAreZero(t *testing.T) {
	// Collectors build requests field by field; anything left unset must
	// read as "use the provider default".
	var req llm.Request
	assert.Empty(t, req.Model)
	assert.Zero(t, req.MaxTokens)
	assert.Nil(t, req.Temperature)
	assert.Empty(t, req.SystemPrompt)
}
