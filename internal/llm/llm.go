// Package llm abstracts the completion API used by gatewarden's
// LLM-backed collectors. Collectors depend only on the Provider
// interface; the Anthropic implementation and the test mock live side
// by side so a scan can run against either.
package llm

import "context"

// Provider is a synchronous completion client. Implementations honor
// context cancellation and return either a response or an error, never
// both.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request carries one prompt and its generation parameters. Zero
// values defer to the provider's defaults.
type Request struct {
	// Prompt is the user-turn text.
	Prompt string

	// Model selects a specific model; empty uses the provider default.
	Model string

	// MaxTokens caps the completion length; zero uses the provider default.
	MaxTokens int

	// Temperature adjusts sampling; nil leaves it at the provider default.
	Temperature *float64

	// SystemPrompt sets the system turn when non-empty.
	SystemPrompt string
}

// Response is the completed turn.
type Response struct {
	// Content is the concatenated text of the reply.
	Content string

	// Model names the model that produced the reply, which may differ
	// from the requested one if the provider remapped it.
	Model string

	// Usage is the token accounting reported by the provider.
	Usage Usage
}

// Usage counts tokens consumed by a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
