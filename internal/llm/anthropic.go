package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Defaults for the Anthropic provider. Requests override the model per
// call; everything else is fixed at construction.
const (
	defaultModel    = "claude-sonnet-4-5-20250929"
	defaultTokenCap = 4096
	defaultRetries  = 3
)

// AnthropicProvider serves completions through the official Anthropic
// SDK. The SDK retries 429s and 5xx responses internally with backoff,
// so callers see only the final outcome.
type AnthropicProvider struct {
	client  anthropic.Client
	model   string
	retries int
}

var _ Provider = (*AnthropicProvider)(nil)

// anthropicSettings collects construction options before the SDK
// client exists.
type anthropicSettings struct {
	key     string
	baseURL string
	model   string
	retries int
}

// AnthropicOption adjusts provider construction.
type AnthropicOption func(*anthropicSettings)

// WithAPIKey supplies the key directly instead of reading
// ANTHROPIC_API_KEY from the environment.
func WithAPIKey(key string) AnthropicOption {
	return func(s *anthropicSettings) { s.key = key }
}

// WithModel changes the default model for requests that do not name one.
func WithModel(model string) AnthropicOption {
	return func(s *anthropicSettings) { s.model = model }
}

// WithMaxRetries caps the SDK's automatic retries. Zero disables them.
func WithMaxRetries(n int) AnthropicOption {
	return func(s *anthropicSettings) { s.retries = n }
}

// WithBaseURL redirects requests to an alternate endpoint, such as a
// proxy or a local stub.
func WithBaseURL(url string) AnthropicOption {
	return func(s *anthropicSettings) { s.baseURL = url }
}

// NewAnthropicProvider builds a provider from options plus the
// environment. A key must come from WithAPIKey or ANTHROPIC_API_KEY;
// without one the client cannot authenticate and construction fails.
func NewAnthropicProvider(opts ...AnthropicOption) (*AnthropicProvider, error) {
	s := anthropicSettings{
		model:   defaultModel,
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.key == "" {
		s.key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if s.key == "" {
		return nil, errors.New("llm: ANTHROPIC_API_KEY not set and no API key provided")
	}

	ropts := []option.RequestOption{
		option.WithAPIKey(s.key),
		option.WithMaxRetries(s.retries),
	}
	if s.baseURL != "" {
		ropts = append(ropts, option.WithBaseURL(s.baseURL))
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(ropts...),
		model:   s.model,
		retries: s.retries,
	}, nil
}

// Complete runs one message exchange and flattens the reply's text
// blocks into a single string. Non-text blocks are dropped.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return &Response{
		Content: text.String(),
		Model:   string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// params maps a Request onto the Messages API, filling provider
// defaults for unset fields.
func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	tokens := int64(defaultTokenCap)
	if req.MaxTokens > 0 {
		tokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: tokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

// Model reports the provider's default model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// MaxRetries reports the configured retry cap.
func (p *AnthropicProvider) MaxRetries() int {
	return p.retries
}
