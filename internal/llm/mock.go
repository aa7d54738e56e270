package llm

import (
	"context"
	"sync"
)

// MockResponse scripts one Complete call: Content is returned unless
// Err is set.
type MockResponse struct {
	Content string
	Err     error
}

// MockProvider replays scripted responses for tests. Entries are
// consumed in order and the final one repeats forever; with no script
// at all every call succeeds with empty content. Every request is
// recorded for later assertion.
type MockProvider struct {
	mu     sync.Mutex
	script []MockResponse
	seen   []Request
	pos    int
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider scripts the mock with responses replayed in order.
func NewMockProvider(script ...MockResponse) *MockProvider {
	return &MockProvider{script: script}
}

// Complete records the request and replays the next scripted response.
// A cancelled context wins over the script and leaves no record.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen = append(m.seen, req)

	if len(m.script) == 0 {
		return &Response{Model: "mock"}, nil
	}

	r := m.script[m.pos]
	if m.pos+1 < len(m.script) {
		m.pos++
	}
	if r.Err != nil {
		return nil, r.Err
	}

	return &Response{
		Content: r.Content,
		Model:   "mock",
		// Rough four-bytes-per-token estimate, never zero.
		Usage: Usage{
			InputTokens:  len(req.Prompt)/4 + 1,
			OutputTokens: len(r.Content)/4 + 1,
		},
	}, nil
}

// Calls returns the recorded requests in arrival order.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.seen))
	copy(out, m.seen)
	return out
}

// Reset drops the call history and rewinds the script.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen = nil
	m.pos = 0
}
