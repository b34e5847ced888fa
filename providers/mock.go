package providers

import (
	"context"
	"sync"
)

// MockResult scripts one response from a MockProvider.
type MockResult struct {
	Content string
	Err     error
}

// MockProvider is a scripted Provider for tests. Each call consumes the next
// scripted result; the last result repeats once the script is exhausted.
// Requests are recorded for inspection. Safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	script   []MockResult
	requests []Request
}

// NewMockProvider creates a provider that plays back the given results in
// order.
func NewMockProvider(script ...MockResult) *MockProvider {
	return &MockProvider{script: script}
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		return "", nil
	}
	idx := len(m.requests) - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	res := m.script[idx]
	return res.Content, res.Err
}

// Calls returns how many requests the provider has received.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
