package anima

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/zyn"
)

// mockBackend implements Backend and Registrar for testing without a
// memory service.
type mockBackend struct {
	mu         sync.Mutex
	memories   []Memory
	categories map[string]int
	saves      []SaveRequest
	registered []string

	recallErr   error
	saveErr     error
	registerErr error

	// saveErrCount fails this many saves before succeeding.
	saveErrCount int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		categories: make(map[string]int),
	}
}

func (m *mockBackend) Recall(_ context.Context, _ string, limit int, organized bool) (*RecallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recallErr != nil {
		return nil, m.recallErr
	}

	memories := make([]Memory, len(m.memories))
	copy(memories, m.memories)
	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}

	result := &RecallResult{
		Memories: memories,
		Total:    len(m.memories),
	}
	if organized {
		result.Categories = make(map[string]int, len(m.categories))
		for k, v := range m.categories {
			result.Categories[k] = v
		}
	}
	return result, nil
}

func (m *mockBackend) Save(_ context.Context, req SaveRequest) (*SavedMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErrCount > 0 {
		m.saveErrCount--
		err := m.saveErr
		if m.saveErrCount == 0 {
			m.saveErr = nil
		}
		return nil, err
	}
	if m.saveErr != nil {
		return nil, m.saveErr
	}

	m.saves = append(m.saves, req)
	return &SavedMemory{
		ID:        uuid.New().String(),
		Text:      req.Text,
		Metadata:  req.Metadata,
		CreatedAt: time.Now(),
	}, nil
}

func (m *mockBackend) Register(_ context.Context, agentID, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, agentID)
	return nil
}

func (m *mockBackend) savedRequests() []SaveRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SaveRequest, len(m.saves))
	copy(out, m.saves)
	return out
}

// testMemory builds a memory with sensible defaults for tests.
func testMemory(content string, importance float64, age time.Duration) Memory {
	return Memory{
		ID:         uuid.New().String(),
		Content:    content,
		Kind:       KindConversation,
		Importance: importance,
		Timestamp:  time.Now().Add(-age),
	}
}

// mockProvider returns canned responses in order, repeating the last
// one when exhausted.
type mockProvider struct {
	mu        sync.Mutex
	responses []string
	calls     [][]zyn.Message
	err       error
	usage     zyn.TokenUsage
}

func newMockProvider(responses ...string) *mockProvider {
	return &mockProvider{responses: responses}
}

func (p *mockProvider) Call(_ context.Context, messages []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}

	p.calls = append(p.calls, messages)
	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	content := "ok"
	if idx >= 0 {
		content = p.responses[idx]
	}
	return &zyn.ProviderResponse{
		Content: content,
		Usage:   p.usage,
	}, nil
}

func (p *mockProvider) Name() string {
	return "mock"
}

func (p *mockProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *mockProvider) lastCall() []zyn.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}
