// Package animatest provides test utilities for anima.
package animatest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/anima"
	"github.com/zoobzio/zyn"
)

// MockBackend implements anima.Backend and anima.Registrar fully
// in-memory, for testing sessions without a memory service.
type MockBackend struct {
	mu         sync.RWMutex
	memories   []anima.Memory
	saves      []anima.SaveRequest
	registered []string

	// RecallErr and SaveErr, when set, fail the corresponding calls.
	RecallErr error
	SaveErr   error
}

// NewMockBackend creates an empty in-memory backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Seed adds a memory the backend will return from Recall.
func (m *MockBackend) Seed(content string, kind anima.MemoryKind, importance float64, age time.Duration) anima.Memory {
	memory := anima.Memory{
		ID:         uuid.New().String(),
		Content:    content,
		Kind:       kind,
		Importance: importance,
		Timestamp:  time.Now().Add(-age),
	}

	m.mu.Lock()
	m.memories = append(m.memories, memory)
	m.mu.Unlock()
	return memory
}

// Recall returns the seeded memories, newest-seeded last, up to limit.
func (m *MockBackend) Recall(_ context.Context, _ string, limit int, organized bool) (*anima.RecallResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.RecallErr != nil {
		return nil, m.RecallErr
	}

	memories := make([]anima.Memory, len(m.memories))
	copy(memories, m.memories)
	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}

	result := &anima.RecallResult{
		Memories: memories,
		Total:    len(m.memories),
	}
	if organized {
		result.Categories = make(map[string]int)
		for _, memory := range m.memories {
			result.Categories[string(memory.Kind)]++
		}
	}
	return result, nil
}

// Save records the request and stores it as a recallable memory.
func (m *MockBackend) Save(_ context.Context, req anima.SaveRequest) (*anima.SavedMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return nil, m.SaveErr
	}

	m.saves = append(m.saves, req)
	memory := anima.Memory{
		ID:        uuid.New().String(),
		Content:   req.Text,
		Kind:      anima.KindConversation,
		Timestamp: time.Now(),
		Tags:      req.Tags,
		Metadata:  req.Metadata,
	}
	m.memories = append(m.memories, memory)

	return &anima.SavedMemory{
		ID:        memory.ID,
		Text:      req.Text,
		Metadata:  req.Metadata,
		CreatedAt: memory.Timestamp,
	}, nil
}

// Register records the agent ID.
func (m *MockBackend) Register(_ context.Context, agentID, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, agentID)
	return nil
}

// Saves returns a copy of every recorded save request.
func (m *MockBackend) Saves() []anima.SaveRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]anima.SaveRequest, len(m.saves))
	copy(out, m.saves)
	return out
}

// Registered returns the agent IDs registered so far.
func (m *MockBackend) Registered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.registered))
	copy(out, m.registered)
	return out
}

// MockProvider implements anima.Provider with canned responses,
// repeating the last response when exhausted.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int

	// Err, when set, fails every call.
	Err error
}

// NewMockProvider creates a provider that replies with the given
// responses in order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Call returns the next canned response.
func (p *MockProvider) Call(_ context.Context, _ []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}

	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	content := "ok"
	if idx >= 0 {
		content = p.responses[idx]
	}
	return &zyn.ProviderResponse{Content: content}, nil
}

// Name identifies this provider.
func (p *MockProvider) Name() string {
	return "mock"
}

// Calls reports how many times the provider was called.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var (
	_ anima.Backend   = (*MockBackend)(nil)
	_ anima.Registrar = (*MockBackend)(nil)
	_ anima.Provider  = (*MockProvider)(nil)
)
