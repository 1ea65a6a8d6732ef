package anima

import (
	"context"
	"time"
)

// MemoryKind classifies what a memory records.
type MemoryKind string

// Memory kinds recognized by the runtime.
const (
	KindConversation MemoryKind = "conversation"
	KindFact         MemoryKind = "fact"
	KindObservation  MemoryKind = "observation"
	KindInsight      MemoryKind = "insight"
	KindReflection   MemoryKind = "reflection"
)

// Memory is a stored fact or observation with an importance score and
// timestamp. Memories are owned by the backend; the runtime holds
// transient copies only for ranking within one context build.
type Memory struct {
	ID         string
	Content    string
	Kind       MemoryKind
	Importance float64 // always clamped to [0,1]
	Timestamp  time.Time
	Tags       []string
	Metadata   map[string]any
}

// RecallResult is what a backend returns for a recall query: candidate
// memories the backend considers relevant, optional category counts,
// and the total number of memories it holds for the agent.
type RecallResult struct {
	Memories   []Memory
	Categories map[string]int
	Total      int
}

// SaveRequest asks a backend to persist one piece of text.
type SaveRequest struct {
	Text     string
	Tags     []string
	Source   string
	Metadata map[string]any
}

// SavedMemory is the backend's record of a persisted save.
type SavedMemory struct {
	ID        string
	Text      string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Backend is the memory service the runtime recalls from and saves to.
// The backend owns retrieval and relevance search; the runtime re-ranks
// candidates client-side. Implementations must be safe for concurrent
// use.
type Backend interface {
	// Recall returns up to limit candidate memories for the query. When
	// organized is true the result includes category counts.
	Recall(ctx context.Context, query string, limit int, organized bool) (*RecallResult, error)

	// Save persists one piece of text with optional tags and metadata.
	Save(ctx context.Context, req SaveRequest) (*SavedMemory, error)
}

// Registrar is an optional backend capability: registering an agent's
// identity with the service. Sessions probe for it at startup and treat
// registration failures as best-effort.
type Registrar interface {
	Register(ctx context.Context, agentID, name, purpose string) error
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
