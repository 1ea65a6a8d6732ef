package anima

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/soy"
)

// recallWindow bounds how many recent rows a recall scans.
const recallWindow = 500

// memoryRecord is the persisted form of a memory.
type memoryRecord struct {
	ID         string         `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	AgentID    string         `db:"agent_id" type:"text" constraints:"notnull"`
	Content    string         `db:"content" type:"text" constraints:"notnull"`
	Kind       string         `db:"kind" type:"text" constraints:"notnull"`
	Importance float64        `db:"importance" type:"double precision" constraints:"notnull"`
	Tags       []string       `db:"tags" type:"jsonb" default:"'[]'"`
	Metadata   map[string]any `db:"metadata" type:"jsonb" default:"'{}'"`
	Source     string         `db:"source" type:"text"`
	CreatedAt  time.Time      `db:"created_at" type:"timestamp" constraints:"notnull"`
}

// SQLStore is a Backend over a local Postgres database, for running
// agents without the hosted memory service. Recall scans a recent
// window of the agent's rows and scores them by word overlap with the
// query; the runtime re-ranks on top of that as it does for any
// backend.
type SQLStore struct {
	memories *soy.Soy[memoryRecord]
	db       *sqlx.DB
	agentID  string
}

// NewSQLStore creates a Postgres-backed memory store for one agent.
func NewSQLStore(db *sqlx.DB, agentID string) (*SQLStore, error) {
	if agentID == "" {
		return nil, ErrMissingAgentID
	}

	memories, err := soy.New[memoryRecord](db, "memories", postgres.New())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memories table: %w", err)
	}

	return &SQLStore{
		memories: memories,
		db:       db,
		agentID:  agentID,
	}, nil
}

// Recall returns up to limit memories scored by word overlap with the
// query. With an empty query the most recent memories win.
func (s *SQLStore) Recall(ctx context.Context, query string, limit int, organized bool) (*RecallResult, error) {
	records, err := s.memories.Query().
		Where("agent_id", "=", "agent_id").
		OrderBy("created_at", "desc").
		Limit(recallWindow).
		Exec(ctx, map[string]any{"agent_id": s.agentID})
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	queryWords := wordSet(query)

	type scored struct {
		memory  Memory
		overlap int
		order   int
	}
	candidates := make([]scored, 0, len(records))
	for i, rec := range records {
		overlap := 0
		contentWords := wordSet(rec.Content)
		for w := range queryWords {
			if len(w) > 2 && contentWords[w] {
				overlap++
			}
		}
		candidates = append(candidates, scored{
			memory:  memoryFromRecord(rec),
			overlap: overlap,
			order:   i,
		})
	}

	// Overlap first, recency as tiebreak (records arrive newest first).
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].order < candidates[j].order
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := &RecallResult{
		Memories: make([]Memory, 0, len(candidates)),
		Total:    len(records),
	}
	for _, c := range candidates {
		result.Memories = append(result.Memories, c.memory)
	}

	if organized {
		result.Categories = make(map[string]int)
		for _, rec := range records {
			result.Categories[rec.Kind]++
		}
	}
	return result, nil
}

// Save persists one memory row.
func (s *SQLStore) Save(ctx context.Context, req SaveRequest) (*SavedMemory, error) {
	rec := &memoryRecord{
		AgentID:    s.agentID,
		Content:    req.Text,
		Kind:       string(kindFromMetadata(req.Metadata)),
		Importance: importanceFromMetadata(req.Metadata),
		Tags:       req.Tags,
		Metadata:   req.Metadata,
		Source:     req.Source,
		CreatedAt:  time.Now(),
	}

	inserted, err := s.memories.Insert().Exec(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	return &SavedMemory{
		ID:        inserted.ID,
		Text:      inserted.Content,
		Metadata:  inserted.Metadata,
		CreatedAt: inserted.CreatedAt,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func memoryFromRecord(rec *memoryRecord) Memory {
	return Memory{
		ID:         rec.ID,
		Content:    rec.Content,
		Kind:       MemoryKind(rec.Kind),
		Importance: clamp01(rec.Importance),
		Timestamp:  rec.CreatedAt,
		Tags:       rec.Tags,
		Metadata:   rec.Metadata,
	}
}

func kindFromMetadata(metadata map[string]any) MemoryKind {
	if kind, ok := metadata["kind"].(string); ok && kind != "" {
		return MemoryKind(kind)
	}
	return KindConversation
}

func importanceFromMetadata(metadata map[string]any) float64 {
	if importance, ok := metadata["importance"].(float64); ok {
		return clamp01(importance)
	}
	return 0.5
}

var _ Backend = (*SQLStore)(nil)
