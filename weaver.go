package anima

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
)

// Context is the ranked, deduplicated, token-bounded bundle of memories
// plus identity assembled for one turn. It is built fresh per turn; the
// most recent one is cached for introspection, never reused across
// turns without rebuilding.
type Context struct {
	Identity               *Identity
	Memories               []Memory
	RecentMemories         []Memory
	RelevantMemories       []Memory
	PredictedTopics        []string
	TotalMemoriesAvailable int
	SystemPrompt           string
}

// BuildOptions tune one BuildContext call. Zero fields fall back to the
// weaver's configuration.
type BuildOptions struct {
	// MaxMemories overrides the memory cap for this build.
	MaxMemories int

	// MaxTokens overrides the token budget for this build.
	MaxTokens int

	// Refresh bypasses the context cache.
	Refresh bool
}

// Recency bonus tiers for memory scoring.
const (
	recencyBonusHour = 0.2
	recencyBonusDay  = 0.1
	recencyBonusWeek = 0.05

	queryOverlapWeight = 0.1
	tagOverlapWeight   = 0.15

	promptMemoryLimit = 10
	topicLimit        = 5
)

// Weaver fetches candidate memories from the backend, re-ranks them
// client-side, and assembles the system prompt under a token budget.
//
// Ranking is naive word overlap with no normalization or stemming; the
// scoring arithmetic is part of the runtime's observable contract.
type Weaver struct {
	backend     Backend
	identity    *Identity
	tokens      TokenCounter
	maxMemories int
	maxTokens   int
	cacheTTL    time.Duration

	mu         sync.Mutex
	last       *Context
	cacheQuery string
	cacheAt    time.Time
}

// NewWeaver creates a context weaver over the given backend and
// identity.
func NewWeaver(backend Backend, identity *Identity) *Weaver {
	return &Weaver{
		backend:     backend,
		identity:    identity,
		tokens:      HeuristicTokenCounter{},
		maxMemories: DefaultMaxMemories,
		maxTokens:   DefaultMaxContextTokens,
	}
}

// WithTokenCounter sets the token estimator used for trimming.
func (w *Weaver) WithTokenCounter(tc TokenCounter) *Weaver {
	w.tokens = tc
	return w
}

// WithMaxMemories sets the default memory cap per context.
func (w *Weaver) WithMaxMemories(n int) *Weaver {
	w.maxMemories = n
	return w
}

// WithMaxTokens sets the default prompt token budget.
func (w *Weaver) WithMaxTokens(n int) *Weaver {
	w.maxTokens = n
	return w
}

// WithCacheTTL enables serving a cached context for repeated queries
// within the TTL. Zero disables caching.
func (w *Weaver) WithCacheTTL(ttl time.Duration) *Weaver {
	w.cacheTTL = ttl
	return w
}

// SetIdentity rebinds the weaver to a new identity. Subsequent builds
// render the new persona; the cache is invalidated.
func (w *Weaver) SetIdentity(identity *Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.identity = identity
	w.cacheQuery = ""
}

// BuildContext recalls candidates for the query, scores and ranks them,
// assembles the system prompt, and trims it to the token budget.
// Backend failures propagate; there is no local fallback.
func (w *Weaver) BuildContext(ctx context.Context, query string, opts BuildOptions) (*Context, error) {
	start := time.Now()

	maxMemories := opts.MaxMemories
	if maxMemories <= 0 {
		maxMemories = w.maxMemories
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = w.maxTokens
	}

	if cached := w.cachedContext(ctx, query, opts.Refresh); cached != nil {
		return cached, nil
	}

	// The backend does its own relevance search; request twice the cap
	// so client-side ranking has candidates to discard.
	result, err := w.backend.Recall(ctx, query, 2*maxMemories, true)
	if err != nil {
		return nil, fmt.Errorf("context build failed: %w", err)
	}

	ranked := w.rank(result.Memories, query)

	half := (maxMemories + 1) / 2

	recent := make([]Memory, len(ranked))
	copy(recent, ranked)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	recent = truncateMemories(recent, half)

	relevant := truncateMemories(ranked, half)

	merged := dedupeByID(append(append([]Memory{}, recent...), relevant...))
	merged = truncateMemories(merged, maxMemories)

	w.mu.Lock()
	identity := w.identity
	w.mu.Unlock()

	built := &Context{
		Identity:               identity,
		Memories:               merged,
		RecentMemories:         recent,
		RelevantMemories:       relevant,
		PredictedTopics:        predictTopics(result.Categories),
		TotalMemoriesAvailable: result.Total,
	}
	built.SystemPrompt = renderSystemPrompt(built)

	w.trimToTokenLimit(ctx, built, maxTokens)

	w.mu.Lock()
	w.last = built
	w.cacheQuery = query
	w.cacheAt = time.Now()
	w.mu.Unlock()

	capitan.Emit(ctx, ContextBuilt,
		FieldQuery.Field(query),
		FieldMemoryCount.Field(len(built.Memories)),
		FieldTotalMemories.Field(built.TotalMemoriesAvailable),
		FieldTokenEstimate.Field(w.tokens.Count(built.SystemPrompt)),
		FieldDuration.Field(time.Since(start)),
	)

	return built, nil
}

// LastContext returns the most recently built context, or nil before
// the first build. For introspection only.
func (w *Weaver) LastContext() *Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// cachedContext returns the last context when caching is enabled, the
// query matches, and the TTL has not elapsed.
func (w *Weaver) cachedContext(ctx context.Context, query string, refresh bool) *Context {
	if refresh || w.cacheTTL <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil || w.cacheQuery != query || time.Since(w.cacheAt) >= w.cacheTTL {
		return nil
	}

	capitan.Emit(ctx, ContextCacheHit,
		FieldQuery.Field(query),
		FieldMemoryCount.Field(len(w.last.Memories)),
	)
	return w.last
}

// rank scores every candidate and sorts descending by score. The score
// replaces the memory's importance in the returned copies, clamped to
// [0,1].
func (w *Weaver) rank(candidates []Memory, query string) []Memory {
	now := time.Now()
	queryWords := queryWords(query)

	ranked := make([]Memory, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Importance = scoreMemory(ranked[i], queryWords, now)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	return ranked
}

// scoreMemory computes base importance + recency bonus + query-overlap
// bonus + tag-overlap bonus, clamped to 1.0.
func scoreMemory(m Memory, queryWords []string, now time.Time) float64 {
	score := m.Importance

	age := now.Sub(m.Timestamp)
	switch {
	case age < time.Hour:
		score += recencyBonusHour
	case age < 24*time.Hour:
		score += recencyBonusDay
	case age < 7*24*time.Hour:
		score += recencyBonusWeek
	}

	contentWords := wordSet(m.Content)
	overlap := 0
	for _, word := range queryWords {
		if contentWords[word] {
			overlap++
		}
	}
	score += queryOverlapWeight * float64(overlap)

	tagHits := 0
	for _, tag := range m.Tags {
		lowered := strings.ToLower(tag)
		for _, word := range queryWords {
			if lowered == word {
				tagHits++
				break
			}
		}
	}
	score += tagOverlapWeight * float64(tagHits)

	return clamp01(score)
}

// queryWords returns the lowercased query words longer than two
// characters.
func queryWords(query string) []string {
	var words []string
	for _, word := range wordSplitter.Split(strings.ToLower(query), -1) {
		if len(word) > 2 {
			words = append(words, word)
		}
	}
	return words
}

// dedupeByID removes duplicate memory IDs, keeping first occurrence.
func dedupeByID(memories []Memory) []Memory {
	seen := make(map[string]bool, len(memories))
	out := memories[:0]
	for _, m := range memories {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// truncateMemories caps a list at n entries.
func truncateMemories(memories []Memory, n int) []Memory {
	if len(memories) <= n {
		return memories
	}
	return memories[:n]
}

// predictTopics picks up to five category keys, largest count first.
func predictTopics(categories map[string]int) []string {
	if len(categories) == 0 {
		return nil
	}

	keys := make([]string, 0, len(categories))
	for key := range categories {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if categories[keys[i]] != categories[keys[j]] {
			return categories[keys[i]] > categories[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if len(keys) > topicLimit {
		keys = keys[:topicLimit]
	}
	return keys
}

// renderSystemPrompt assembles the fixed-order prompt: identity block,
// memory block, optional predicted-topics line, rules block, separated
// by blank lines.
func renderSystemPrompt(c *Context) string {
	var sections []string

	sections = append(sections, c.Identity.Render())

	if len(c.Memories) > 0 {
		var b strings.Builder
		b.WriteString("Relevant memories:")
		limit := len(c.Memories)
		if limit > promptMemoryLimit {
			limit = promptMemoryLimit
		}
		for i := 0; i < limit; i++ {
			m := c.Memories[i]
			fmt.Fprintf(&b, "\n%d. %s (relevance: %d%%)", i+1, m.Content, int(m.Importance*100+0.5))
		}
		sections = append(sections, b.String())
	}

	if len(c.PredictedTopics) > 0 {
		sections = append(sections, "Predicted relevant topics: "+strings.Join(c.PredictedTopics, ", "))
	}

	if rules := c.Identity.RenderRules(); rules != "" {
		sections = append(sections, rules)
	}

	return strings.Join(sections, "\n\n")
}

// trimToTokenLimit drops memories from the end of the list and
// re-renders until the estimated prompt size fits the budget. It never
// drops below one memory, even if the prompt remains over budget.
func (w *Weaver) trimToTokenLimit(ctx context.Context, c *Context, maxTokens int) {
	dropped := 0
	for w.tokens.Count(c.SystemPrompt) > maxTokens && len(c.Memories) > 1 {
		c.Memories = c.Memories[:len(c.Memories)-1]
		c.SystemPrompt = renderSystemPrompt(c)
		dropped++
	}

	if dropped > 0 {
		capitan.Emit(ctx, ContextTrimmed,
			FieldDroppedCount.Field(dropped),
			FieldMemoryCount.Field(len(c.Memories)),
			FieldTokenEstimate.Field(w.tokens.Count(c.SystemPrompt)),
		)
	}
}
