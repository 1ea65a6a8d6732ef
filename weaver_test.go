package anima

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestScoreMemoryRecencyTiers(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"under an hour", 30 * time.Minute, 0.5 + recencyBonusHour},
		{"under a day", 5 * time.Hour, 0.5 + recencyBonusDay},
		{"under a week", 3 * 24 * time.Hour, 0.5 + recencyBonusWeek},
		{"older than a week", 10 * 24 * time.Hour, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMemory("unrelated content", 0.5, tc.age)
			got := scoreMemory(m, nil, now)
			if got != tc.want {
				t.Errorf("score = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreMemoryOverlapBonuses(t *testing.T) {
	now := time.Now()
	words := queryWords("What color theme?")

	m := testMemory("the user prefers a dark color scheme", 0.3, 10*24*time.Hour)
	score := scoreMemory(m, words, now)
	if score != 0.3+queryOverlapWeight {
		t.Errorf("expected single word overlap bonus, got %v", score)
	}

	m.Tags = []string{"color", "theme"}
	score = scoreMemory(m, words, now)
	want := 0.3 + queryOverlapWeight + 2*tagOverlapWeight
	if score != want {
		t.Errorf("expected tag bonuses, got %v want %v", score, want)
	}
}

func TestScoreMemoryClampedToOne(t *testing.T) {
	m := testMemory("color color", 0.95, time.Minute)
	m.Tags = []string{"color"}
	if got := scoreMemory(m, queryWords("color"), time.Now()); got != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", got)
	}
}

func TestRankPrefersRecentRelevantOverImportant(t *testing.T) {
	backend := newMockBackend()

	recent := testMemory("the user's favorite color is blue", 0.5, 30*time.Minute)
	recent.Tags = []string{"color"}
	old := testMemory("an unrelated architectural decision", 0.9, 10*24*time.Hour)
	backend.memories = []Memory{old, recent}

	weaver := NewWeaver(backend, NewIdentity("Nova", "assist"))
	built, err := weaver.BuildContext(context.Background(), "What color?", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(built.RelevantMemories) == 0 {
		t.Fatal("expected relevant memories")
	}
	if built.RelevantMemories[0].ID != recent.ID {
		t.Error("expected the recent, query-matching memory ranked first")
	}
}

func TestBuildContextCapsMemories(t *testing.T) {
	backend := newMockBackend()
	for i := 0; i < 30; i++ {
		backend.memories = append(backend.memories, testMemory("note about project work", 0.5, time.Hour))
	}

	weaver := NewWeaver(backend, NewIdentity("Nova", "assist")).WithMaxMemories(4)
	built, err := weaver.BuildContext(context.Background(), "project", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(built.Memories) > 4 {
		t.Errorf("expected at most 4 memories, got %d", len(built.Memories))
	}
	seen := make(map[string]bool)
	for _, m := range built.Memories {
		if seen[m.ID] {
			t.Errorf("duplicate memory %s in context", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestSystemPromptLayout(t *testing.T) {
	backend := newMockBackend()
	backend.memories = []Memory{testMemory("user prefers dark mode", 0.8, time.Hour)}
	backend.categories = map[string]int{"preferences": 3, "facts": 1}

	identity := NewIdentity("Nova", "assist with research")
	identity.Rules = []string{"cite sources"}

	weaver := NewWeaver(backend, identity)
	built, err := weaver.BuildContext(context.Background(), "preferences", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	prompt := built.SystemPrompt
	identityIdx := strings.Index(prompt, "You are Nova.")
	memoriesIdx := strings.Index(prompt, "Relevant memories:")
	topicsIdx := strings.Index(prompt, "Predicted relevant topics: preferences, facts")
	rulesIdx := strings.Index(prompt, "Rules you must follow:")

	if identityIdx < 0 || memoriesIdx < 0 || topicsIdx < 0 || rulesIdx < 0 {
		t.Fatalf("prompt missing sections:\n%s", prompt)
	}
	if !(identityIdx < memoriesIdx && memoriesIdx < topicsIdx && topicsIdx < rulesIdx) {
		t.Errorf("prompt sections out of order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "1. user prefers dark mode (relevance:") {
		t.Errorf("memory missing relevance annotation:\n%s", prompt)
	}
}

func TestTrimToTokenLimitKeepsAtLeastOne(t *testing.T) {
	backend := newMockBackend()
	long := strings.Repeat("very long memory content ", 50)
	for i := 0; i < 6; i++ {
		backend.memories = append(backend.memories, testMemory(long, 0.5, time.Hour))
	}

	weaver := NewWeaver(backend, NewIdentity("Nova", "assist")).WithMaxTokens(50)
	built, err := weaver.BuildContext(context.Background(), "anything", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(built.Memories) != 1 {
		t.Errorf("expected trim down to 1 memory, got %d", len(built.Memories))
	}
}

func TestBuildContextCache(t *testing.T) {
	backend := newMockBackend()
	backend.memories = []Memory{testMemory("cached fact", 0.5, time.Hour)}

	weaver := NewWeaver(backend, NewIdentity("Nova", "assist")).WithCacheTTL(time.Minute)
	ctx := context.Background()

	first, err := weaver.BuildContext(ctx, "fact", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	second, err := weaver.BuildContext(ctx, "fact", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if first != second {
		t.Error("expected cache hit for same query within TTL")
	}

	// Different query misses.
	third, err := weaver.BuildContext(ctx, "other", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if third == first {
		t.Error("expected cache miss for different query")
	}

	// Refresh bypasses.
	fourth, err := weaver.BuildContext(ctx, "other", BuildOptions{Refresh: true})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if fourth == third {
		t.Error("expected refresh to bypass cache")
	}
}

func TestSetIdentityInvalidatesCache(t *testing.T) {
	backend := newMockBackend()
	weaver := NewWeaver(backend, NewIdentity("Nova", "assist")).WithCacheTTL(time.Minute)
	ctx := context.Background()

	first, err := weaver.BuildContext(ctx, "q", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	weaver.SetIdentity(NewIdentity("Vega", "assist"))
	second, err := weaver.BuildContext(ctx, "q", BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if second == first {
		t.Error("expected rebuild after identity change")
	}
	if !strings.Contains(second.SystemPrompt, "You are Vega.") {
		t.Errorf("expected new identity in prompt:\n%s", second.SystemPrompt)
	}
}

func TestPredictTopics(t *testing.T) {
	topics := predictTopics(map[string]int{
		"a": 1, "b": 5, "c": 3, "d": 3, "e": 2, "f": 9,
	})
	want := []string{"f", "b", "c", "d", "e"}
	if len(topics) != len(want) {
		t.Fatalf("expected %d topics, got %v", len(want), topics)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topic[%d] = %q, want %q", i, topics[i], want[i])
		}
	}
}
