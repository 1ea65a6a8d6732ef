//go:build integration

package integration_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/zoobzio/anima"
)

func getTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	return db
}

func TestSQLStore_SaveAndRecall(t *testing.T) {
	db := getTestDB(t)

	store, err := anima.NewSQLStore(db, "integration-agent")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	saved, err := store.Save(ctx, anima.SaveRequest{
		Text:   "the user prefers dark mode in every editor",
		Tags:   []string{"preferences"},
		Source: "integration-test",
		Metadata: map[string]any{
			"kind":       "fact",
			"importance": 0.8,
		},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected saved memory to have ID")
	}

	result, err := store.Recall(ctx, "dark mode", 10, true)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if len(result.Memories) == 0 {
		t.Fatal("expected recalled memories")
	}

	found := false
	for _, m := range result.Memories {
		if m.ID == saved.ID {
			found = true
			if m.Kind != anima.KindFact {
				t.Errorf("expected kind fact, got %s", m.Kind)
			}
			if m.Importance != 0.8 {
				t.Errorf("expected importance 0.8, got %v", m.Importance)
			}
		}
	}
	if !found {
		t.Error("saved memory not recalled")
	}
	if result.Categories["fact"] == 0 {
		t.Errorf("expected fact category, got %v", result.Categories)
	}
}

func TestSQLStore_RecallRanksByOverlap(t *testing.T) {
	db := getTestDB(t)

	store, err := anima.NewSQLStore(db, "integration-ranking-agent")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Save(ctx, anima.SaveRequest{Text: "notes about database schema migration plans"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	matching, err := store.Save(ctx, anima.SaveRequest{Text: "the deployment pipeline needs a rollback step"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	result, err := store.Recall(ctx, "deployment rollback", 1, false)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if len(result.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(result.Memories))
	}
	if result.Memories[0].ID != matching.ID {
		t.Errorf("expected overlap-matching memory first, got %q", result.Memories[0].Content)
	}
}

func TestSQLStore_SessionEndToEnd(t *testing.T) {
	db := getTestDB(t)

	store, err := anima.NewSQLStore(db, "integration-session-agent")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	session, err := anima.NewSession(ctx, anima.Options{
		AgentID:     "integration-session-agent",
		Backend:     store,
		ContextOnly: true,
	})
	if err != nil {
		t.Fatalf("session creation failed: %v", err)
	}
	defer session.Shutdown(ctx)

	resp, err := session.Chat(ctx, "what is on the agenda?")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content == "" {
		t.Error("expected composed context")
	}
}
