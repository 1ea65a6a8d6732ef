package animatest

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/anima"
)

func TestMockBackend(t *testing.T) {
	backend := NewMockBackend()
	ctx := context.Background()

	t.Run("Seed and Recall", func(t *testing.T) {
		backend.Seed("user prefers dark mode", anima.KindFact, 0.8, time.Hour)

		result, err := backend.Recall(ctx, "preferences", 10, true)
		if err != nil {
			t.Fatalf("recall failed: %v", err)
		}
		if len(result.Memories) != 1 {
			t.Fatalf("expected 1 memory, got %d", len(result.Memories))
		}
		if result.Categories[string(anima.KindFact)] != 1 {
			t.Errorf("expected fact category, got %v", result.Categories)
		}
	})

	t.Run("Save stores recallable memory", func(t *testing.T) {
		_, err := backend.Save(ctx, anima.SaveRequest{Text: "User: hi\nAssistant: hello"})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if len(backend.Saves()) != 1 {
			t.Errorf("expected 1 recorded save, got %d", len(backend.Saves()))
		}

		result, err := backend.Recall(ctx, "", 10, false)
		if err != nil {
			t.Fatalf("recall failed: %v", err)
		}
		if result.Total != 2 {
			t.Errorf("expected saved memory recallable, total %d", result.Total)
		}
	})

	t.Run("Register records agent", func(t *testing.T) {
		if err := backend.Register(ctx, "nova", "Nova", "assist"); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if got := backend.Registered(); len(got) != 1 || got[0] != "nova" {
			t.Errorf("expected registered agent, got %v", got)
		}
	})
}

func TestMockBackendWithSession(t *testing.T) {
	backend := NewMockBackend()
	backend.Seed("user prefers dark mode", anima.KindFact, 0.8, time.Hour)

	ctx := context.Background()
	session, err := anima.NewSession(ctx, anima.Options{
		AgentID:  "nova",
		Backend:  backend,
		Provider: NewMockProvider("happy to help"),
	})
	if err != nil {
		t.Fatalf("session creation failed: %v", err)
	}
	defer session.Shutdown(ctx)

	resp, err := session.Chat(ctx, "what do I prefer?")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "happy to help" {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestMockProviderSequence(t *testing.T) {
	provider := NewMockProvider("one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two"} {
		resp, err := provider.Call(ctx, nil, 0)
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if resp.Content != want {
			t.Errorf("expected %q, got %q", want, resp.Content)
		}
	}
	if provider.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", provider.Calls())
	}
}
