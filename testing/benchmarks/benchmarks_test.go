package benchmarks_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/zoobzio/anima"
	animatest "github.com/zoobzio/anima/testing"
)

func BenchmarkBuildContext(b *testing.B) {
	ctx := context.Background()
	backend := animatest.NewMockBackend()
	for i := 0; i < 100; i++ {
		backend.Seed(fmt.Sprintf("observation %d about the user's project work", i), anima.KindObservation, 0.5, time.Duration(i)*time.Hour)
	}

	weaver := anima.NewWeaver(backend, anima.NewIdentity("Nova", "assist"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := weaver.BuildContext(ctx, "project work", anima.BuildOptions{Refresh: true})
		if err != nil {
			b.Fatalf("build failed: %v", err)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	ctx := context.Background()
	validator := anima.NewValidator(anima.NewIdentity("Nova", "assist with research"), true)
	response := "I'm Claude, an AI assistant, and I don't have access to that. As an AI, I can only summarize."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		validator.Validate(ctx, response)
	}
}

func BenchmarkChatTurn(b *testing.B) {
	ctx := context.Background()
	backend := animatest.NewMockBackend()
	for i := 0; i < 20; i++ {
		backend.Seed(fmt.Sprintf("fact %d", i), anima.KindFact, 0.5, time.Hour)
	}

	session, err := anima.NewSession(ctx, anima.Options{
		AgentID:         "nova",
		Backend:         backend,
		Provider:        animatest.NewMockProvider("benchmark response"),
		DisableAutoSave: true,
		DisableCache:    true,
	})
	if err != nil {
		b.Fatalf("session creation failed: %v", err)
	}
	defer session.Shutdown(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := session.Chat(ctx, "benchmark question"); err != nil {
			b.Fatalf("chat failed: %v", err)
		}
	}
}
