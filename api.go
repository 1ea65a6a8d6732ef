// Package anima provides a cognitive runtime for LLM agents: persistent
// memory, stable identity, and self-reflection layered over any chat
// provider.
//
// anima wraps each conversation turn in a pipeline that recalls and
// ranks relevant memories, weaves them into the system prompt, checks
// the reply for identity violations, persists the exchange in the
// background, and periodically reflects on recent turns to extract
// insights.
//
// # Core Types
//
// The package is built around four cooperating components:
//
//   - [Session] - A stateful conversation; each Chat call runs the full turn pipeline
//   - [Weaver] - Ranks recalled memories and renders the system prompt under a token budget
//   - [Validator] - Detects and corrects responses that break the agent's identity
//   - [Reflector] - Tracks interactions and generates self-reflections and reasoning traces
//
// # Starting a Session
//
// Configure a session with [Options] and converse through it:
//
//	backend := anima.NewAPIClient(apiKey)
//	session, err := anima.NewSession(ctx, anima.Options{
//		AgentID:  "nova",
//		Backend:  backend,
//		Provider: anima.NewAnthropicProvider(llmKey),
//		Identity: anima.NewIdentity("Nova", "a helpful research assistant"),
//	})
//	resp, err := session.Chat(ctx, "What did we decide about the schema?")
//
// Turns are serialized per session. A turn does not begin until the
// previous turn's memory write has landed; a failed write fails the
// next Chat call rather than silently dropping history.
//
// # Memory Backends
//
// Two [Backend] implementations ship with the package: [APIClient]
// talks to the hosted memory service over HTTP, and [SQLStore] keeps
// memories in a local Postgres database. Anything implementing
// [Backend] works; backends that also implement [Registrar] get the
// agent registered at session start.
//
// # Reflection
//
// Sessions reflect automatically when trigger conditions fire, in
// priority order: task completion, low confidence, detected
// contradictions, then interaction count. [Session.TriggerReflection]
// forces one immediately, and [Session.Explain] produces a step-by-step
// reasoning trace over specific memories.
//
// # Observability
//
// All components emit capitan signals (session lifecycle, turn
// outcomes, context builds, violations, reflections, saves). Hook them
// for logging or metrics:
//
//	listener := capitan.Hook(anima.ViolationDetected, func(ctx context.Context, e *capitan.Event) {
//		log.Printf("violation: %v", anima.FieldViolationKind.From(e))
//	})
//	defer listener.Close()
package anima
