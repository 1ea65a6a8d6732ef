package anima

import "github.com/zoobzio/capitan"

// Signal definitions for anima runtime events.
// Signals follow the pattern: anima.<entity>.<event>.
var (
	// Session lifecycle signals.
	SessionStarted = capitan.NewSignal(
		"anima.session.started",
		"Session initialized with identity and backend",
	)
	SessionClosed = capitan.NewSignal(
		"anima.session.closed",
		"Session shut down after draining pending work",
	)

	// Turn processing signals.
	TurnStarted = capitan.NewSignal(
		"anima.turn.started",
		"Turn processing began for a user message",
	)
	TurnCompleted = capitan.NewSignal(
		"anima.turn.completed",
		"Turn finished with a validated response",
	)
	TurnFailed = capitan.NewSignal(
		"anima.turn.failed",
		"Turn aborted with a fatal error",
	)

	// Context weaving signals.
	ContextBuilt = capitan.NewSignal(
		"anima.context.built",
		"Memory context assembled for a query",
	)
	ContextTrimmed = capitan.NewSignal(
		"anima.context.trimmed",
		"Memories dropped to satisfy the token budget",
	)
	ContextCacheHit = capitan.NewSignal(
		"anima.context.cache_hit",
		"Cached context served within its TTL",
	)

	// Identity validation signals.
	ViolationDetected = capitan.NewSignal(
		"anima.identity.violation",
		"Response deviated from the configured persona",
	)
	ResponseCorrected = capitan.NewSignal(
		"anima.identity.corrected",
		"Best-effort correction applied to a response",
	)

	// Reflection signals.
	ReflectionTriggered = capitan.NewSignal(
		"anima.reflection.triggered",
		"Reflection condition met for the session",
	)
	ReflectionCompleted = capitan.NewSignal(
		"anima.reflection.completed",
		"Reflection produced and recorded insights",
	)
	ReflectionFailed = capitan.NewSignal(
		"anima.reflection.failed",
		"Reflection or its persistence encountered an error",
	)
	ContradictionDetected = capitan.NewSignal(
		"anima.reflection.contradiction",
		"Two memories flagged as contradictory",
	)

	// Persistence signals.
	SaveEnqueued = capitan.NewSignal(
		"anima.save.enqueued",
		"Turn queued for background persistence",
	)
	SaveCompleted = capitan.NewSignal(
		"anima.save.completed",
		"Turn persisted to the memory backend",
	)
	SaveFailed = capitan.NewSignal(
		"anima.save.failed",
		"Turn persistence failed after retries",
	)
	QueueFlushed = capitan.NewSignal(
		"anima.save.flushed",
		"Save queue drained to empty",
	)

	// Registration signals.
	RegisterFailed = capitan.NewSignal(
		"anima.agent.register_failed",
		"Best-effort agent registration did not succeed",
	)
)

// Field keys for anima event data.
var (
	// Session metadata.
	FieldAgentID    = capitan.NewStringKey("agent_id")
	FieldUserID     = capitan.NewStringKey("user_id")
	FieldProvider   = capitan.NewStringKey("provider")
	FieldModel      = capitan.NewStringKey("model")
	FieldHistoryLen = capitan.NewIntKey("history_len")

	// Turn metadata.
	FieldQuery      = capitan.NewStringKey("query")
	FieldTokensUsed = capitan.NewIntKey("tokens_used")

	// Context metrics.
	FieldMemoryCount   = capitan.NewIntKey("memory_count")
	FieldTotalMemories = capitan.NewIntKey("total_memories")
	FieldTokenEstimate = capitan.NewIntKey("token_estimate")
	FieldDroppedCount  = capitan.NewIntKey("dropped_count")

	// Validation metadata.
	FieldViolationKind  = capitan.NewStringKey("violation_kind")
	FieldSeverity       = capitan.NewStringKey("severity")
	FieldViolationCount = capitan.NewIntKey("violation_count")

	// Reflection metadata.
	FieldTrigger      = capitan.NewStringKey("trigger")
	FieldInsightCount = capitan.NewIntKey("insight_count")
	FieldConfidence   = capitan.NewFloat32Key("confidence")

	// Persistence metadata.
	FieldImportance = capitan.NewFloat32Key("importance")
	FieldQueueDepth = capitan.NewIntKey("queue_depth")

	// Timing.
	FieldDuration = capitan.NewDurationKey("duration")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)
