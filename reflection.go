package anima

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/zyn"
)

// TriggerCondition names the reason a reflection was initiated.
type TriggerCondition string

// Trigger conditions, in evaluation priority order.
const (
	TriggerTaskComplete  TriggerCondition = "task_complete"
	TriggerLowConfidence TriggerCondition = "confidence_below_threshold"
	TriggerContradiction TriggerCondition = "contradiction_detected"
	TriggerInteraction   TriggerCondition = "interaction_count"
	TriggerManual        TriggerCondition = "manual"
)

// Reflection is a self-generated analysis of recent turns, itself
// persisted as a memory.
type Reflection struct {
	ID               string
	Kind             string
	Content          string
	Insights         []string
	Confidence       float64 // in [0,1]
	Timestamp        time.Time
	TriggerCondition TriggerCondition
	RelatedMemories  []string
}

// ReasoningStep is one step of an explanation trace.
type ReasoningStep struct {
	Thought string
}

// ReasoningTrace is an on-demand chain-of-thought explanation over a
// set of memories. It is not persisted automatically.
type ReasoningTrace struct {
	Query            string
	Steps            []ReasoningStep
	Conclusion       string
	Confidence       float64
	MemoryReferences []string
}

// ReflectSignals carries the explicit trigger flags a caller may attach
// to a shouldReflect evaluation.
type ReflectSignals struct {
	// TaskComplete marks that the caller finished a task this turn.
	TaskComplete bool

	// Confidence is the caller's confidence in the turn, when known.
	Confidence *float64

	// ContradictionDetected marks an externally observed contradiction.
	ContradictionDetected bool
}

// ReflectDecision is the outcome of a shouldReflect evaluation.
type ReflectDecision struct {
	ShouldReflect bool
	Trigger       TriggerCondition
}

// Caps for the reflection engine's session state.
const (
	turnWindowLimit       = 10
	reflectionHistoryCap  = 20
	reflectionPromptTurns = 5
	explainMemoryLimit    = 5
)

type contradictionPair struct {
	a, b Memory
}

// Reflector tracks interaction history for a session, decides when
// self-reflection is due, and produces reflections and reasoning
// traces via the LLM.
//
// Trigger evaluation is fixed-priority: task_complete beats
// confidence_below_threshold beats contradiction_detected beats
// interaction_count. The interaction counter resets only when a
// reflection completes, never when one is merely triggered.
type Reflector struct {
	agentID   string
	backend   Backend
	provider  Provider
	analyzer  Analyzer
	interval  int
	threshold float64

	mu             sync.Mutex
	interactions   int
	window         []Turn
	contradictions []contradictionPair
	history        []Reflection
}

// NewReflector creates a reflection engine for one session.
func NewReflector(agentID string, backend Backend, analyzer Analyzer) *Reflector {
	return &Reflector{
		agentID:   agentID,
		backend:   backend,
		analyzer:  analyzer,
		interval:  DefaultReflectionInterval,
		threshold: DefaultConfidenceThreshold,
	}
}

// WithProvider sets the provider for reflection LLM calls.
func (r *Reflector) WithProvider(p Provider) *Reflector {
	r.provider = p
	return r
}

// WithInterval sets the interaction count that triggers periodic
// reflection.
func (r *Reflector) WithInterval(n int) *Reflector {
	r.interval = n
	return r
}

// WithThreshold sets the confidence threshold below which a turn
// triggers reflection.
func (r *Reflector) WithThreshold(t float64) *Reflector {
	r.threshold = t
	return r
}

// RecordTurn feeds a completed turn into the interaction tracker.
func (r *Reflector) RecordTurn(turn Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interactions++
	r.window = append(r.window, turn)
	if len(r.window) > turnWindowLimit {
		r.window = r.window[len(r.window)-turnWindowLimit:]
	}
}

// InteractionCount returns the current interaction counter.
func (r *Reflector) InteractionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interactions
}

// ShouldReflect evaluates the trigger conditions in priority order and
// returns the first that matches.
func (r *Reflector) ShouldReflect(sig ReflectSignals) ReflectDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case sig.TaskComplete:
		return ReflectDecision{ShouldReflect: true, Trigger: TriggerTaskComplete}
	case sig.Confidence != nil && *sig.Confidence < r.threshold:
		return ReflectDecision{ShouldReflect: true, Trigger: TriggerLowConfidence}
	case sig.ContradictionDetected || len(r.contradictions) > 0:
		return ReflectDecision{ShouldReflect: true, Trigger: TriggerContradiction}
	case r.interactions >= r.interval:
		return ReflectDecision{ShouldReflect: true, Trigger: TriggerInteraction}
	}
	return ReflectDecision{}
}

// Reflect prompts the LLM with the recent turn window, extracts
// insights from the reply, and records the reflection. The reflection
// is persisted as a tagged memory; persistence failure is reported via
// signal, not returned. On completion the interaction counter resets
// to zero and pending contradictions are cleared.
func (r *Reflector) Reflect(ctx context.Context, trigger TriggerCondition) (*Reflection, error) {
	start := time.Now()

	provider, err := ResolveProvider(ctx, r.provider)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	prompt := r.buildPrompt(trigger)

	resp, err := provider.Call(ctx, []zyn.Message{
		{Role: "user", Content: prompt},
	}, zyn.DefaultTemperatureCreative)
	if err != nil {
		capitan.Error(ctx, ReflectionFailed,
			FieldAgentID.Field(r.agentID),
			FieldTrigger.Field(string(trigger)),
			FieldError.Field(err),
		)
		return nil, fmt.Errorf("reflect: LLM call failed: %w", err)
	}

	insights := r.analyzer.ExtractInsights(resp.Content)

	reflection := &Reflection{
		ID:               uuid.New().String(),
		Kind:             "self_reflection",
		Content:          resp.Content,
		Insights:         insights,
		Confidence:       reflectionConfidence(resp.Content, len(insights), r.analyzer.HasListStructure(resp.Content)),
		Timestamp:        time.Now(),
		TriggerCondition: trigger,
		RelatedMemories:  r.pendingMemoryIDs(),
	}

	// Persist as a tagged memory; failure here is logged, not raised.
	_, saveErr := r.backend.Save(ctx, SaveRequest{
		Text:   resp.Content,
		Tags:   []string{"reflection", string(trigger)},
		Source: "reflection",
		Metadata: map[string]any{
			"agentId":    r.agentID,
			"kind":       string(KindReflection),
			"confidence": reflection.Confidence,
			"timestamp":  reflection.Timestamp.Format(time.RFC3339),
		},
	})
	if saveErr != nil {
		capitan.Error(ctx, ReflectionFailed,
			FieldAgentID.Field(r.agentID),
			FieldTrigger.Field(string(trigger)),
			FieldError.Field(fmt.Errorf("reflection persistence failed: %w", saveErr)),
		)
	}

	r.mu.Lock()
	r.history = append(r.history, *reflection)
	if len(r.history) > reflectionHistoryCap {
		r.history = r.history[len(r.history)-reflectionHistoryCap:]
	}
	r.interactions = 0
	r.contradictions = nil
	r.mu.Unlock()

	capitan.Emit(ctx, ReflectionCompleted,
		FieldAgentID.Field(r.agentID),
		FieldTrigger.Field(string(trigger)),
		FieldInsightCount.Field(len(insights)),
		FieldConfidence.Field(float32(reflection.Confidence)),
		FieldDuration.Field(time.Since(start)),
	)

	return reflection, nil
}

// Explain asks the LLM to reason step-by-step over up to five memories
// and parses the reply into a reasoning trace. Traces are not
// persisted.
func (r *Reflector) Explain(ctx context.Context, query string, memories []Memory) (*ReasoningTrace, error) {
	provider, err := ResolveProvider(ctx, r.provider)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	if len(memories) > explainMemoryLimit {
		memories = memories[:explainMemoryLimit]
	}

	var b strings.Builder
	b.WriteString("Reason step by step about the question below, referencing memories by number.\n\nMemories:\n")
	refs := make([]string, 0, len(memories))
	for i, m := range memories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
		refs = append(refs, m.ID)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nShow each step on its own line as \"Step N: ...\" and end with a conclusion.", query)

	resp, err := provider.Call(ctx, []zyn.Message{
		{Role: "user", Content: b.String()},
	}, zyn.DefaultTemperatureDeterministic)
	if err != nil {
		return nil, fmt.Errorf("explain: LLM call failed: %w", err)
	}

	rawSteps := r.analyzer.ParseSteps(resp.Content)
	steps := make([]ReasoningStep, 0, len(rawSteps))
	for _, s := range rawSteps {
		steps = append(steps, ReasoningStep{Thought: s})
	}

	referenceCount := r.analyzer.CountMemoryReferences(resp.Content)
	confidence := 0.5 + 0.1*float64(len(steps)) + 0.1*float64(referenceCount)

	return &ReasoningTrace{
		Query:            query,
		Steps:            steps,
		Conclusion:       r.analyzer.ExtractConclusion(resp.Content),
		Confidence:       clamp01(confidence),
		MemoryReferences: refs,
	}, nil
}

// DetectContradiction checks two memories for opposition on the same
// topic. Detected pairs are queued and surface in the next reflection
// prompt.
func (r *Reflector) DetectContradiction(ctx context.Context, a, b Memory) bool {
	if !r.analyzer.Contradicts(a.Content, b.Content) {
		return false
	}

	r.mu.Lock()
	r.contradictions = append(r.contradictions, contradictionPair{a: a, b: b})
	r.mu.Unlock()

	capitan.Emit(ctx, ContradictionDetected,
		FieldAgentID.Field(r.agentID),
	)
	return true
}

// History returns a copy of the reflection history, oldest first.
func (r *Reflector) History() []Reflection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reflection, len(r.history))
	copy(out, r.history)
	return out
}

// buildPrompt renders the trigger-specific reflection prompt over the
// last turns.
func (r *Reflector) buildPrompt(trigger TriggerCondition) string {
	r.mu.Lock()
	window := make([]Turn, len(r.window))
	copy(window, r.window)
	pending := make([]contradictionPair, len(r.contradictions))
	copy(pending, r.contradictions)
	r.mu.Unlock()

	if len(window) > reflectionPromptTurns {
		window = window[len(window)-reflectionPromptTurns:]
	}

	var b strings.Builder
	switch trigger {
	case TriggerTaskComplete:
		b.WriteString("A task was just completed. Reflect on how it went: what worked, what to improve.\n")
	case TriggerLowConfidence:
		b.WriteString("Recent responses had low confidence. Reflect on what is uncertain and what information would help.\n")
	case TriggerContradiction:
		b.WriteString("Contradictory memories were detected. Reflect on which is likely correct and why.\n")
		for _, pair := range pending {
			fmt.Fprintf(&b, "- %q vs %q\n", pair.a.Content, pair.b.Content)
		}
	case TriggerManual:
		b.WriteString("Reflect on the recent conversation: notable patterns, preferences, and facts worth remembering.\n")
	default:
		b.WriteString("Periodic self-reflection. Review the recent conversation for patterns and lessons.\n")
	}

	if len(window) > 0 {
		b.WriteString("\nRecent turns:\n")
		for _, turn := range window {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.UserMessage, turn.AssistantResponse)
		}
	}
	b.WriteString("\nList your key insights as a numbered list.")
	return b.String()
}

// pendingMemoryIDs lists the memory IDs of queued contradictions.
func (r *Reflector) pendingMemoryIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, pair := range r.contradictions {
		ids = append(ids, pair.a.ID, pair.b.ID)
	}
	return ids
}

// reflectionConfidence scores a reflection: 0.5 base, up to 0.3 for
// insight count, length bonuses at 500 and 1000 characters, and a
// structure bonus for list formatting, capped at 1.0.
func reflectionConfidence(content string, insightCount int, structured bool) float64 {
	confidence := 0.5

	insightBonus := 0.1 * float64(insightCount)
	if insightBonus > 0.3 {
		insightBonus = 0.3
	}
	confidence += insightBonus

	if len(content) > 500 {
		confidence += 0.1
	}
	if len(content) > 1000 {
		confidence += 0.05
	}
	if structured {
		confidence += 0.05
	}

	return clamp01(confidence)
}
