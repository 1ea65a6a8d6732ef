package anima

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/zoobzio/capitan"
)

// ViolationKind names a category of identity violation.
type ViolationKind string

// Violation kinds reported by the validator.
const (
	ViolationBaseModel    ViolationKind = "base_model_reference"
	ViolationGenericAI    ViolationKind = "generic_ai_reference"
	ViolationDenial       ViolationKind = "capability_denial"
	ViolationInconsistent ViolationKind = "inconsistent_behavior"
)

// Severity grades how badly a violation breaks the persona.
type Severity string

// Violation severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Violation is one detected deviation from the configured persona.
type Violation struct {
	Kind         ViolationKind
	DetectedText string
	Suggestion   string
	Severity     Severity
}

// ValidationResult reports whether a response stayed in persona, every
// violation found, and the corrected text when auto-correction is on.
type ValidationResult struct {
	IsValid           bool
	Violations        []Violation
	CorrectedResponse string
}

// ValidationStats are running violation counts for a validator's
// lifetime, grouped by kind and severity. Reset only by ClearStats.
type ValidationStats struct {
	Total      int
	ByKind     map[ViolationKind]int
	BySeverity map[Severity]int
}

// violationCategory is one ordered detection rule. The replacement is
// applied during correction; categories without a replacement only
// report.
type violationCategory struct {
	kind        ViolationKind
	severity    Severity
	pattern     *regexp.Regexp
	replacement string
	suggestion  string
}

// Base-model product names the validator treats as self-reference leaks.
var baseModelPattern = regexp.MustCompile(`(?i)\b(Claude|ChatGPT|GPT-[\w.]+|Gemini|Bard|Copilot|LLaMA)\b`)

// Generic assistant phrasing that erases the persona.
var genericAIPattern = regexp.MustCompile(`(?i)(?:\bas an AI\b|(?:an?\s+)?\bAI\s+(?:language\s+model|assistant|model|chatbot)\b)`)

// Capability-denial phrasing.
var capabilityDenialPattern = regexp.MustCompile(`(?i)(?:I(?:'m| am) (?:just|only) (?:a|an) (?:language model|AI|chatbot|assistant)|I don'?t have (?:the ability|access) to|I(?:'m| am) unable to)`)

// Contradiction phrases checked against the identity's purpose.
var contradictionPhrases = []string{
	"i cannot help with that",
	"i can't help with that",
	"i won't help with that",
	"that's not something i can do",
	"i'm not able to help",
}

// Validator scans LLM responses for identity violations and applies
// best-effort corrections. It is constructed per turn, bound to the
// session's current identity; its statistics accumulate for the
// validator's lifetime.
//
// Correction is a deterministic text transform. It is not guaranteed to
// remove every phrasing variant or to preserve grammar; partially
// sanitized output is a documented limitation, not an error.
type Validator struct {
	identity    *Identity
	autoCorrect bool
	categories  []violationCategory
	negation    *regexp.Regexp

	mu         sync.Mutex
	statsTotal int
	byKind     map[ViolationKind]int
	bySeverity map[Severity]int
}

// NewValidator creates a validator bound to the given identity.
func NewValidator(identity *Identity, autoCorrect bool) *Validator {
	name := identity.Name
	return &Validator{
		identity:    identity,
		autoCorrect: autoCorrect,
		categories: []violationCategory{
			{
				kind:        ViolationBaseModel,
				severity:    SeverityHigh,
				pattern:     baseModelPattern,
				replacement: name,
				suggestion:  fmt.Sprintf("Refer to yourself as %s", name),
			},
			{
				kind:        ViolationGenericAI,
				severity:    SeverityHigh,
				pattern:     genericAIPattern,
				replacement: name,
				suggestion:  fmt.Sprintf("Speak as %s, not as a generic assistant", name),
			},
			{
				kind:        ViolationDenial,
				severity:    SeverityMedium,
				pattern:     capabilityDenialPattern,
				replacement: fmt.Sprintf("As %s, I", name),
				suggestion:  "Answer within the persona instead of denying capability",
			},
		},
		negation:   regexp.MustCompile(`(?i)\bI(?:'m| am) not ` + regexp.QuoteMeta(name) + `\b`),
		byKind:     make(map[ViolationKind]int),
		bySeverity: make(map[Severity]int),
	}
}

// Validate scans the response against every category in order, then
// runs the consistency checks. All matches are reported; when
// auto-correction is enabled the result carries the rewritten response.
func (v *Validator) Validate(ctx context.Context, response string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	for _, cat := range v.categories {
		for _, match := range cat.pattern.FindAllString(response, -1) {
			result.Violations = append(result.Violations, Violation{
				Kind:         cat.kind,
				DetectedText: match,
				Suggestion:   cat.suggestion,
				Severity:     cat.severity,
			})
		}
	}

	// Consistency check: explicit denial of the agent's own name.
	for _, match := range v.negation.FindAllString(response, -1) {
		result.Violations = append(result.Violations, Violation{
			Kind:         ViolationInconsistent,
			DetectedText: match,
			Suggestion:   fmt.Sprintf("You are %s", v.identity.Name),
			Severity:     SeverityHigh,
		})
	}

	// Consistency check: refusing the very thing the identity is for.
	if phrase := v.purposeContradiction(response); phrase != "" {
		result.Violations = append(result.Violations, Violation{
			Kind:         ViolationInconsistent,
			DetectedText: phrase,
			Suggestion:   fmt.Sprintf("Purpose requires assisting with this: %s", v.identity.Purpose),
			Severity:     SeverityMedium,
		})
	}

	if len(result.Violations) > 0 {
		result.IsValid = false
		v.record(ctx, result.Violations)
		if v.autoCorrect {
			result.CorrectedResponse = v.correct(ctx, response)
		}
	}

	return result
}

// purposeContradiction returns the matched contradiction phrase when the
// response contains one and shares at least one purpose keyword with
// the identity, or "" otherwise.
func (v *Validator) purposeContradiction(response string) string {
	lower := strings.ToLower(response)
	phrase := ""
	for _, p := range contradictionPhrases {
		if strings.Contains(lower, p) {
			phrase = p
			break
		}
	}
	if phrase == "" {
		return ""
	}

	responseWords := wordSet(response)
	for word := range wordSet(v.identity.Purpose) {
		if len(word) > 3 && responseWords[word] {
			return phrase
		}
	}
	return ""
}

// correct applies each category's replacement in order, then rewrites
// name negations. Best-effort only.
func (v *Validator) correct(ctx context.Context, response string) string {
	corrected := response
	for _, cat := range v.categories {
		if cat.replacement == "" {
			continue
		}
		corrected = cat.pattern.ReplaceAllString(corrected, cat.replacement)
	}
	corrected = v.negation.ReplaceAllString(corrected, "I am "+v.identity.Name)

	if corrected != response {
		capitan.Emit(ctx, ResponseCorrected,
			FieldAgentID.Field(v.identity.ID),
		)
	}
	return corrected
}

// record updates lifetime statistics and emits one signal per violation.
func (v *Validator) record(ctx context.Context, violations []Violation) {
	v.mu.Lock()
	for _, violation := range violations {
		v.statsTotal++
		v.byKind[violation.Kind]++
		v.bySeverity[violation.Severity]++
	}
	v.mu.Unlock()

	for _, violation := range violations {
		capitan.Emit(ctx, ViolationDetected,
			FieldAgentID.Field(v.identity.ID),
			FieldViolationKind.Field(string(violation.Kind)),
			FieldSeverity.Field(string(violation.Severity)),
		)
	}
}

// Stats returns a copy of the lifetime violation counts.
func (v *Validator) Stats() ValidationStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	stats := ValidationStats{
		Total:      v.statsTotal,
		ByKind:     make(map[ViolationKind]int, len(v.byKind)),
		BySeverity: make(map[Severity]int, len(v.bySeverity)),
	}
	for k, n := range v.byKind {
		stats.ByKind[k] = n
	}
	for s, n := range v.bySeverity {
		stats.BySeverity[s] = n
	}
	return stats
}

// ClearStats resets the lifetime violation counts.
func (v *Validator) ClearStats() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statsTotal = 0
	v.byKind = make(map[ViolationKind]int)
	v.bySeverity = make(map[Severity]int)
}
