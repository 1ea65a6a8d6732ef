package anima

import (
	"regexp"
	"strings"
)

// Analyzer supplies the text heuristics the reflection engine depends
// on: insight extraction, reasoning-step parsing, conclusion detection,
// and contradiction checks. The heuristic implementation is the pinned
// behavioral contract; alternative implementations are for testing and
// experimentation, not silent upgrades.
type Analyzer interface {
	// ExtractInsights pulls up to five insight statements out of a
	// reflection response.
	ExtractInsights(text string) []string

	// HasListStructure reports whether the text contains numbered or
	// bulleted list items.
	HasListStructure(text string) bool

	// ParseSteps extracts reasoning steps from a step-by-step response.
	ParseSteps(text string) []string

	// ExtractConclusion finds the concluding statement of a response.
	ExtractConclusion(text string) string

	// CountMemoryReferences counts explicit references to numbered
	// memories ("memory 2", "[3]").
	CountMemoryReferences(text string) int

	// Contradicts reports whether two memory contents oppose each other
	// on the same topic.
	Contradicts(a, b string) bool
}

const maxInsights = 5

// Keywords that mark a sentence as insight-bearing when no list
// structure is present.
var insightKeywords = []string{
	"should", "could", "need to", "important", "remember",
	"notice", "pattern", "improve", "better", "learn",
}

// Opposing keyword pairs used for contradiction detection. A pair
// matches in either direction.
var opposingPairs = [][2]string{
	{"love", "hate"},
	{"like", "dislike"},
	{"yes", "no"},
	{"always", "never"},
	{"good", "bad"},
	{"true", "false"},
	{"agree", "disagree"},
	{"accept", "reject"},
	{"can", "cannot"},
	{"will", "won't"},
}

var (
	listItemPattern   = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)
	stepMarkerPattern = regexp.MustCompile(`(?mi)^\s*(?:step\s*\d+\s*[:.)]?|\d+[.)])\s*(.+)$`)
	memoryRefPattern  = regexp.MustCompile(`(?i)memory\s+#?\d+|\[\d+\]`)
	sentenceSplitter  = regexp.MustCompile(`[.!?]+`)
	wordSplitter      = regexp.MustCompile(`[^a-zA-Z0-9']+`)
)

// Conclusion marker phrases, checked in order against sentence starts.
var conclusionMarkers = []string{
	"in conclusion", "therefore", "thus", "overall",
	"to summarize", "in summary", "conclusion:",
}

// heuristicAnalyzer is the default Analyzer. Its behavior is naive word
// and pattern matching with no normalization or stemming; that matching
// behavior is part of the observable contract and must not be improved
// in place.
type heuristicAnalyzer struct{}

// NewHeuristicAnalyzer returns the pinned heuristic analyzer.
func NewHeuristicAnalyzer() Analyzer {
	return heuristicAnalyzer{}
}

// ExtractInsights prefers numbered/bulleted list items; when the text
// has none it falls back to sentences containing insight keywords.
// Results are capped at five.
func (heuristicAnalyzer) ExtractInsights(text string) []string {
	var insights []string

	for _, match := range listItemPattern.FindAllStringSubmatch(text, -1) {
		item := strings.TrimSpace(match[1])
		if item == "" {
			continue
		}
		insights = append(insights, item)
		if len(insights) == maxInsights {
			return insights
		}
	}
	if len(insights) > 0 {
		return insights
	}

	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, kw := range insightKeywords {
			if strings.Contains(lower, kw) {
				insights = append(insights, sentence)
				break
			}
		}
		if len(insights) == maxInsights {
			break
		}
	}
	return insights
}

// HasListStructure reports whether the text contains numbered or
// bulleted items.
func (heuristicAnalyzer) HasListStructure(text string) bool {
	return listItemPattern.MatchString(text)
}

// ParseSteps extracts step-marked lines, falling back to sentence
// splitting when the response has no step markers.
func (heuristicAnalyzer) ParseSteps(text string) []string {
	var steps []string
	for _, match := range stepMarkerPattern.FindAllStringSubmatch(text, -1) {
		step := strings.TrimSpace(match[1])
		if step != "" {
			steps = append(steps, step)
		}
	}
	if len(steps) > 0 {
		return steps
	}
	return splitSentences(text)
}

// ExtractConclusion returns the first sentence beginning with a
// conclusion marker, or the last sentence when no marker is present.
func (heuristicAnalyzer) ExtractConclusion(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		for _, marker := range conclusionMarkers {
			if strings.HasPrefix(lower, marker) {
				return sentence
			}
		}
	}
	return sentences[len(sentences)-1]
}

// CountMemoryReferences counts "memory N" and "[N]" mentions.
func (heuristicAnalyzer) CountMemoryReferences(text string) int {
	return len(memoryRefPattern.FindAllString(text, -1))
}

// Contradicts flags two contents as contradictory when an opposing
// keyword pair spans them and they share at least two content words
// longer than three characters (a same-topic heuristic).
func (heuristicAnalyzer) Contradicts(a, b string) bool {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	opposed := false
	for _, pair := range opposingPairs {
		if (wordsA[pair[0]] && wordsB[pair[1]]) || (wordsA[pair[1]] && wordsB[pair[0]]) {
			opposed = true
			break
		}
	}
	if !opposed {
		return false
	}

	shared := 0
	for word := range wordsA {
		if len(word) > 3 && wordsB[word] {
			shared++
			if shared >= 2 {
				return true
			}
		}
	}
	return false
}

// splitSentences breaks text on sentence terminators, trimming and
// dropping empties.
func splitSentences(text string) []string {
	var sentences []string
	for _, part := range sentenceSplitter.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}

// wordSet lowercases text and returns its distinct words.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range wordSplitter.Split(strings.ToLower(text), -1) {
		if word != "" {
			set[word] = true
		}
	}
	return set
}

var _ Analyzer = heuristicAnalyzer{}
