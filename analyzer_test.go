package anima

import (
	"testing"
)

func TestExtractInsightsFromList(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := `Reflecting on recent turns:
1. The user prefers concise answers.
2. Database questions keep recurring.
- Follow-ups often reference earlier sessions.`

	insights := a.ExtractInsights(text)
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d: %v", len(insights), insights)
	}
	if insights[0] != "The user prefers concise answers." {
		t.Errorf("unexpected first insight: %q", insights[0])
	}
}

func TestExtractInsightsCappedAtFive(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := `1. one
2. two
3. three
4. four
5. five
6. six
7. seven`

	insights := a.ExtractInsights(text)
	if len(insights) != 5 {
		t.Errorf("expected cap of 5 insights, got %d", len(insights))
	}
}

func TestExtractInsightsKeywordFallback(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := "The weather was discussed at length. I should remember the user works night shifts. Nothing else stood out."

	insights := a.ExtractInsights(text)
	if len(insights) != 1 {
		t.Fatalf("expected 1 keyword insight, got %d: %v", len(insights), insights)
	}
	if insights[0] != "I should remember the user works night shifts" {
		t.Errorf("unexpected insight: %q", insights[0])
	}
}

func TestHasListStructure(t *testing.T) {
	a := NewHeuristicAnalyzer()

	if !a.HasListStructure("notes:\n- first item") {
		t.Error("expected bullet list to count as structure")
	}
	if !a.HasListStructure("1. first") {
		t.Error("expected numbered list to count as structure")
	}
	if a.HasListStructure("just plain prose without items") {
		t.Error("expected prose to have no list structure")
	}
}

func TestParseSteps(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := `Step 1: Check the user's stated preference.
Step 2: Compare against memory 3.
Step 3: Conclude they want dark mode.`

	steps := a.ParseSteps(text)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %v", len(steps), steps)
	}
	if steps[1] != "Compare against memory 3." {
		t.Errorf("unexpected second step: %q", steps[1])
	}
}

func TestParseStepsSentenceFallback(t *testing.T) {
	a := NewHeuristicAnalyzer()

	steps := a.ParseSteps("First I checked the history. Then I compared notes.")
	if len(steps) != 2 {
		t.Errorf("expected 2 sentence steps, got %d: %v", len(steps), steps)
	}
}

func TestExtractConclusion(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := "The evidence is mixed. Therefore the user likely prefers email. More data would help."
	if got := a.ExtractConclusion(text); got != "Therefore the user likely prefers email" {
		t.Errorf("expected marker sentence, got %q", got)
	}

	text = "One observation. Another observation"
	if got := a.ExtractConclusion(text); got != "Another observation" {
		t.Errorf("expected last sentence fallback, got %q", got)
	}

	if got := a.ExtractConclusion(""); got != "" {
		t.Errorf("expected empty conclusion for empty text, got %q", got)
	}
}

func TestCountMemoryReferences(t *testing.T) {
	a := NewHeuristicAnalyzer()

	count := a.CountMemoryReferences("Per memory 2 and Memory #4, see also [1].")
	if count != 3 {
		t.Errorf("expected 3 references, got %d", count)
	}
}

func TestContradicts(t *testing.T) {
	a := NewHeuristicAnalyzer()

	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{
			"opposing pair on shared topic",
			"User said they love spicy restaurant food",
			"User said they hate spicy restaurant food",
			true,
		},
		{
			"opposing pair on different topics",
			"I love hiking",
			"They hate mornings entirely",
			false,
		},
		{
			"shared topic without opposition",
			"User enjoys spicy restaurant food",
			"User orders spicy restaurant food often",
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Contradicts(tc.a, tc.b); got != tc.want {
				t.Errorf("Contradicts(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
