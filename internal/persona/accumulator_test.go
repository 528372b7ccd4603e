package persona

import (
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func TestAccumulateRaisesAffinity(t *testing.T) {
	m := NewMemory("u@example.com", "")

	updated := Accumulate(m, []string{"brics", "global_trade"}, nil, "", testNow)

	if got := updated.TopicPreferences["brics"]; got != 5 {
		t.Errorf("brics affinity = %d, want 5", got)
	}
	if got := updated.TopicPreferences["global_trade"]; got != 5 {
		t.Errorf("global_trade affinity = %d, want 5", got)
	}
	if updated.InteractionCount != 1 {
		t.Errorf("InteractionCount = %d, want 1", updated.InteractionCount)
	}
	if !updated.LastInteraction.Equal(testNow) {
		t.Errorf("LastInteraction = %v, want %v", updated.LastInteraction, testNow)
	}
}

// TestAccumulateClampsAffinity drives one topic far past the cap and checks
// the stored score never leaves [0, 100].
func TestAccumulateClampsAffinity(t *testing.T) {
	m := NewMemory("u@example.com", "")

	for i := 0; i < 30; i++ {
		m = Accumulate(m, []string{"brics"}, nil, "", testNow)
		if score := m.TopicPreferences["brics"]; score < 0 || score > 100 {
			t.Fatalf("iteration %d: affinity %d outside [0,100]", i, score)
		}
	}

	if got := m.TopicPreferences["brics"]; got != 100 {
		t.Errorf("brics affinity after 30 detections = %d, want 100", got)
	}
	if m.InteractionCount != 30 {
		t.Errorf("InteractionCount = %d, want 30", m.InteractionCount)
	}
}

func TestAccumulateLeavesUndetectedTopicsUnchanged(t *testing.T) {
	m := NewMemory("u@example.com", "")
	m.TopicPreferences["sustainability"] = 40

	updated := Accumulate(m, []string{"brics"}, nil, "", testNow)

	if got := updated.TopicPreferences["sustainability"]; got != 40 {
		t.Errorf("sustainability affinity = %d, want 40 (unchanged)", got)
	}
}

func TestAccumulateDoesNotMutateInput(t *testing.T) {
	m := NewMemory("u@example.com", "")

	Accumulate(m, []string{"brics"}, nil, "gdp pib", testNow)

	if len(m.TopicPreferences) != 0 {
		t.Errorf("input TopicPreferences mutated: %v", m.TopicPreferences)
	}
	if m.InteractionCount != 0 {
		t.Errorf("input InteractionCount mutated: %d", m.InteractionCount)
	}
}

func TestDepthShortHistoryIsStandard(t *testing.T) {
	history := []Message{
		{Role: "user", Content: strings.Repeat("x", 500)},
		{Role: "assistant", Content: "ok"},
	}
	if got := depthPreference(history); got != DepthStandard {
		t.Errorf("depth = %q, want standard for <5 messages", got)
	}
	if got := depthPreference(nil); got != DepthStandard {
		t.Errorf("depth = %q, want standard for nil history", got)
	}
}

// TestDepthComprehensive reproduces the escalation scenario: 6 messages,
// user messages averaging over 200 chars against total length, and 5 of 6
// transitions being assistant→user.
func TestDepthComprehensive(t *testing.T) {
	long := strings.Repeat("a", 500)
	history := []Message{
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: long},
		{Role: "assistant", Content: "…"},
		{Role: "user", Content: long},
		{Role: "assistant", Content: "…"},
		{Role: "user", Content: long},
	}
	// avg = 1500/6 = 250 > 200; followUpRate = 3/(6/2) = 1.0 > 0.7.
	if got := depthPreference(history); got != DepthComprehensive {
		t.Errorf("depth = %q, want comprehensive", got)
	}
}

func TestDepthConcise(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "oi"},
		{Role: "user", Content: "e?"},
		{Role: "user", Content: "ok"},
		{Role: "user", Content: "sim"},
		{Role: "user", Content: "não"},
	}
	// avg well under 50, no assistant→user transitions so rate = 0.
	if got := depthPreference(history); got != DepthConcise {
		t.Errorf("depth = %q, want concise", got)
	}
}

// TestDepthAverageUsesTotalLength pins the intentional divisor: user chars
// are averaged over the whole history, not just user turns.
func TestDepthAverageUsesTotalLength(t *testing.T) {
	// One 600-char user message in 6 turns: avg = 100, not 600.
	history := []Message{
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: strings.Repeat("x", 600)},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: ""},
		{Role: "assistant", Content: "c"},
		{Role: "user", Content: ""},
	}
	// avg = 100 falls between thresholds → standard even though the
	// follow-up rate is 1.0.
	if got := depthPreference(history); got != DepthStandard {
		t.Errorf("depth = %q, want standard", got)
	}
}

// TestDepthCountsCharactersNotBytes uses accented Portuguese content, where
// every rune is two bytes in UTF-8. A byte-based average would double the
// measured length and push the depth over the comprehensive threshold.
func TestDepthCountsCharactersNotBytes(t *testing.T) {
	accented := strings.Repeat("ã", 300)
	history := []Message{
		{Role: "assistant", Content: "oi"},
		{Role: "user", Content: accented},
		{Role: "assistant", Content: "…"},
		{Role: "user", Content: accented},
		{Role: "assistant", Content: "…"},
		{Role: "user", Content: accented},
	}
	// 900 chars over 6 turns: avg = 150, between the thresholds → standard.
	// Counted in bytes the avg would read 300 and escalate.
	if got := depthPreference(history); got != DepthStandard {
		t.Errorf("depth = %q, want standard", got)
	}
}

func TestFollowUpRate(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}
	// 1 assistant→user transition over 4/2.
	if got := followUpRate(history); got != 0.5 {
		t.Errorf("followUpRate = %v, want 0.5", got)
	}
	if got := followUpRate(history[:1]); got != 0 {
		t.Errorf("followUpRate(single) = %v, want 0", got)
	}
}

func TestTechnicalToleranceBaseline(t *testing.T) {
	// Unset tolerance reads as the 50 baseline; two terms add 6.
	got := technicalTolerance("qual o impacto do PIB no déficit?", CommunicationStyle{})
	if got != 56 {
		t.Errorf("tolerance = %d, want 56", got)
	}
}

func TestTechnicalToleranceCountsTermsOnce(t *testing.T) {
	got := technicalTolerance("gdp gdp gdp", CommunicationStyle{TechnicalTolerance: 40})
	if got != 43 {
		t.Errorf("tolerance = %d, want 43 (one term counted once)", got)
	}
}

func TestTechnicalToleranceClamped(t *testing.T) {
	query := "gdp pib taxa de câmbio balança comercial déficit superávit elasticidade commodity derivatives swap"
	got := technicalTolerance(query, CommunicationStyle{TechnicalTolerance: 95})
	if got != 100 {
		t.Errorf("tolerance = %d, want clamped to 100", got)
	}
}

func TestTechnicalToleranceNoTerms(t *testing.T) {
	got := technicalTolerance("bom dia", CommunicationStyle{TechnicalTolerance: 72})
	if got != 72 {
		t.Errorf("tolerance = %d, want 72 (unchanged)", got)
	}
}
