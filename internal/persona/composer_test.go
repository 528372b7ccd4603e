package persona

import (
	"reflect"
	"testing"
)

func TestSelectPersonaExplicitOverrideWins(t *testing.T) {
	prior := NewMemory("u@example.com", "")
	prior.InteractionCount = 50
	prior.Style.FormalityPreference = "academic"

	got := SelectPersona("analyst", prior, []string{"geopolitics"})
	if got != "analyst" {
		t.Errorf("persona = %q, want explicit override to win", got)
	}
}

func TestSelectPersonaNewUserDefaultsToProfessor(t *testing.T) {
	prior := NewMemory("u@example.com", "diplomat")
	prior.InteractionCount = 2

	if got := SelectPersona("", prior, []string{"financial_markets"}); got != PersonaProfessor {
		t.Errorf("persona = %q, want professor for new user", got)
	}
}

// TestSelectPersonaAnalystTrigger: an established user asking about
// financial markets is steered to the analyst persona.
func TestSelectPersonaAnalystTrigger(t *testing.T) {
	prior := NewMemory("u@example.com", "")
	prior.InteractionCount = 10

	if got := SelectPersona("", prior, []string{"financial_markets"}); got != PersonaAnalyst {
		t.Errorf("persona = %q, want analyst", got)
	}
}

func TestSelectPersonaAcademicFormality(t *testing.T) {
	prior := NewMemory("u@example.com", "")
	prior.InteractionCount = 10
	prior.Style.FormalityPreference = "academic"

	if got := SelectPersona("", prior, []string{"geopolitics"}); got != PersonaDiplomat {
		t.Errorf("persona = %q, want diplomat", got)
	}
}

func TestSelectPersonaFallsBackToStoredPreference(t *testing.T) {
	prior := NewMemory("u@example.com", "diplomat")
	prior.InteractionCount = 10

	if got := SelectPersona("", prior, nil); got != "diplomat" {
		t.Errorf("persona = %q, want stored preference", got)
	}

	prior.PreferredPersona = ""
	if got := SelectPersona("", prior, nil); got != PersonaProfessor {
		t.Errorf("persona = %q, want professor fallback", got)
	}
}

func TestTopTopicsOrderAndCap(t *testing.T) {
	prefs := map[string]int{
		"brics":             80,
		"global_trade":      60,
		"sustainability":    90,
		"financial_markets": 10,
	}
	got := TopTopics(prefs)
	want := []string{"sustainability", "brics", "global_trade"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopTopics = %v, want %v", got, want)
	}
}

// TestTopTopicsTieBreak pins the documented tie rule: equal scores order by
// tag name ascending.
func TestTopTopicsTieBreak(t *testing.T) {
	prefs := map[string]int{
		"geopolitics":  50,
		"brics":        50,
		"global_trade": 50,
	}
	got := TopTopics(prefs)
	want := []string{"brics", "geopolitics", "global_trade"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopTopics = %v, want %v", got, want)
	}
}

func TestSuggestionsStrongInterest(t *testing.T) {
	prefs := map[string]int{
		"brics":          85,
		"sustainability": 70,
		"geopolitics":    40,
	}
	got := Suggestions(prefs, testNow)

	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(got), got)
	}
	if got[0].Topic != "BRICS and Multipolarity" || got[0].Priority != 100 {
		t.Errorf("first = %q/%d, want BRICS and Multipolarity/100", got[0].Topic, got[0].Priority)
	}
	if got[1].Topic != "Sustainability" || got[1].Priority != 90 {
		t.Errorf("second = %q/%d, want Sustainability/90", got[1].Topic, got[1].Priority)
	}
	if !got[0].GeneratedAt.Equal(testNow) {
		t.Errorf("GeneratedAt = %v, want %v", got[0].GeneratedAt, testNow)
	}
}

// TestSuggestionsLowAffinityProducesNone: fresh affinities of 5 are far
// below the strong-interest bar, so rule 1 emits nothing.
func TestSuggestionsLowAffinityProducesNone(t *testing.T) {
	prefs := map[string]int{"brics": 5, "global_trade": 5}
	if got := Suggestions(prefs, testNow); len(got) != 0 {
		t.Errorf("got %d suggestions, want 0: %+v", len(got), got)
	}
}

// TestSuggestionsComplementaryTrade: high BRICS affinity with little trade
// interest yields the fixed complementary suggestion at priority 70.
func TestSuggestionsComplementaryTrade(t *testing.T) {
	prefs := map[string]int{"brics": 55, "global_trade": 10}
	got := Suggestions(prefs, testNow)

	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1: %+v", len(got), got)
	}
	if got[0].Topic != "Global Trade Dynamics" {
		t.Errorf("topic = %q, want Global Trade Dynamics", got[0].Topic)
	}
	if got[0].Priority != 70 {
		t.Errorf("priority = %d, want 70", got[0].Priority)
	}
}

func TestSuggestionsComplementaryAppliesWhenTradeUnseen(t *testing.T) {
	// An absent global_trade entry counts as 0, which is below 30.
	prefs := map[string]int{"brics": 60}
	got := Suggestions(prefs, testNow)
	if len(got) != 1 || got[0].Topic != "Global Trade Dynamics" {
		t.Errorf("got %+v, want single complementary suggestion", got)
	}
}

func TestSuggestionsSortedAndCapped(t *testing.T) {
	prefs := map[string]int{
		"brics":             100,
		"sustainability":    95,
		"geopolitics":       90,
		"financial_markets": 85,
	}
	got := Suggestions(prefs, testNow)

	if len(got) > maxSuggestions {
		t.Fatalf("got %d suggestions, want at most %d", len(got), maxSuggestions)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Priority > got[i-1].Priority {
			t.Errorf("suggestions not sorted by priority descending: %+v", got)
		}
	}
}

func TestDeriveInsightsEngagement(t *testing.T) {
	prior := NewMemory("u@example.com", "")

	if got := DeriveInsights(prior, nil).EngagementLevel; got != "low" {
		t.Errorf("engagement = %q, want low", got)
	}

	prior.InteractionCount = 10
	if got := DeriveInsights(prior, nil).EngagementLevel; got != "medium" {
		t.Errorf("engagement = %q, want medium", got)
	}

	prior.InteractionCount = 25
	prior.EngagementMetrics["follow_up_rate"] = 0.8
	if got := DeriveInsights(prior, nil).EngagementLevel; got != "high" {
		t.Errorf("engagement = %q, want high", got)
	}

	// High interaction count alone is not enough.
	prior.EngagementMetrics["follow_up_rate"] = 0.1
	if got := DeriveInsights(prior, nil).EngagementLevel; got != "medium" {
		t.Errorf("engagement = %q, want medium without follow-ups", got)
	}
}

func TestDeriveInsightsLearningProgress(t *testing.T) {
	prior := NewMemory("u@example.com", "")

	if got := DeriveInsights(prior, nil).LearningProgress; got != 0 {
		t.Errorf("progress = %d, want 0 for empty record", got)
	}

	prior.TopicPreferences = map[string]int{"brics": 80, "global_trade": 40}
	// (2*10 + 60) / 2 = 40.
	if got := DeriveInsights(prior, nil).LearningProgress; got != 40 {
		t.Errorf("progress = %d, want 40", got)
	}
}

func TestDeriveInsightsTopTopicsUseUpdatedPrefs(t *testing.T) {
	prior := NewMemory("u@example.com", "")
	updated := map[string]int{"brics": 5}

	got := DeriveInsights(prior, updated)
	if !reflect.DeepEqual(got.TopTopics, []string{"brics"}) {
		t.Errorf("TopTopics = %v, want [brics]", got.TopTopics)
	}
}
