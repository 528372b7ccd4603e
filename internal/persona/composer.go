package persona

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// analystTopics are the tags that pull an established user toward the
// analyst persona.
var analystTopics = map[string]bool{
	"financial_markets": true,
	"global_trade":      true,
	"competitiveness":   true,
}

// newUserThreshold is the interaction count below which a user is still
// considered new and kept on the professor persona.
const newUserThreshold = 3

// maxSuggestions caps the deep-dive suggestion list.
const maxSuggestions = 5

// strongInterestScore is the affinity above which a focus topic earns its
// own deep-dive suggestion.
const strongInterestScore = 60

// SelectPersona picks the response persona for this call. An explicit caller
// choice always wins. Otherwise the decision reads the record as it was
// *before* this call's increment, so the new-user check reflects history only.
func SelectPersona(current string, prior Memory, topics []string) string {
	if current != "" {
		return current
	}

	if prior.InteractionCount < newUserThreshold {
		return PersonaProfessor
	}

	for _, t := range topics {
		if analystTopics[t] {
			return PersonaAnalyst
		}
	}

	if prior.Style.FormalityPreference == "academic" {
		return PersonaDiplomat
	}

	if prior.PreferredPersona != "" {
		return prior.PreferredPersona
	}
	return PersonaProfessor
}

// TopTopics returns up to three tags ordered by affinity descending.
// Ties break on tag name ascending so the ordering is stable across calls.
func TopTopics(prefs map[string]int) []string {
	tags := make([]string, 0, len(prefs))
	for tag := range prefs {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if prefs[tags[i]] != prefs[tags[j]] {
			return prefs[tags[i]] > prefs[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > 3 {
		tags = tags[:3]
	}
	return tags
}

// Suggestions builds the deep-dive list from the updated preferences: one
// entry per strong-interest focus topic, plus the complementary trade
// suggestion for BRICS-heavy users. The result fully replaces any stored
// list; priority orders entries within one response only.
func Suggestions(prefs map[string]int, now time.Time) []DeepDiveSuggestion {
	suggestions := []DeepDiveSuggestion{}

	for i, tag := range TopTopics(prefs) {
		if prefs[tag] <= strongInterestScore {
			continue
		}
		label := TopicLabel(tag)
		suggestions = append(suggestions, DeepDiveSuggestion{
			Topic:       label,
			Reason:      fmt.Sprintf("You've shown strong interest in %s", label),
			Priority:    100 - i*10,
			GeneratedAt: now,
		})
	}

	if prefs["brics"] > 50 && prefs["global_trade"] < 30 {
		suggestions = append(suggestions, DeepDiveSuggestion{
			Topic:       "Global Trade Dynamics",
			Reason:      "Complement your BRICS knowledge with trade analysis",
			Priority:    70,
			GeneratedAt: now,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority > suggestions[j].Priority
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// DeriveInsights computes engagement level and learning progress from the
// pre-update record, with top topics taken from the updated preferences.
func DeriveInsights(prior Memory, updatedPrefs map[string]int) Insights {
	return Insights{
		TopTopics:        TopTopics(updatedPrefs),
		EngagementLevel:  engagementLevel(prior),
		LearningProgress: learningProgress(prior.TopicPreferences),
	}
}

func engagementLevel(m Memory) string {
	if m.InteractionCount > 20 && m.EngagementMetrics["follow_up_rate"] > 0.6 {
		return "high"
	}
	if m.InteractionCount > 5 {
		return "medium"
	}
	return "low"
}

// learningProgress blends topic breadth with average affinity. The average
// defaults to 0 when no topics have been recorded yet.
func learningProgress(prefs map[string]int) int {
	count := len(prefs)
	var avg float64
	if count > 0 {
		sum := 0
		for _, score := range prefs {
			sum += score
		}
		avg = float64(sum) / float64(count)
	}
	return int(math.Round((float64(count)*10 + avg) / 2))
}
