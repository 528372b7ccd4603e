package persona

import (
	"strings"
	"time"
	"unicode/utf8"
)

// affinityStep is added to a topic's affinity each time it is detected.
const affinityStep = 5

// technicalTerms is the fixed jargon list used for tolerance scoring.
// Each term counts at most once per query.
var technicalTerms = []string{
	"gdp", "pib", "taxa de câmbio", "balança comercial", "déficit",
	"superávit", "elasticidade", "commodity", "derivatives", "swap",
}

// baseTolerance is assumed when a record carries no measured tolerance yet.
const baseTolerance = 50

// Accumulate folds one interaction into the memory record: topic affinities,
// depth preference, technical tolerance, interaction count, and the last
// interaction timestamp. The input record is not mutated.
func Accumulate(m Memory, topics []string, history []Message, query string, now time.Time) Memory {
	updated := m.Clone()

	for _, topic := range topics {
		updated.TopicPreferences[topic] = clampScore(updated.TopicPreferences[topic] + affinityStep)
	}

	updated.PreferredDepth = depthPreference(history)
	updated.Style.TechnicalTolerance = technicalTolerance(query, m.Style)
	updated.InteractionCount = m.InteractionCount + 1
	updated.LastInteraction = now

	return updated
}

// depthPreference derives the response depth from conversation history.
// The average divides the summed user-message lengths by the *total* history
// length, user and assistant turns alike; the skew is inherited behavior the
// rest of the system is tuned around.
func depthPreference(history []Message) string {
	if len(history) < 5 {
		return DepthStandard
	}

	var userChars int
	for _, msg := range history {
		if msg.Role == "user" {
			userChars += utf8.RuneCountInString(msg.Content)
		}
	}
	avgUserLength := float64(userChars) / float64(len(history))
	rate := followUpRate(history)

	switch {
	case avgUserLength > 200 && rate > 0.7:
		return DepthComprehensive
	case avgUserLength < 50 && rate < 0.3:
		return DepthConcise
	default:
		return DepthStandard
	}
}

// followUpRate measures how often the user immediately follows an assistant
// turn, normalized against half the history length.
func followUpRate(history []Message) float64 {
	if len(history) < 2 {
		return 0
	}
	var followUps int
	for i := 1; i < len(history); i++ {
		if history[i].Role == "user" && history[i-1].Role == "assistant" {
			followUps++
		}
	}
	return float64(followUps) / (float64(len(history)) / 2)
}

// technicalTolerance nudges the stored tolerance by 3 points per distinct
// technical term found in the query, clamped to [0, 100].
func technicalTolerance(query string, style CommunicationStyle) int {
	tolerance := style.TechnicalTolerance
	if tolerance == 0 {
		tolerance = baseTolerance
	}

	lower := strings.ToLower(query)
	matched := 0
	for _, term := range technicalTerms {
		if strings.Contains(lower, term) {
			matched++
		}
	}

	adjustment := matched * 30 / len(technicalTerms)
	return clampScore(tolerance + adjustment)
}
