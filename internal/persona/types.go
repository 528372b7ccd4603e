package persona

import "time"

// The twin's three fixed response styles.
const (
	PersonaProfessor = "professor"
	PersonaAnalyst   = "analyst"
	PersonaDiplomat  = "diplomat"
)

// Response depth preferences.
const (
	DepthConcise       = "concise"
	DepthStandard      = "standard"
	DepthComprehensive = "comprehensive"
)

// Message is a single consultation history entry.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CommunicationStyle captures how the user prefers twin responses delivered.
// TechnicalTolerance is 0–100; a zero value means "not yet measured" and is
// treated as the 50 baseline by the accumulator.
type CommunicationStyle struct {
	TechnicalTolerance          int    `json:"technical_tolerance,omitempty"`
	FormalityPreference         string `json:"formality_preference,omitempty"`
	DataVisualizationPreference *bool  `json:"data_visualization_preference,omitempty"`
	SourceDetailLevel           string `json:"source_detail_level,omitempty"`
}

// DeepDiveSuggestion is a proactively generated topic recommendation.
// Instances are ephemeral: the stored list is fully replaced on every call.
type DeepDiveSuggestion struct {
	Topic       string    `json:"topic"`
	Reason      string    `json:"reason"`
	Priority    int       `json:"priority"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Memory is the per-user persisted record driving all adaptive decisions.
// Exactly one exists per owner; it is created lazily on first interaction.
type Memory struct {
	ID                 string               `json:"id"`
	Owner              string               `json:"owner"`
	PreferredPersona   string               `json:"preferred_persona"`
	InteractionCount   int                  `json:"interaction_count"`
	PreferredDepth     string               `json:"preferred_depth"`
	TopicPreferences   map[string]int       `json:"topic_preferences"`
	EngagementMetrics  map[string]float64   `json:"engagement_metrics"`
	Style              CommunicationStyle   `json:"communication_style"`
	SuggestedDeepDives []DeepDiveSuggestion `json:"suggested_deep_dives"`
	LastInteraction    time.Time            `json:"last_interaction"`
}

// NewMemory returns a fresh record with documented defaults. preferredPersona
// falls back to professor when empty.
func NewMemory(owner, preferredPersona string) Memory {
	if preferredPersona == "" {
		preferredPersona = PersonaProfessor
	}
	return Memory{
		Owner:              owner,
		PreferredPersona:   preferredPersona,
		InteractionCount:   0,
		PreferredDepth:     DepthStandard,
		TopicPreferences:   map[string]int{},
		EngagementMetrics:  map[string]float64{},
		SuggestedDeepDives: []DeepDiveSuggestion{},
	}
}

// Clone deep-copies the record so callers can mutate without aliasing
// the maps of the original.
func (m Memory) Clone() Memory {
	cp := m
	cp.TopicPreferences = make(map[string]int, len(m.TopicPreferences))
	for k, v := range m.TopicPreferences {
		cp.TopicPreferences[k] = v
	}
	cp.EngagementMetrics = make(map[string]float64, len(m.EngagementMetrics))
	for k, v := range m.EngagementMetrics {
		cp.EngagementMetrics[k] = v
	}
	if m.SuggestedDeepDives != nil {
		cp.SuggestedDeepDives = make([]DeepDiveSuggestion, len(m.SuggestedDeepDives))
		copy(cp.SuggestedDeepDives, m.SuggestedDeepDives)
	}
	if m.Style.DataVisualizationPreference != nil {
		v := *m.Style.DataVisualizationPreference
		cp.Style.DataVisualizationPreference = &v
	}
	return cp
}

// AdaptiveParams is the response-shaping parameter set returned per call.
type AdaptiveParams struct {
	Persona               string   `json:"persona"`
	Depth                 string   `json:"depth"`
	TechnicalLevel        int      `json:"technicalLevel"`
	FormalityLevel        string   `json:"formalityLevel"`
	IncludeVisualizations bool     `json:"includeVisualizations"`
	SourceDetailLevel     string   `json:"sourceDetailLevel"`
	FocusTopics           []string `json:"focusTopics"`
}

// Insights summarizes the user's engagement, computed fresh each call and
// never persisted separately.
type Insights struct {
	TopTopics        []string `json:"topTopics"`
	EngagementLevel  string   `json:"engagementLevel"`
	LearningProgress int      `json:"learningProgress"`
}

// clampScore bounds affinity and tolerance scores to [0, 100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
