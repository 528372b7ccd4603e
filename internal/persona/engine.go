package persona

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Request is one adaptation call for a single user.
type Request struct {
	Query          string
	CurrentPersona string
	History        []Message
}

// Result carries everything derived from one call, plus the record as it
// was persisted.
type Result struct {
	Params      AdaptiveParams       `json:"adaptiveParams"`
	Suggestions []DeepDiveSuggestion `json:"deepDiveSuggestions"`
	Insights    Insights             `json:"personaInsights"`
	Memory      Memory               `json:"-"`
}

// Engine runs the adaptive persona cycle: load-or-create the user's memory,
// detect topics, accumulate preferences, compose recommendations, persist.
//
// Calls for the same owner are serialized through a per-owner mutex so two
// concurrent requests cannot both read the same base state and silently drop
// one update on write-back.
type Engine struct {
	repo     MemoryRepository
	detector TopicDetector
	clock    Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an Engine with the keyword detector and the real clock.
func NewEngine(repo MemoryRepository) *Engine {
	return NewEngineWith(repo, KeywordDetector{}, realClock{})
}

// NewEngineWith creates an Engine with explicit detector and clock (for
// tests and future detector replacements).
func NewEngineWith(repo MemoryRepository, detector TopicDetector, clock Clock) *Engine {
	return &Engine{
		repo:     repo,
		detector: detector,
		clock:    clock,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Adapt processes one interaction for owner and returns the adaptive
// parameters, the replaced deep-dive list, and fresh insights.
func (e *Engine) Adapt(ctx context.Context, owner string, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	prior, err := e.repo.GetOrCreateMemory(owner, req.CurrentPersona)
	if err != nil {
		return Result{}, fmt.Errorf("loading persona memory: %w", err)
	}

	topics := e.detector.Detect(req.Query)
	now := e.clock.Now()

	updated := Accumulate(prior, topics, req.History, req.Query, now)
	updated.SuggestedDeepDives = Suggestions(updated.TopicPreferences, now)

	params := AdaptiveParams{
		Persona:               SelectPersona(req.CurrentPersona, prior, topics),
		Depth:                 updated.PreferredDepth,
		TechnicalLevel:        updated.Style.TechnicalTolerance,
		FormalityLevel:        formalityLevel(updated.Style),
		IncludeVisualizations: includeVisualizations(updated.Style),
		SourceDetailLevel:     sourceDetailLevel(updated.Style),
		FocusTopics:           TopTopics(updated.TopicPreferences),
	}

	insights := DeriveInsights(prior, updated.TopicPreferences)

	if err := e.repo.UpdateMemory(updated); err != nil {
		return Result{}, fmt.Errorf("persisting persona memory: %w", err)
	}

	return Result{
		Params:      params,
		Suggestions: updated.SuggestedDeepDives,
		Insights:    insights,
		Memory:      updated,
	}, nil
}

// lockOwner serializes Adapt calls per owner key. Mutexes are never evicted,
// so the map grows with the number of distinct owners seen by this process.
func (e *Engine) lockOwner(owner string) func() {
	e.mu.Lock()
	l, ok := e.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		e.locks[owner] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func formalityLevel(s CommunicationStyle) string {
	if s.FormalityPreference != "" {
		return s.FormalityPreference
	}
	return "professional"
}

// includeVisualizations defaults to true unless the user explicitly opted out.
func includeVisualizations(s CommunicationStyle) bool {
	return s.DataVisualizationPreference == nil || *s.DataVisualizationPreference
}

func sourceDetailLevel(s CommunicationStyle) string {
	if s.SourceDetailLevel != "" {
		return s.SourceDetailLevel
	}
	return "standard"
}
