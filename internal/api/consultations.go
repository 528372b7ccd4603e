package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/storage"
)

type ConsultRequest struct {
	Query   string `json:"query"`
	Persona string `json:"persona"`
	Title   string `json:"title"`
}

type ConsultResponse struct {
	ID          string                       `json:"id"`
	Answer      string                       `json:"answer"`
	Params      persona.AdaptiveParams       `json:"adaptiveParams"`
	Suggestions []persona.DeepDiveSuggestion `json:"deepDiveSuggestions"`
	Insights    persona.Insights             `json:"personaInsights"`
}

var personaVoices = map[string]string{
	persona.PersonaProfessor: "Adopt the Professor voice: didactic and accessible, explaining through analogies and fundamental concepts.",
	persona.PersonaAnalyst:   "Adopt the Analyst voice: technical and dense, grounded in quantitative data and policy-brief structure.",
	persona.PersonaDiplomat:  "Adopt the Diplomat voice: ceremonial language with a focus on institutional cooperation.",
}

// systemPrompt turns the adaptive parameters into response-shaping
// instructions for the upstream model.
func systemPrompt(p persona.AdaptiveParams) string {
	var b strings.Builder
	b.WriteString("You are the digital twin of an economist specialized in global trade, competitiveness, and economic diplomacy. Answer in the language of the question.\n")
	b.WriteString(personaVoices[p.Persona])
	b.WriteString(fmt.Sprintf("\nResponse depth: %s. Technical level: %d/100. Formality: %s. Source detail: %s.",
		p.Depth, p.TechnicalLevel, p.FormalityLevel, p.SourceDetailLevel))
	if p.IncludeVisualizations {
		b.WriteString("\nWhere numbers matter, describe how they could be visualized.")
	}
	if len(p.FocusTopics) > 0 {
		b.WriteString("\nThe user has shown sustained interest in: " + strings.Join(p.FocusTopics, ", ") + ".")
	}
	return b.String()
}

func handleCreateConsultation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ConsultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if !deps.LLM.Configured() {
			httpError(w, http.StatusServiceUnavailable, "api_error", "openrouter api key not configured")
			return
		}

		user := userFrom(r.Context())

		hist, err := deps.History.Recent(r.Context(), user)
		if err != nil {
			slog.Warn("session history unavailable", "user", user, "error", err)
			hist = nil
		}

		result, err := deps.Engine.Adapt(r.Context(), user, persona.Request{
			Query:          req.Query,
			CurrentPersona: req.Persona,
			History:        hist,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "adapting persona: %v", err)
			return
		}

		msgs := make([]proxy.ChatMessage, 0, len(hist)+2)
		msgs = append(msgs, proxy.ChatMessage{Role: "system", Content: systemPrompt(result.Params)})
		for _, m := range hist {
			msgs = append(msgs, proxy.ChatMessage{Role: m.Role, Content: m.Content})
		}
		msgs = append(msgs, proxy.ChatMessage{Role: "user", Content: req.Query})

		answer, err := deps.LLM.Complete(r.Context(), deps.Model, msgs, nil)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}

		c := storage.Consultation{
			ID:        uuid.NewString(),
			Owner:     user,
			Title:     consultationTitle(req.Title, req.Query),
			Query:     req.Query,
			Answer:    answer,
			Persona:   result.Params.Persona,
			Depth:     result.Params.Depth,
			Model:     deps.Model,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveConsultation(c); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving consultation: %v", err)
			return
		}

		if err := deps.History.Append(r.Context(), user,
			persona.Message{Role: "user", Content: req.Query},
			persona.Message{Role: "assistant", Content: answer},
		); err != nil {
			slog.Warn("could not append to session history", "user", user, "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ConsultResponse{
			ID:          c.ID,
			Answer:      answer,
			Params:      result.Params,
			Suggestions: result.Suggestions,
			Insights:    result.Insights,
		})
	}
}

// consultationTitle falls back to a truncated query when the caller names
// nothing.
func consultationTitle(title, query string) string {
	if title != "" {
		return title
	}
	runes := []rune(query)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return query
}

func handleListConsultations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		items, err := deps.Store.ListConsultations(userFrom(r.Context()), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing consultations: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleGetConsultation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		c, err := deps.Store.GetConsultation(userFrom(r.Context()), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "consultation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting consultation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c)
	}
}

func handleDeleteConsultation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteConsultation(userFrom(r.Context()), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "consultation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting consultation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type ShareRequest struct {
	Emails      []string `json:"emails"`
	ExpiresDays int      `json:"expires_days"`
}

func handleShareConsultation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ShareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ExpiresDays < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "expires_days must not be negative")
			return
		}

		id := chi.URLParam(r, "id")
		link, err := deps.Shares.CreateLink(userFrom(r.Context()), id, req.Emails, req.ExpiresDays)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "consultation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating share link: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(link)
	}
}

func handleRevokeShare(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		err := deps.Shares.Revoke(userFrom(r.Context()), token)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "share not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "revoking share: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
	}
}

func handleResolveShare(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		c, err := deps.Shares.Resolve(token)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "share not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving share: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c)
	}
}
