package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/twinlabs/twind/internal/persona"
)

type AdaptRequest struct {
	Query          string            `json:"query"`
	CurrentPersona string            `json:"currentPersona"`
	History        []persona.Message `json:"consultationHistory"`
}

func handleAdaptPersona(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AdaptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		user := userFrom(r.Context())

		hist := req.History
		if hist == nil {
			recent, err := deps.History.Recent(r.Context(), user)
			if err != nil {
				slog.Warn("session history unavailable, adapting without it", "user", user, "error", err)
			} else {
				hist = recent
			}
		}

		result, err := deps.Engine.Adapt(r.Context(), user, persona.Request{
			Query:          req.Query,
			CurrentPersona: req.CurrentPersona,
			History:        hist,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "adapting persona: %v", err)
			return
		}

		// Keep the rolling history current so the next adaptation sees this
		// query even if the caller never stores a consultation.
		if err := deps.History.Append(r.Context(), user, persona.Message{Role: "user", Content: req.Query}); err != nil {
			slog.Warn("could not append to session history", "user", user, "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleGetMemory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Store.GetOrCreateMemory(userFrom(r.Context()), "")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading persona memory: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}

type StylePatch struct {
	FormalityPreference         *string `json:"formality_preference"`
	DataVisualizationPreference *bool   `json:"data_visualization_preference"`
	SourceDetailLevel           *string `json:"source_detail_level"`
}

var validFormality = map[string]bool{"formal": true, "professional": true, "casual": true, "academic": true}
var validSourceDetail = map[string]bool{"minimal": true, "standard": true, "detailed": true}

func handlePatchStyle(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var patch StylePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if patch.FormalityPreference != nil && !validFormality[*patch.FormalityPreference] {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "formality_preference must be one of formal, professional, casual, academic")
			return
		}
		if patch.SourceDetailLevel != nil && !validSourceDetail[*patch.SourceDetailLevel] {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source_detail_level must be one of minimal, standard, detailed")
			return
		}

		user := userFrom(r.Context())
		m, err := deps.Store.GetOrCreateMemory(user, "")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading persona memory: %v", err)
			return
		}

		if patch.FormalityPreference != nil {
			m.Style.FormalityPreference = *patch.FormalityPreference
		}
		if patch.DataVisualizationPreference != nil {
			v := *patch.DataVisualizationPreference
			m.Style.DataVisualizationPreference = &v
		}
		if patch.SourceDetailLevel != nil {
			m.Style.SourceDetailLevel = *patch.SourceDetailLevel
		}

		if err := deps.Store.UpdateMemory(m); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving persona memory: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}
