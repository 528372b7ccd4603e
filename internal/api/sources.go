package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/twinlabs/twind/internal/ingest"
	"github.com/twinlabs/twind/internal/storage"
)

// Base64 PDFs ride in the request body, so sources get a larger cap than the
// rest of the API.
const maxSourceBodySize = 10 << 20 // 10MB

type SourceRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	URL      string `json:"url"`
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

func handleCreateDataSource(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSourceBodySize)
		defer r.Body.Close()

		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		switch req.Kind {
		case storage.SourceKindText, storage.SourceKindPDF:
			if req.Content == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required for %s sources", req.Kind)
				return
			}
		case storage.SourceKindURL:
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for url sources")
				return
			}
		case storage.SourceKindProvider:
			if req.Provider == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "provider is required for provider sources")
				return
			}
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be one of text, url, pdf, provider")
			return
		}

		src := storage.DataSource{
			ID:        uuid.NewString(),
			Owner:     userFrom(r.Context()),
			Name:      req.Name,
			Kind:      req.Kind,
			URL:       req.URL,
			Provider:  req.Provider,
			APIKey:    req.APIKey,
			Content:   req.Content,
			Status:    storage.SourceStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveDataSource(src); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving data source: %v", err)
			return
		}
		if err := ingest.EnqueueFetch(deps.Store, src.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing fetch: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     src.ID,
			"status": "queued",
		})
	}
}

func handleListDataSources(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Store.ListDataSources(userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing data sources: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sources)
	}
}

func handleGetDataSource(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		src, err := deps.Store.GetOwnedDataSource(userFrom(r.Context()), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "data source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting data source: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(src)
	}
}

func handleDeleteDataSource(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDataSource(userFrom(r.Context()), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "data source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting data source: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleAnalyzeDataSource(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		src, err := deps.Store.GetOwnedDataSource(userFrom(r.Context()), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "data source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting data source: %v", err)
			return
		}

		if err := ingest.EnqueueAnalysis(deps.Store, src.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     src.ID,
			"status": "queued",
		})
	}
}
