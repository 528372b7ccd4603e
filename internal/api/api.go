package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/twinlabs/twind/internal/history"
	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/sharing"
	"github.com/twinlabs/twind/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store   *storage.Store
	Engine  *persona.Engine
	History history.Store
	LLM     *proxy.Client
	Shares  *sharing.Service
	Model   string
	Token   string
}

// NewAppHandler builds the HTTP API. Everything except the health probe and
// share-link resolution sits behind bearer auth plus the caller identity
// header.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	// The share token is the secret here, so no bearer auth.
	r.Get("/shared/{token}", handleResolveShare(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireUser)

		r.Post("/adaptive-persona", handleAdaptPersona(deps))
		r.Get("/persona-memory", handleGetMemory(deps))
		r.Patch("/persona-memory/style", handlePatchStyle(deps))

		r.Post("/consultations", handleCreateConsultation(deps))
		r.Get("/consultations", handleListConsultations(deps))
		r.Get("/consultations/{id}", handleGetConsultation(deps))
		r.Delete("/consultations/{id}", handleDeleteConsultation(deps))
		r.Post("/consultations/{id}/share", handleShareConsultation(deps))
		r.Delete("/shares/{token}", handleRevokeShare(deps))

		r.Post("/data-sources", handleCreateDataSource(deps))
		r.Get("/data-sources", handleListDataSources(deps))
		r.Get("/data-sources/{id}", handleGetDataSource(deps))
		r.Delete("/data-sources/{id}", handleDeleteDataSource(deps))
		r.Post("/data-sources/{id}/analyze", handleAnalyzeDataSource(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
