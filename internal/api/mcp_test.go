package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:  store,
		Engine: persona.NewEngine(store),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_AdaptPersona(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpAdaptPersona(deps)

	req := makeCallToolRequest("adapt_persona", map[string]interface{}{
		"user":  "mcp@example.com",
		"query": "Qual o papel dos BRICS?",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var parsed persona.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &parsed); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if parsed.Params.Persona != persona.PersonaProfessor {
		t.Errorf("persona = %q", parsed.Params.Persona)
	}

	m, err := store.GetMemory("mcp@example.com")
	if err != nil {
		t.Fatalf("memory not persisted: %v", err)
	}
	if m.InteractionCount != 1 {
		t.Errorf("interaction count = %d", m.InteractionCount)
	}
}

func TestMCPTool_AdaptPersonaMissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAdaptPersona(deps)

	req := makeCallToolRequest("adapt_persona", map[string]interface{}{
		"user": "mcp@example.com",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPTool_DeepDivesUnknownUser(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDeepDives(deps)

	req := makeCallToolRequest("deep_dives", map[string]interface{}{
		"user": "nobody@example.com",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if toolText(t, result) != "[]" {
		t.Errorf("text = %q, want empty list", toolText(t, result))
	}
}

func TestMCPTool_DeepDivesReturnsStoredSuggestions(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	m, err := store.GetOrCreateMemory("mcp@example.com", "")
	if err != nil {
		t.Fatalf("GetOrCreateMemory: %v", err)
	}
	m.SuggestedDeepDives = []persona.DeepDiveSuggestion{
		{Topic: "BRICS and Multipolarity", Reason: "sustained interest", Priority: 100, GeneratedAt: time.Now().UTC().Truncate(time.Second)},
	}
	if err := store.UpdateMemory(m); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	handler := mcpDeepDives(deps)
	req := makeCallToolRequest("deep_dives", map[string]interface{}{
		"user": "mcp@example.com",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var suggestions []persona.DeepDiveSuggestion
	if err := json.Unmarshal([]byte(toolText(t, result)), &suggestions); err != nil {
		t.Fatalf("decoding suggestions: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Topic != "BRICS and Multipolarity" {
		t.Errorf("suggestions = %+v", suggestions)
	}
}

func TestMCPTool_SetStyle(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpSetStyle(deps)

	req := makeCallToolRequest("set_style", map[string]interface{}{
		"user":  "mcp@example.com",
		"key":   "data_visualization_preference",
		"value": "false",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	m, err := store.GetMemory("mcp@example.com")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if m.Style.DataVisualizationPreference == nil || *m.Style.DataVisualizationPreference {
		t.Error("visualization preference not stored as false")
	}
}

func TestMCPTool_SetStyleAcceptsAcademic(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpSetStyle(deps)

	req := makeCallToolRequest("set_style", map[string]interface{}{
		"user":  "mcp@example.com",
		"key":   "formality_preference",
		"value": "academic",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	m, err := store.GetMemory("mcp@example.com")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if m.Style.FormalityPreference != "academic" {
		t.Errorf("formality = %q, want academic", m.Style.FormalityPreference)
	}
}

func TestMCPTool_SetStyleRejectsBadValue(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSetStyle(deps)

	req := makeCallToolRequest("set_style", map[string]interface{}{
		"user":  "mcp@example.com",
		"key":   "formality_preference",
		"value": "breezy",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for invalid formality")
	}
}

func TestMCPTool_SetStyleUnknownKey(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSetStyle(deps)

	req := makeCallToolRequest("set_style", map[string]interface{}{
		"user":  "mcp@example.com",
		"key":   "favorite_color",
		"value": "blue",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown key")
	}
}

func TestMCPResource_Topics(t *testing.T) {
	handler := mcpResourceTopics()

	contents, err := handler(context.Background(), makeReadResourceRequest("twin://topics"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}

	text := contents[0].(mcp.TextResourceContents).Text
	var entries []struct {
		Tag      string   `json:"tag"`
		Label    string   `json:"label"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		t.Fatalf("decoding topics: %v", err)
	}
	if len(entries) != 8 {
		t.Fatalf("got %d topics, want 8", len(entries))
	}
	if entries[0].Tag != "brics" || entries[0].Label != "BRICS and Multipolarity" {
		t.Errorf("first topic = %+v", entries[0])
	}
	if len(entries[0].Keywords) == 0 {
		t.Error("no keywords for brics")
	}
}

func TestMCPResource_Personas(t *testing.T) {
	handler := mcpResourcePersonas()

	contents, err := handler(context.Background(), makeReadResourceRequest("twin://personas"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, persona.PersonaDiplomat) {
		t.Errorf("personas resource missing diplomat: %s", text)
	}

	var entries []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		t.Fatalf("decoding personas: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d personas, want 3", len(entries))
	}
}
