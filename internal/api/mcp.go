package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Engine *persona.Engine
}

// NewMCPServer creates an MCP server with all twind tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"twind",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("twind — adaptive persona engine for a digital-twin consultant on global economics and trade."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("adapt_persona",
			mcp.WithDescription("Run one adaptation cycle for a user query and return adaptive parameters, deep-dive suggestions, and insights."),
			mcp.WithString("user", mcp.Description("User identifier"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The consultation query"), mcp.Required()),
			mcp.WithString("persona", mcp.Description("Persona override: professor, analyst, or diplomat")),
		),
		mcpAdaptPersona(deps),
	)

	s.AddTool(
		mcp.NewTool("deep_dives",
			mcp.WithDescription("Return the user's current deep-dive topic suggestions."),
			mcp.WithString("user", mcp.Description("User identifier"), mcp.Required()),
		),
		mcpDeepDives(deps),
	)

	s.AddTool(
		mcp.NewTool("set_style",
			mcp.WithDescription("Update a communication style field on the user's persona memory."),
			mcp.WithString("user", mcp.Description("User identifier"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Style field: formality_preference, data_visualization_preference, or source_detail_level"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set (formality: formal, professional, casual, academic; detail: minimal, standard, detailed; visualization: true/false)"), mcp.Required()),
		),
		mcpSetStyle(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"twin://topics",
			"Topic Lexicon",
			mcp.WithResourceDescription("Detection keywords per topic tag as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTopics(),
	)

	s.AddResource(
		mcp.NewResource(
			"twin://personas",
			"Personas",
			mcp.WithResourceDescription("The three response personas with descriptions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePersonas(),
	)

	return s
}

func mcpAdaptPersona(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		override := req.GetString("persona", "")

		result, err := deps.Engine.Adapt(ctx, user, persona.Request{
			Query:          query,
			CurrentPersona: override,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("adaptation failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeepDives(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}

		m, err := deps.Store.GetMemory(user)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpText("[]"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load memory: %v", err)), nil
		}

		b, err := json.Marshal(m.SuggestedDeepDives)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal suggestions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetStyle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		m, err := deps.Store.GetOrCreateMemory(user, "")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load memory: %v", err)), nil
		}

		switch key {
		case "formality_preference":
			if !validFormality[value] {
				return mcpError("formality_preference must be one of formal, professional, casual, academic"), nil
			}
			m.Style.FormalityPreference = value
		case "data_visualization_preference":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return mcpError("data_visualization_preference must be true or false"), nil
			}
			m.Style.DataVisualizationPreference = &v
		case "source_detail_level":
			if !validSourceDetail[value] {
				return mcpError("source_detail_level must be one of minimal, standard, detailed"), nil
			}
			m.Style.SourceDetailLevel = value
		default:
			return mcpError(fmt.Sprintf("unknown style key %q", key)), nil
		}

		if err := deps.Store.UpdateMemory(m); err != nil {
			return mcpError(fmt.Sprintf("failed to save memory: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpResourceTopics() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type topicEntry struct {
			Tag      string   `json:"tag"`
			Label    string   `json:"label"`
			Keywords []string `json:"keywords"`
		}

		lexicon := persona.Lexicon()
		entries := make([]topicEntry, 0, len(lexicon))
		for _, tag := range persona.Topics() {
			entries = append(entries, topicEntry{
				Tag:      tag,
				Label:    persona.TopicLabel(tag),
				Keywords: lexicon[tag],
			})
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal topics: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourcePersonas() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type personaEntry struct {
			Key         string `json:"key"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}

		entries := []personaEntry{
			{Key: persona.PersonaProfessor, Name: "Professor", Description: "Didactic and accessible, with analogies and fundamental concepts"},
			{Key: persona.PersonaAnalyst, Name: "Analyst", Description: "Technical and dense, with quantitative data and policy briefs"},
			{Key: persona.PersonaDiplomat, Name: "Diplomat", Description: "Ceremonial language, focus on institutional cooperation"},
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal personas: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
