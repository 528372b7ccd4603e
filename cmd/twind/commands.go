package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twinlabs/twind/internal/config"
)

// --- persona ---

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Inspect and tune the adaptive persona",
}

var personaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persona memory record as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/persona-memory")
		if err != nil {
			return err
		}

		var memory any
		if err := decodeJSON(resp, &memory); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(memory)
	},
}

var personaAdaptCmd = &cobra.Command{
	Use:   "adapt <query>",
	Short: "Run one adaptation cycle for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		override, _ := cmd.Flags().GetString("persona")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": query}
		if override != "" {
			body["currentPersona"] = override
		}

		resp, err := client.post(cmd.Context(), "/adaptive-persona", body)
		if err != nil {
			return err
		}

		var result struct {
			Params struct {
				Persona        string   `json:"persona"`
				Depth          string   `json:"depth"`
				TechnicalLevel int      `json:"technicalLevel"`
				FocusTopics    []string `json:"focusTopics"`
			} `json:"adaptiveParams"`
			Suggestions []struct {
				Topic    string `json:"topic"`
				Reason   string `json:"reason"`
				Priority int    `json:"priority"`
			} `json:"deepDiveSuggestions"`
			Insights struct {
				EngagementLevel  string `json:"engagementLevel"`
				LearningProgress int    `json:"learningProgress"`
			} `json:"personaInsights"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Persona", "%s", result.Params.Persona)
		printStatus("Depth", "%s", result.Params.Depth)
		printStatus("Technical level", "%d/100", result.Params.TechnicalLevel)
		if len(result.Params.FocusTopics) > 0 {
			printStatus("Focus topics", "%s", strings.Join(result.Params.FocusTopics, ", "))
		}
		printStatus("Engagement", "%s (progress %d%%)", result.Insights.EngagementLevel, result.Insights.LearningProgress)
		for _, s := range result.Suggestions {
			fmt.Fprintf(os.Stderr, "  %s %s — %s\n", colorize(colorCyan, "deep dive:"), s.Topic, s.Reason)
		}
		return nil
	},
}

// styleValue maps CLI string input to the PATCH body value for a style key.
func styleValue(key, value string) (any, error) {
	if key == "data_visualization_preference" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s takes true or false", key)
		}
		return b, nil
	}
	return value, nil
}

var personaSetStyleCmd = &cobra.Command{
	Use:   "set-style <key> <value>",
	Short: "Set a communication style field",
	Long: `Set a communication style field.

Keys: formality_preference, data_visualization_preference, source_detail_level.

Examples:
  twind persona set-style formality_preference formal
  twind persona set-style data_visualization_preference false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]

		value, err := styleValue(key, raw)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/persona-memory/style", map[string]any{key: value})
		if err != nil {
			return err
		}

		var memory any
		if err := decodeJSON(resp, &memory); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, raw)
		return nil
	},
}

func init() {
	personaAdaptCmd.Flags().String("persona", "", "persona override: professor, analyst, or diplomat")
	personaCmd.AddCommand(personaShowCmd)
	personaCmd.AddCommand(personaAdaptCmd)
	personaCmd.AddCommand(personaSetStyleCmd)
}

// --- consult ---

var consultCmd = &cobra.Command{
	Use:   "consult <query>",
	Short: "Ask the digital twin a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		override, _ := cmd.Flags().GetString("persona")
		title, _ := cmd.Flags().GetString("title")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": query}
		if override != "" {
			body["persona"] = override
		}
		if title != "" {
			body["title"] = title
		}

		resp, err := client.post(cmd.Context(), "/consultations", body)
		if err != nil {
			return err
		}

		var result struct {
			ID     string `json:"id"`
			Answer string `json:"answer"`
			Params struct {
				Persona string `json:"persona"`
			} `json:"adaptiveParams"`
			Suggestions []struct {
				Topic string `json:"topic"`
			} `json:"deepDiveSuggestions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		printStatus("Consultation", "%s (persona %s)", result.ID, result.Params.Persona)
		for _, s := range result.Suggestions {
			fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorCyan, "deep dive:"), s.Topic)
		}
		return nil
	},
}

var consultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent consultations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/consultations?limit=%d", limit))
		if err != nil {
			return err
		}

		var items []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Persona   string `json:"persona"`
			IsShared  bool   `json:"is_shared"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No consultations yet.")
			return nil
		}

		for _, c := range items {
			shared := ""
			if c.IsShared {
				shared = "  [shared]"
			}
			fmt.Printf("%s  %s  %s (%s)%s\n",
				colorize(colorCyan, c.ID[:8]),
				c.CreatedAt,
				c.Title,
				c.Persona,
				shared,
			)
		}
		return nil
	},
}

func init() {
	consultCmd.Flags().String("persona", "", "persona override: professor, analyst, or diplomat")
	consultCmd.Flags().String("title", "", "title for the stored consultation")
	consultListCmd.Flags().Int("limit", 20, "maximum number of consultations to list")
	consultCmd.AddCommand(consultListCmd)
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage data sources feeding the twin",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a data source and queue its first sync",
	Long: `Register a data source and queue its first sync.

Examples:
  twind sources add "Market notes" --text "PETR4 closed up 2%"
  twind sources add "Central bank feed" --url https://example.com/feed
  twind sources add "GDP report" --pdf ./report.pdf
  twind sources add "FRED GDP" --provider fred --api-key $FRED_KEY`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		provider, _ := cmd.Flags().GetString("provider")
		apiKey, _ := cmd.Flags().GetString("api-key")

		body := map[string]any{"name": name}
		switch {
		case text != "":
			body["kind"] = "text"
			body["content"] = text
		case url != "":
			body["kind"] = "url"
			body["url"] = url
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			body["kind"] = "pdf"
			body["content"] = base64.StdEncoding.EncodeToString(data)
		case provider != "":
			body["kind"] = "provider"
			body["provider"] = provider
			if apiKey != "" {
				body["api_key"] = apiKey
			}
		default:
			return fmt.Errorf("one of --text, --url, --pdf, or --provider is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/data-sources", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued source %s", result["id"])
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sources with sync and sentiment state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/data-sources")
		if err != nil {
			return err
		}

		var sources []struct {
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Kind      string          `json:"kind"`
			Status    string          `json:"status"`
			SyncCount int             `json:"sync_count"`
			Sentiment json.RawMessage `json:"sentiment"`
		}
		if err := decodeJSON(resp, &sources); err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Println("No data sources registered.")
			return nil
		}

		for _, s := range sources {
			sentiment := ""
			if len(s.Sentiment) > 0 {
				var report struct {
					Label string `json:"sentiment_label"`
				}
				if json.Unmarshal(s.Sentiment, &report) == nil && report.Label != "" {
					sentiment = "  " + report.Label
				}
			}
			fmt.Printf("%s  %-8s  %-8s  syncs:%d%s  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.Kind,
				s.Status,
				s.SyncCount,
				sentiment,
				s.Name,
			)
		}
		return nil
	},
}

var sourcesAnalyzeCmd = &cobra.Command{
	Use:   "analyze <id>",
	Short: "Queue sentiment analysis for a data source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/data-sources/"+args[0]+"/analyze", map[string]any{})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued analysis for %s", args[0])
		return nil
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a data source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/data-sources/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted source %s", args[0])
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().String("text", "", "inline text content")
	sourcesAddCmd.Flags().String("url", "", "URL to sync")
	sourcesAddCmd.Flags().String("pdf", "", "path to a PDF file")
	sourcesAddCmd.Flags().String("provider", "", "economic data provider (ibge, banco_central_brasil, world_bank, fred, alpha_vantage, newsapi)")
	sourcesAddCmd.Flags().String("api-key", "", "provider API key where required")
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAnalyzeCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
}

// --- share ---

var shareCmd = &cobra.Command{
	Use:   "share <consultation-id>",
	Short: "Create a public share link for a consultation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		emailsStr, _ := cmd.Flags().GetString("emails")
		expiresDays, _ := cmd.Flags().GetInt("expires-days")

		body := map[string]any{}
		if emailsStr != "" {
			emails := strings.Split(emailsStr, ",")
			for i := range emails {
				emails[i] = strings.TrimSpace(emails[i])
			}
			body["emails"] = emails
		}
		if expiresDays > 0 {
			body["expires_days"] = expiresDays
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/consultations/"+args[0]+"/share", body)
		if err != nil {
			return err
		}

		var link struct {
			Token     string `json:"share_token"`
			Path      string `json:"path"`
			ExpiresAt string `json:"expires_at"`
		}
		if err := decodeJSON(resp, &link); err != nil {
			return err
		}

		fmt.Println(client.baseURL + link.Path)
		printSuccess("Share link valid until %s", link.ExpiresAt)
		return nil
	},
}

var shareRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a share link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/shares/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Revoked share %s", args[0])
		return nil
	},
}

func init() {
	shareCmd.Flags().String("emails", "", "comma-separated recipient emails to record")
	shareCmd.Flags().Int("expires-days", 0, "link lifetime in days (default 30)")
	shareCmd.AddCommand(shareRevokeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
