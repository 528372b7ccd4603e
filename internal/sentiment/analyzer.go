// Package sentiment scores a data source's content with the configured LLM,
// focusing on economic, political, and strategic implications.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/storage"
)

const maxContentChars = 10000

// Report is the structured analysis stored on the data source.
type Report struct {
	OverallScore  float64  `json:"overall_score"` // -100 (extremely negative) to 100
	Label         string   `json:"sentiment_label"`
	PositiveCount int      `json:"positive_count"`
	NegativeCount int      `json:"negative_count"`
	NeutralCount  int      `json:"neutral_count"`
	KeyThemes     []string `json:"key_themes"`
}

var responseSchema = json.RawMessage(`{
  "name": "sentiment_analysis",
  "strict": true,
  "schema": {
    "type": "object",
    "properties": {
      "overall_score": {"type": "number", "description": "Overall sentiment score from -100 to 100"},
      "sentiment_label": {"type": "string", "enum": ["very_negative", "negative", "neutral", "positive", "very_positive"]},
      "positive_count": {"type": "number"},
      "negative_count": {"type": "number"},
      "neutral_count": {"type": "number"},
      "key_themes": {"type": "array", "items": {"type": "string"}, "maxItems": 5}
    },
    "required": ["overall_score", "sentiment_label", "positive_count", "negative_count", "neutral_count", "key_themes"],
    "additionalProperties": false
  }
}`)

// Chatter is the slice of the LLM proxy the analyzer needs.
type Chatter interface {
	Complete(ctx context.Context, model string, msgs []proxy.ChatMessage, format *proxy.ResponseFormat) (string, error)
}

// Analyzer runs sentiment analysis over data sources.
type Analyzer struct {
	llm   Chatter
	model string
}

func NewAnalyzer(llm Chatter, model string) *Analyzer {
	return &Analyzer{llm: llm, model: model}
}

// Analyze scores the source's content and returns the parsed report.
// Sources with no fetched content fall back to their name and location.
func (a *Analyzer) Analyze(ctx context.Context, src storage.DataSource) (Report, error) {
	content := src.Content
	if content == "" {
		content = strings.TrimSpace(src.Name + "\n" + src.URL + "\n" + src.Provider)
	}
	if runes := []rune(content); len(runes) > maxContentChars {
		content = string(runes[:maxContentChars]) + "..."
	}

	prompt := fmt.Sprintf(`Analyze the sentiment of the following content from a data source.

Content:
%s

Provide a comprehensive sentiment analysis with:
1. Overall sentiment score (-100 to 100, where -100 is extremely negative, 0 is neutral, 100 is extremely positive)
2. Sentiment label (very_negative, negative, neutral, positive, very_positive)
3. Count of positive, negative, and neutral statements
4. Key themes detected (up to 5)

Focus on economic, political, and strategic implications.`, content)

	raw, err := a.llm.Complete(ctx, a.model, []proxy.ChatMessage{
		{Role: "user", Content: prompt},
	}, &proxy.ResponseFormat{Type: "json_schema", JSONSchema: responseSchema})
	if err != nil {
		return Report{}, fmt.Errorf("invoking sentiment model: %w", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return Report{}, fmt.Errorf("decoding sentiment response: %w", err)
	}
	if report.OverallScore < -100 || report.OverallScore > 100 {
		return Report{}, fmt.Errorf("overall_score %v out of range", report.OverallScore)
	}
	if len(report.KeyThemes) > 5 {
		report.KeyThemes = report.KeyThemes[:5]
	}
	return report, nil
}
