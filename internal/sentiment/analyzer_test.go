package sentiment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/storage"
)

type fakeChatter struct {
	gotModel  string
	gotMsgs   []proxy.ChatMessage
	gotFormat *proxy.ResponseFormat
	response  string
	err       error
}

func (f *fakeChatter) Complete(ctx context.Context, model string, msgs []proxy.ChatMessage, format *proxy.ResponseFormat) (string, error) {
	f.gotModel = model
	f.gotMsgs = msgs
	f.gotFormat = format
	return f.response, f.err
}

func TestAnalyzeParsesReport(t *testing.T) {
	llm := &fakeChatter{response: `{
		"overall_score": -35,
		"sentiment_label": "negative",
		"positive_count": 2,
		"negative_count": 7,
		"neutral_count": 3,
		"key_themes": ["trade deficit", "currency pressure"]
	}`}
	a := NewAnalyzer(llm, "test-model")

	src := storage.DataSource{ID: "src-1", Name: "bulletin", Content: "exports fell sharply"}
	got, err := a.Analyze(context.Background(), src)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got.OverallScore != -35 || got.Label != "negative" {
		t.Errorf("report = %+v", got)
	}
	if got.PositiveCount != 2 || got.NegativeCount != 7 || got.NeutralCount != 3 {
		t.Errorf("counts = %d/%d/%d", got.PositiveCount, got.NegativeCount, got.NeutralCount)
	}
	if len(got.KeyThemes) != 2 {
		t.Errorf("themes = %v", got.KeyThemes)
	}

	if llm.gotModel != "test-model" {
		t.Errorf("model = %q", llm.gotModel)
	}
	if llm.gotFormat == nil || llm.gotFormat.Type != "json_schema" {
		t.Errorf("format = %+v, want json_schema", llm.gotFormat)
	}
	if len(llm.gotMsgs) != 1 || !strings.Contains(llm.gotMsgs[0].Content, "exports fell sharply") {
		t.Errorf("prompt missing content: %+v", llm.gotMsgs)
	}
}

func TestAnalyzeTruncatesLongContent(t *testing.T) {
	llm := &fakeChatter{response: `{"overall_score":0,"sentiment_label":"neutral","positive_count":0,"negative_count":0,"neutral_count":1,"key_themes":[]}`}
	a := NewAnalyzer(llm, "m")

	src := storage.DataSource{Content: strings.Repeat("x", 15000)}
	if _, err := a.Analyze(context.Background(), src); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !strings.Contains(llm.gotMsgs[0].Content, strings.Repeat("x", maxContentChars)+"...") {
		t.Error("content not truncated with ellipsis")
	}
	if strings.Contains(llm.gotMsgs[0].Content, strings.Repeat("x", maxContentChars+1)) {
		t.Error("content exceeds truncation limit")
	}
}

func TestAnalyzeTruncatesOnRuneBoundary(t *testing.T) {
	llm := &fakeChatter{response: `{"overall_score":0,"sentiment_label":"neutral","positive_count":0,"negative_count":0,"neutral_count":1,"key_themes":[]}`}
	a := NewAnalyzer(llm, "m")

	src := storage.DataSource{Content: strings.Repeat("ã", maxContentChars+50)}
	if _, err := a.Analyze(context.Background(), src); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	prompt := llm.gotMsgs[0].Content
	if !utf8.ValidString(prompt) {
		t.Error("prompt contains an invalid UTF-8 sequence")
	}
	if !strings.Contains(prompt, strings.Repeat("ã", maxContentChars)+"...") {
		t.Error("content not truncated at the character limit")
	}
}

func TestAnalyzeFallsBackToMetadata(t *testing.T) {
	llm := &fakeChatter{response: `{"overall_score":10,"sentiment_label":"positive","positive_count":1,"negative_count":0,"neutral_count":0,"key_themes":[]}`}
	a := NewAnalyzer(llm, "m")

	src := storage.DataSource{Name: "Trade bulletin", URL: "https://example.com/feed"}
	if _, err := a.Analyze(context.Background(), src); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !strings.Contains(llm.gotMsgs[0].Content, "Trade bulletin") {
		t.Error("fallback prompt missing source name")
	}
}

func TestAnalyzeRejectsOutOfRangeScore(t *testing.T) {
	llm := &fakeChatter{response: `{"overall_score":250,"sentiment_label":"positive","positive_count":0,"negative_count":0,"neutral_count":0,"key_themes":[]}`}
	a := NewAnalyzer(llm, "m")

	if _, err := a.Analyze(context.Background(), storage.DataSource{Content: "x"}); err == nil {
		t.Fatal("expected error on out-of-range score")
	}
}

func TestAnalyzeCapsThemes(t *testing.T) {
	llm := &fakeChatter{response: `{"overall_score":0,"sentiment_label":"neutral","positive_count":0,"negative_count":0,"neutral_count":0,"key_themes":["a","b","c","d","e","f","g"]}`}
	a := NewAnalyzer(llm, "m")

	got, err := a.Analyze(context.Background(), storage.DataSource{Content: "x"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got.KeyThemes) != 5 {
		t.Errorf("themes = %d, want capped at 5", len(got.KeyThemes))
	}
}

func TestAnalyzePropagatesLLMError(t *testing.T) {
	llm := &fakeChatter{err: errors.New("upstream down")}
	a := NewAnalyzer(llm, "m")

	if _, err := a.Analyze(context.Background(), storage.DataSource{Content: "x"}); err == nil {
		t.Fatal("expected error from llm failure")
	}
}

func TestAnalyzeBadJSON(t *testing.T) {
	llm := &fakeChatter{response: "not json"}
	a := NewAnalyzer(llm, "m")

	if _, err := a.Analyze(context.Background(), storage.DataSource{Content: "x"}); err == nil {
		t.Fatal("expected error on malformed response")
	}
}
