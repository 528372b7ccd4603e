package persona

import "strings"

// TopicDetector classifies a free-text query into zero or more topic tags.
// The keyword implementation below is a deliberate stand-in for real topic
// classification; keep callers on the interface so it can be swapped for an
// embedding-based detector without touching the accumulator or composer.
type TopicDetector interface {
	Detect(query string) []string
}

// topicOrder fixes the output order of detected tags.
var topicOrder = []string{
	"brics",
	"global_trade",
	"competitiveness",
	"geopolitics",
	"emerging_markets",
	"sustainability",
	"economic_diplomacy",
	"financial_markets",
}

// topicKeywords is the bilingual (Portuguese/English) detection lexicon.
var topicKeywords = map[string][]string{
	"brics":              {"brics", "ndb", "nova ordem", "multipolaridade", "bloco"},
	"global_trade":       {"comércio", "trade", "exportação", "importação", "balança"},
	"competitiveness":    {"competitividade", "produtividade", "eficiência", "competir"},
	"geopolitics":        {"geopolítica", "geopolitics", "diplomacia", "relações internacionais"},
	"emerging_markets":   {"emergentes", "emerging", "desenvolvimento", "crescimento"},
	"sustainability":     {"sustentabilidade", "sustainability", "esg", "verde", "clima"},
	"economic_diplomacy": {"diplomacia econômica", "economic diplomacy", "negociação"},
	"financial_markets":  {"mercado", "bolsa", "ações", "investimento", "financeiro"},
}

// topicLabels maps tags to human-readable labels for suggestions.
var topicLabels = map[string]string{
	"brics":              "BRICS and Multipolarity",
	"global_trade":       "Global Trade",
	"competitiveness":    "Competitiveness",
	"geopolitics":        "Geopolitics",
	"emerging_markets":   "Emerging Markets",
	"sustainability":     "Sustainability",
	"economic_diplomacy": "Economic Diplomacy",
	"financial_markets":  "Financial Markets",
}

// TopicLabel returns the display label for a tag. Tags absent from the
// table pass through unchanged.
func TopicLabel(tag string) string {
	if label, ok := topicLabels[tag]; ok {
		return label
	}
	return tag
}

// Topics returns all known topic tags in declaration order.
func Topics() []string {
	out := make([]string, len(topicOrder))
	copy(out, topicOrder)
	return out
}

// Lexicon returns a copy of the keyword table keyed by topic tag.
func Lexicon() map[string][]string {
	out := make(map[string][]string, len(topicKeywords))
	for tag, words := range topicKeywords {
		cp := make([]string, len(words))
		copy(cp, words)
		out[tag] = cp
	}
	return out
}

// KeywordDetector matches topic keywords as case-insensitive substrings.
type KeywordDetector struct{}

// Detect returns the tags whose lexicon contains at least one keyword
// occurring in the query. Empty input yields an empty set.
func (KeywordDetector) Detect(query string) []string {
	if query == "" {
		return nil
	}
	lower := strings.ToLower(query)

	var detected []string
	for _, topic := range topicOrder {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(lower, kw) {
				detected = append(detected, topic)
				break
			}
		}
	}
	return detected
}
