package classifier

import (
	"strings"
	"unicode"

	"github.com/xaenox/stylist-bot/internal/models"
)

// TextClassifier extracts intent, sentiment and fashion entities from text.
// Implementations must be deterministic for a given input.
type TextClassifier interface {
	AnalyzeIntent(utterance string) models.Intent
	Sentiment(text string) models.Sentiment
	ExtractItems(text string) []string
	ExtractColors(text string) []string
	IsReferential(utterance string) bool
}

var (
	clothingItems = []string{
		"t-shirt", "shirt", "blouse", "top", "sweater", "hoodie", "cardigan",
		"jacket", "coat", "blazer", "suit", "vest", "dress", "skirt", "pants",
		"trousers", "jeans", "shorts", "leggings", "shoes", "sneakers", "boots",
		"heels", "sandals", "hat", "cap", "scarf", "belt", "tie", "bag",
		"outfit",
	}

	colorNames = []string{
		"red", "blue", "green", "black", "white", "yellow", "pink", "purple",
		"orange", "brown", "gray", "grey", "beige", "navy", "maroon", "teal",
		"olive", "cream", "gold", "silver",
	}

	// intentColors is the smaller vocabulary used for utterance keywords
	intentColors = []string{
		"red", "blue", "green", "black", "white", "yellow", "pink", "purple",
	}

	positiveWords = []string{
		"great", "love", "amazing", "beautiful", "perfect", "stunning",
		"gorgeous", "nice", "excellent", "fantastic", "wonderful", "stylish",
		"elegant", "good",
	}

	negativeWords = []string{
		"bad", "ugly", "clash", "wrong", "avoid", "unflattering", "awkward",
		"poor", "dull", "boring", "mismatch", "don't",
	}

	referenceWords = map[string]struct{}{
		"this": {}, "that": {}, "previous": {}, "earlier": {}, "last": {},
		"other": {}, "one": {},
	}

	suggestionWords = []string{"suggest", "recommend", "should i wear", "what to wear", "ideas", "advice", "goes with", "pair with"}
	ratingWords     = []string{"rate", "rating", "score", "out of 10", "/10"}
	comparisonWords = []string{"compare", "better", "versus", " vs", "which one"}
)

// KeywordClassifier is the lexical, vocabulary-bound TextClassifier
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// AnalyzeIntent picks the first matching intent rule; rules are tested in a
// fixed order so at most one applies.
func (c *KeywordClassifier) AnalyzeIntent(utterance string) models.Intent {
	lower := strings.ToLower(utterance)

	keywords := make([]string, 0)
	for _, color := range intentColors {
		if strings.Contains(lower, color) {
			keywords = append(keywords, color)
		}
	}

	intent := models.Intent{Type: models.IntentGeneral, Keywords: keywords}
	switch {
	case containsAny(lower, suggestionWords):
		intent.Type = models.IntentSuggestion
	case containsAny(lower, ratingWords):
		intent.Type = models.IntentRating
	case containsAny(lower, comparisonWords):
		intent.Type = models.IntentComparison
	case strings.Contains(lower, "how") && strings.Contains(lower, "look"):
		intent.Type = models.IntentCompliment
	}
	return intent
}

// Sentiment counts lexicon hits; equal counts score neutral
func (c *KeywordClassifier) Sentiment(text string) models.Sentiment {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	switch {
	case pos > neg:
		return models.SentimentPositive
	case neg > pos:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func (c *KeywordClassifier) ExtractItems(text string) []string {
	return matchVocabulary(text, clothingItems)
}

func (c *KeywordClassifier) ExtractColors(text string) []string {
	return matchVocabulary(text, colorNames)
}

func (c *KeywordClassifier) IsReferential(utterance string) bool {
	for _, w := range words(utterance) {
		if _, ok := referenceWords[w]; ok {
			return true
		}
	}
	return false
}

// matchVocabulary returns vocabulary terms found as whole words (or simple
// plurals) in text, in order of first appearance, without duplicates.
func matchVocabulary(text string, vocab []string) []string {
	known := make(map[string]struct{}, len(vocab))
	for _, v := range vocab {
		known[v] = struct{}{}
	}

	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, w := range words(text) {
		term, ok := lookup(known, w)
		if !ok {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		result = append(result, term)
	}
	return result
}

func lookup(known map[string]struct{}, w string) (string, bool) {
	if _, ok := known[w]; ok {
		return w, true
	}
	for _, suffix := range []string{"es", "s"} {
		if stem := strings.TrimSuffix(w, suffix); stem != w {
			if _, ok := known[stem]; ok {
				return stem, true
			}
		}
	}
	return "", false
}

// words lowercases text and splits it on anything that is not a letter,
// digit, hyphen or apostrophe
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
