package models

import "time"

// Sentiment is the lexical polarity of an AI reply
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Exchange represents one recorded user utterance / AI reply pair
type Exchange struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	UserUtterance  string    `json:"user_utterance"`
	AIReply        string    `json:"ai_reply"`
	ImageRef       string    `json:"image_ref,omitempty"`
	DetectedItems  []string  `json:"detected_items"`
	DetectedColors []string  `json:"detected_colors"`
	Sentiment      Sentiment `json:"sentiment"`
}

// ExchangeMetadata overrides the derived fields of an Exchange.
// Nil slices mean "extract from the reply".
type ExchangeMetadata struct {
	ImageRef       string
	DetectedItems  []string
	DetectedColors []string
}

// ReferenceResolution is the outcome of matching a deictic phrase against
// earlier exchanges
type ReferenceResolution struct {
	HasReference     bool      `json:"has_reference"`
	ReferredColor    string    `json:"referred_color,omitempty"`
	ReferredItem     string    `json:"referred_item,omitempty"`
	ReferredExchange *Exchange `json:"referred_exchange,omitempty"`
	ContextHint      string    `json:"context_hint,omitempty"`
}

// IntentType categorises a raw utterance
type IntentType string

const (
	IntentCompliment IntentType = "compliment"
	IntentSuggestion IntentType = "suggestion"
	IntentRating     IntentType = "rating"
	IntentComparison IntentType = "comparison"
	IntentGeneral    IntentType = "general"
)

// Intent is the result of utterance analysis
type Intent struct {
	Type     IntentType `json:"type"`
	Keywords []string   `json:"keywords"`
}

// ImageMetadata is structured information about the image under discussion,
// supplied by the caller (for example an on-device color detector)
type ImageMetadata struct {
	DominantColor string `json:"dominant_color,omitempty"`
	ClothingType  string `json:"clothing_type,omitempty"`
}

// Phase tags a StreamToken with its position in a progressive response
type Phase string

const (
	PhaseAcknowledgment Phase = "acknowledgment"
	PhaseStreaming      Phase = "streaming"
	PhaseComplete       Phase = "complete"
)

// StreamToken is one emitted unit of a progressive response
type StreamToken struct {
	Text      string `json:"text"`
	Phase     Phase  `json:"phase"`
	ElapsedMs int64  `json:"elapsed_ms"`
}
