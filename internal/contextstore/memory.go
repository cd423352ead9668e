// Package contextstore keeps a bounded window of recent conversation
// exchanges and resolves references to them.
package contextstore

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xaenox/stylist-bot/internal/classifier"
	"github.com/xaenox/stylist-bot/internal/models"
)

const (
	DefaultMaxHistory = 5

	promptExchanges = 3
	maxQuoteRunes   = 50
)

var temporalWords = []string{"previous", "earlier", "last"}

// Memory is the per-conversation sliding window of exchanges.
// The window never holds more than maxHistory entries; totalExchanges counts
// every exchange ever added and only ClearContext resets it.
type Memory struct {
	mu             sync.RWMutex
	maxHistory     int
	exchanges      []*models.Exchange
	sessionStart   time.Time
	totalExchanges int
	classifier     classifier.TextClassifier
}

func New(maxHistory int, clf classifier.TextClassifier) *Memory {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if clf == nil {
		clf = classifier.NewKeywordClassifier()
	}
	return &Memory{
		maxHistory:   maxHistory,
		exchanges:    make([]*models.Exchange, 0, maxHistory),
		sessionStart: time.Now(),
		classifier:   clf,
	}
}

// AddExchange records a finished turn. Items and colors come from meta when
// supplied, otherwise from a keyword pass over the reply.
func (m *Memory) AddExchange(userUtterance, aiReply string, meta *models.ExchangeMetadata) *models.Exchange {
	ex := &models.Exchange{
		ID:            uuid.New().String(),
		Timestamp:     time.Now(),
		UserUtterance: userUtterance,
		AIReply:       aiReply,
		Sentiment:     m.classifier.Sentiment(aiReply),
	}
	if meta != nil {
		ex.ImageRef = meta.ImageRef
		ex.DetectedItems = dedupe(meta.DetectedItems)
		ex.DetectedColors = dedupe(meta.DetectedColors)
	}
	if ex.DetectedItems == nil {
		ex.DetectedItems = m.classifier.ExtractItems(aiReply)
	}
	if ex.DetectedColors == nil {
		ex.DetectedColors = m.classifier.ExtractColors(aiReply)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(ex)
	return ex
}

// Restore replays previously archived exchanges, oldest first
func (m *Memory) Restore(exchanges []*models.Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range exchanges {
		m.push(ex)
	}
}

func (m *Memory) push(ex *models.Exchange) {
	m.exchanges = append(m.exchanges, ex)
	if len(m.exchanges) > m.maxHistory {
		m.exchanges = m.exchanges[len(m.exchanges)-m.maxHistory:]
	}
	m.totalExchanges++
}

// ResolveReference matches a deictic utterance to an earlier exchange.
// Color matches win over item matches, which win over temporal words.
func (m *Memory) ResolveReference(userUtterance string) models.ReferenceResolution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.exchanges) == 0 || !m.classifier.IsReferential(userUtterance) {
		return models.ReferenceResolution{HasReference: false}
	}

	for _, color := range m.classifier.ExtractColors(userUtterance) {
		if ex := m.findNewest(func(ex *models.Exchange) bool { return contains(ex.DetectedColors, color) }); ex != nil {
			return models.ReferenceResolution{
				HasReference:     true,
				ReferredColor:    color,
				ReferredExchange: ex,
				ContextHint:      fmt.Sprintf("User is referring to the %s %s from earlier", color, firstOr(ex.DetectedItems, "outfit")),
			}
		}
	}

	for _, item := range m.classifier.ExtractItems(userUtterance) {
		if ex := m.findNewest(func(ex *models.Exchange) bool { return contains(ex.DetectedItems, item) }); ex != nil {
			return models.ReferenceResolution{
				HasReference:     true,
				ReferredItem:     item,
				ReferredExchange: ex,
				ContextHint:      fmt.Sprintf("User is referring to the %s discussed earlier", item),
			}
		}
	}

	lower := strings.ToLower(userUtterance)
	for _, w := range temporalWords {
		if strings.Contains(lower, w) && len(m.exchanges) >= 2 {
			ex := m.exchanges[len(m.exchanges)-2]
			return models.ReferenceResolution{
				HasReference:     true,
				ReferredExchange: ex,
				ContextHint:      fmt.Sprintf("User is referring to the previous exchange: %q", truncate(ex.UserUtterance)),
			}
		}
	}

	return models.ReferenceResolution{HasReference: true}
}

func (m *Memory) findNewest(match func(*models.Exchange) bool) *models.Exchange {
	for i := len(m.exchanges) - 1; i >= 0; i-- {
		if match(m.exchanges[i]) {
			return m.exchanges[i]
		}
	}
	return nil
}

// BuildContextPrompt summarises the most recent exchanges for a model prompt.
// It returns "" when nothing has been recorded.
func (m *Memory) BuildContextPrompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.exchanges) == 0 {
		return ""
	}

	start := len(m.exchanges) - promptExchanges
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, ex := range m.exchanges[start:] {
		topic := "general styling"
		if len(ex.DetectedItems) > 0 {
			topic = strings.Join(ex.DetectedItems, ", ")
		}
		fmt.Fprintf(&b, "- User asked %q, discussed %s", truncate(ex.UserUtterance), topic)
		switch ex.Sentiment {
		case models.SentimentPositive:
			b.WriteString(" (liked it)")
		case models.SentimentNegative:
			b.WriteString(" (didn't like it)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ClearContext starts a new session on the same instance
func (m *Memory) ClearContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = make([]*models.Exchange, 0, m.maxHistory)
	m.sessionStart = time.Now()
	m.totalExchanges = 0
}

// Exchanges returns the window, oldest first
func (m *Memory) Exchanges() []*models.Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exchanges)
}

func (m *Memory) TotalExchanges() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalExchanges
}

func (m *Memory) SessionStart() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionStart
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxQuoteRunes {
		return s
	}
	return string([]rune(s)[:maxQuoteRunes]) + "..."
}

func dedupe(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
