// Package stylist runs one conversation turn end to end: intent and
// reference analysis, template shortcut or model call, progressive delivery
// and context bookkeeping.
package stylist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/classifier"
	"github.com/xaenox/stylist-bot/internal/contextstore"
	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/storage"
	"github.com/xaenox/stylist-bot/internal/stream"
	"github.com/xaenox/stylist-bot/internal/vision"
)

const systemPrompt = `You are a friendly personal fashion stylist. Give honest, specific and encouraging advice about the user's outfit in two to four sentences. Mention colors and clothing items by name.`

type ModelRouter interface {
	Route(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error)
}

type VisionAnalyzer interface {
	Analyze(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error)
}

type ModelSelector interface {
	Current(ctx context.Context) models.ModelDescriptor
}

// Enricher supplies item/color metadata for a finished reply
type Enricher interface {
	Enrich(ctx context.Context, reply string) (*models.ExchangeMetadata, error)
}

// Deps are shared by every session. Archive and Enricher are optional.
type Deps struct {
	Classifier classifier.TextClassifier
	Emitter    *stream.Emitter
	Router     ModelRouter
	Vision     VisionAnalyzer
	Selector   ModelSelector
	Archive    storage.ExchangeArchive
	Enricher   Enricher
	MaxHistory int
	Logger     *zap.Logger
}

type Request struct {
	Text string
	// Image is sent to the model: an http(s) URL, a data URI or bare base64
	Image string
	// ImageRef is the opaque identifier recorded with the exchange
	ImageRef string
	Metadata *models.ImageMetadata
	// ForceModel skips the quick template shortcut
	ForceModel bool
}

type Source string

const (
	SourceTemplate Source = "template"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

type Reply struct {
	Text      string                     `json:"text"`
	Source    Source                     `json:"source"`
	ModelID   string                     `json:"model_id,omitempty"`
	Intent    models.Intent              `json:"intent"`
	Reference models.ReferenceResolution `json:"reference"`
	Exchange  *models.Exchange           `json:"exchange"`
}

// Session owns the context memory of one conversation. Respond calls on the
// same session run one at a time.
type Session struct {
	id     string
	deps   Deps
	memory *contextstore.Memory

	mu sync.Mutex
}

func NewSession(id string, deps Deps) *Session {
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewKeywordClassifier()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Session{
		id:     id,
		deps:   deps,
		memory: contextstore.New(deps.MaxHistory, deps.Classifier),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Memory() *contextstore.Memory {
	return s.memory
}

// Respond answers one utterance and streams the answer to onToken
func (s *Session) Respond(ctx context.Context, req Request, onToken stream.TokenFunc) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.deps.Logger.With(zap.String("session_id", s.id))
	started := time.Now()

	intent := s.deps.Classifier.AnalyzeIntent(req.Text)
	ref := s.memory.ResolveReference(req.Text)

	reply := &Reply{Intent: intent, Reference: ref}

	if quick, ok := s.tryTemplate(req); ok {
		reply.Text = quick
		reply.Source = SourceTemplate
	} else {
		model := s.deps.Selector.Current(ctx)
		prompt := s.buildPrompt(req.Text, intent, ref)

		var (
			text string
			err  error
		)
		if req.Image != "" && s.deps.Vision != nil {
			text, err = s.deps.Vision.Analyze(ctx, model, req.Image, prompt)
		} else {
			text, err = s.deps.Router.Route(ctx, model, req.Image, prompt)
		}
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model.ID, err)
		}
		reply.Text = text
		reply.ModelID = model.ID
		reply.Source = SourceModel
		if text == vision.FallbackMessage {
			reply.Source = SourceFallback
		}
	}

	if err := s.deps.Emitter.CreateProgressiveResponse(ctx, req.Text, reply.Text, onToken); err != nil {
		return nil, err
	}

	meta := s.exchangeMetadata(ctx, req, reply, logger)
	reply.Exchange = s.memory.AddExchange(req.Text, reply.Text, meta)

	if s.deps.Archive != nil {
		if err := s.deps.Archive.SaveExchange(ctx, s.id, reply.Exchange); err != nil {
			logger.Error("Failed to archive exchange",
				zap.Error(err),
				zap.String("exchange_id", reply.Exchange.ID))
		}
	}

	logger.Info("Responded",
		zap.String("intent", string(intent.Type)),
		zap.String("source", string(reply.Source)),
		zap.String("model_id", reply.ModelID),
		zap.Bool("has_reference", ref.HasReference),
		zap.Duration("elapsed", time.Since(started)))
	return reply, nil
}

func (s *Session) tryTemplate(req Request) (string, bool) {
	if req.ForceModel {
		return "", false
	}
	return s.deps.Emitter.TryQuickTemplate(req.Text, req.Metadata)
}

func (s *Session) exchangeMetadata(ctx context.Context, req Request, reply *Reply, logger *zap.Logger) *models.ExchangeMetadata {
	imageRef := req.ImageRef
	if imageRef == "" && (strings.HasPrefix(req.Image, "http://") || strings.HasPrefix(req.Image, "https://")) {
		imageRef = req.Image
	}

	meta := &models.ExchangeMetadata{ImageRef: imageRef}
	switch {
	case reply.Source == SourceTemplate && req.Metadata != nil:
		if req.Metadata.ClothingType != "" {
			meta.DetectedItems = []string{req.Metadata.ClothingType}
		}
		if req.Metadata.DominantColor != "" {
			meta.DetectedColors = []string{req.Metadata.DominantColor}
		}
	case reply.Source == SourceModel && s.deps.Enricher != nil:
		enriched, err := s.deps.Enricher.Enrich(ctx, reply.Text)
		if err != nil {
			logger.Warn("Failed to enrich exchange, using keyword extraction", zap.Error(err))
			break
		}
		meta.DetectedItems = enriched.DetectedItems
		meta.DetectedColors = enriched.DetectedColors
	}
	return meta
}

func (s *Session) buildPrompt(text string, intent models.Intent, ref models.ReferenceResolution) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")

	if history := s.memory.BuildContextPrompt(); history != "" {
		b.WriteString(history)
		b.WriteString("\n")
	}

	if ref.ReferredExchange != nil {
		fmt.Fprintf(&b, "%s. Earlier they asked %q and you replied %q.\n",
			ref.ContextHint, ref.ReferredExchange.UserUtterance, ref.ReferredExchange.AIReply)
	} else if ref.HasReference {
		b.WriteString("The user is referring to something discussed earlier in this conversation.\n")
	}

	switch intent.Type {
	case models.IntentSuggestion:
		b.WriteString("They want concrete suggestions for what to wear or pair.\n")
	case models.IntentRating:
		b.WriteString("They want a rating out of 10 with a short justification.\n")
	case models.IntentComparison:
		b.WriteString("They want you to compare options and pick one.\n")
	case models.IntentCompliment:
		b.WriteString("They want to know how they look.\n")
	}
	if len(intent.Keywords) > 0 {
		fmt.Fprintf(&b, "Colors mentioned: %s.\n", strings.Join(intent.Keywords, ", "))
	}

	fmt.Fprintf(&b, "\nUser: %s", text)
	return b.String()
}

// Restore reloads the newest archived exchanges into an empty window
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(ctx)
}

// restoreLocked expects s.mu to be held
func (s *Session) restoreLocked(ctx context.Context) error {
	if s.deps.Archive == nil || s.memory.Len() > 0 {
		return nil
	}
	limit := s.deps.MaxHistory
	if limit <= 0 {
		limit = contextstore.DefaultMaxHistory
	}
	exchanges, err := s.deps.Archive.GetSessionExchanges(ctx, s.id, limit)
	if err != nil {
		return fmt.Errorf("restore session %s: %w", s.id, err)
	}
	s.memory.Restore(exchanges)
	return nil
}

// Reset clears the window and the archived history of this conversation
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory.ClearContext()
	if s.deps.Archive != nil {
		if err := s.deps.Archive.DeleteSession(ctx, s.id); err != nil {
			return fmt.Errorf("reset session %s: %w", s.id, err)
		}
	}
	return nil
}

// History returns archived exchanges when an archive is configured, else the
// current window
func (s *Session) History(ctx context.Context, limit int) ([]*models.Exchange, error) {
	if s.deps.Archive != nil {
		return s.deps.Archive.GetSessionExchanges(ctx, s.id, limit)
	}
	exchanges := s.memory.Exchanges()
	if limit > 0 && len(exchanges) > limit {
		exchanges = exchanges[len(exchanges)-limit:]
	}
	return exchanges, nil
}
