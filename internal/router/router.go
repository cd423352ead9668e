// Package router dispatches a prompt (and optional image) to the backend
// family named by a model descriptor and returns the reply as plain text.
package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

const DefaultTimeout = 60 * time.Second

// Backend performs exactly one request against a provider family
type Backend interface {
	Complete(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error)
}

type Config struct {
	GeminiAPIKey string
	// Tokens holds bearer tokens for OpenAI-compatible providers; providers
	// without an entry are called keyless.
	Tokens     map[models.Provider]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Router struct {
	gemini  Backend
	chat    Backend
	timeout time.Duration
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Router {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return NewWithBackends(
		NewGeminiBackend(cfg.GeminiAPIKey, client),
		NewChatBackend(cfg.Tokens, client),
		cfg.Timeout,
		logger,
	)
}

func NewWithBackends(gemini, chat Backend, timeout time.Duration, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{
		gemini:  gemini,
		chat:    chat,
		timeout: timeout,
		logger:  logger,
	}
}

// Route sends one request to the backend selected by model.Provider.
// Gemini descriptors go to the generateContent REST call; every other
// provider goes to the OpenAI-compatible chat completion endpoint.
// There is no retry at this layer.
func (r *Router) Route(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	bound := timeoutBound(ctx, r.timeout)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	backend := r.chat
	if model.Provider == models.ProviderGemini {
		backend = r.gemini
	}

	started := time.Now()
	text, err := backend.Complete(ctx, model, ToDataURI(imageRef), prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &apperr.TimeoutError{Provider: string(model.Provider), Bound: bound, Err: err}
		}
		r.logger.Warn("Model call failed",
			zap.String("model_id", model.ID),
			zap.String("provider", string(model.Provider)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return "", err
	}

	r.logger.Debug("Model call finished",
		zap.String("model_id", model.ID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("reply_len", len(text)))
	return text, nil
}

// timeoutBound is the effective deadline of a call: the router timeout, or
// the caller's remaining time when that is shorter. It never drops below 1ms.
func timeoutBound(ctx context.Context, timeout time.Duration) time.Duration {
	bound := timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < bound {
			bound = remaining.Round(time.Millisecond)
		}
	}
	if bound < time.Millisecond {
		bound = time.Millisecond
	}
	return bound
}

// ToDataURI normalises an image reference: data URIs and http(s) URLs are
// kept, bare base64 payloads get a JPEG data URI prefix.
func ToDataURI(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "data:"),
		strings.HasPrefix(ref, "http://"),
		strings.HasPrefix(ref, "https://"):
		return ref
	default:
		return "data:image/jpeg;base64," + ref
	}
}

// splitDataURI returns the mime type and base64 payload of a data URI
func splitDataURI(uri string) (mimeType, data string) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return "image/jpeg", uri
	}
	mimeType = strings.TrimPrefix(header, "data:")
	mimeType, _, _ = strings.Cut(mimeType, ";")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType, payload
}
