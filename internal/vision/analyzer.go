// Package vision wraps image-analysis model calls with retries, escalating
// per-attempt timeouts and a canned reply for an unreachable vision proxy.
package vision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/stream"
)

const (
	DefaultMaxRetries  = 3
	DefaultGatewayWait = 5 * time.Second

	baseBackoff     = 2 * time.Second
	maxBackoff      = 8 * time.Second
	baseTimeout     = 10 * time.Second
	timeoutIncrease = 5 * time.Second
)

// FallbackMessage is returned instead of an error when every attempt failed
// because the vision gateway was unreachable
const FallbackMessage = "I'm having trouble seeing your photo clearly right now, but from what I can tell you've put real thought into this look. Try sending it again in a moment for a detailed review!"

// Completer is the single-attempt model call being retried
type Completer interface {
	Route(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error)
}

type Config struct {
	MaxRetries  int
	GatewayWait time.Duration
}

type Analyzer struct {
	completer Completer
	cfg       Config
	sleep     stream.SleepFunc
	logger    *zap.Logger
}

func NewAnalyzer(completer Completer, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.GatewayWait <= 0 {
		cfg.GatewayWait = DefaultGatewayWait
	}
	return &Analyzer{
		completer: completer,
		cfg:       cfg,
		sleep:     stream.Sleep,
		logger:    logger,
	}
}

// AttemptTimeout is the request deadline for the given 1-based attempt
func AttemptTimeout(attempt int) time.Duration {
	return baseTimeout + time.Duration(attempt-1)*timeoutIncrease
}

// Backoff is the wait after a failed non-gateway attempt
func Backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// Analyze calls the model up to MaxRetries times. A final gateway failure
// yields FallbackMessage; any other final failure is returned wrapped with
// the attempt count.
func (a *Analyzer) Analyze(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout(attempt))
		text, err := a.completer.Route(attemptCtx, model, imageRef, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == a.cfg.MaxRetries {
			break
		}

		wait := Backoff(attempt)
		if apperr.IsGatewayUnavailable(err) {
			wait = a.cfg.GatewayWait
		}
		a.logger.Warn("Vision attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", a.cfg.MaxRetries),
			zap.Duration("wait", wait),
			zap.String("model_id", model.ID),
			zap.Error(err))
		if err := a.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	if apperr.IsGatewayUnavailable(lastErr) {
		a.logger.Error("Vision gateway unavailable, using fallback reply",
			zap.Int("attempts", a.cfg.MaxRetries),
			zap.String("model_id", model.ID),
			zap.Error(lastErr))
		return FallbackMessage, nil
	}
	return "", fmt.Errorf("vision analysis failed after %d attempts: %w", a.cfg.MaxRetries, lastErr)
}
