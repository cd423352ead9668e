// Package stream paces an already-complete AI reply out to a caller as a
// progressive response: an instant acknowledgment followed by word chunks.
package stream

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

const (
	DefaultWordsPerChunk = 3
	DefaultChunkDelay    = 80 * time.Millisecond
	DefaultAckPause      = 200 * time.Millisecond
)

type Config struct {
	WordsPerChunk int
	ChunkDelay    time.Duration
	AckPause      time.Duration
	InstantAck    bool
}

func DefaultConfig() Config {
	return Config{
		WordsPerChunk: DefaultWordsPerChunk,
		ChunkDelay:    DefaultChunkDelay,
		AckPause:      DefaultAckPause,
		InstantAck:    true,
	}
}

// Rand is the random source used for phrase selection. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// ChunkFunc receives one chunk of a streamed reply
type ChunkFunc func(text string, first, last bool) error

// TokenFunc receives one token of a progressive response
type TokenFunc func(token models.StreamToken) error

type Option func(*Emitter)

func WithRand(r Rand) Option {
	return func(e *Emitter) { e.rnd = r }
}

func WithSleep(fn SleepFunc) Option {
	return func(e *Emitter) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// Emitter is safe for concurrent use; each call owns its own stream state.
type Emitter struct {
	cfg   Config
	mu    sync.Mutex
	rnd   Rand
	sleep SleepFunc
	now   func() time.Time
}

func NewEmitter(cfg Config, opts ...Option) *Emitter {
	if cfg.WordsPerChunk <= 0 {
		cfg.WordsPerChunk = DefaultWordsPerChunk
	}
	e := &Emitter{
		cfg:   cfg,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sleep waits for d, returning early with ctx.Err() on cancellation
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Emitter) pick(options []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return options[e.rnd.Intn(len(options))]
}

// Chunk is one slice of words from a reply
type Chunk struct {
	Text  string
	First bool
	Last  bool
}

// ChunkStream is a lazy, finite, single-use sequence of reply chunks.
// Each Next waits for the configured chunk delay before returning.
type ChunkStream struct {
	chunks []string
	pos    int
	delay  time.Duration
	sleep  SleepFunc
}

// Chunks splits fullText on whitespace into groups of WordsPerChunk words
func (e *Emitter) Chunks(fullText string) *ChunkStream {
	words := strings.Fields(fullText)
	size := e.cfg.WordsPerChunk
	chunks := make([]string, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " ")+" ")
	}
	return &ChunkStream{
		chunks: chunks,
		delay:  e.cfg.ChunkDelay,
		sleep:  e.sleep,
	}
}

// Len is the total number of chunks, consumed or not
func (s *ChunkStream) Len() int {
	return len(s.chunks)
}

// Next returns the next chunk, io.EOF once exhausted, or ctx.Err() if the
// context is cancelled while waiting.
func (s *ChunkStream) Next(ctx context.Context) (Chunk, error) {
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	if err := s.sleep(ctx, s.delay); err != nil {
		return Chunk{}, err
	}
	i := s.pos
	s.pos++
	return Chunk{
		Text:  s.chunks[i],
		First: i == 0,
		Last:  i == len(s.chunks)-1,
	}, nil
}

// StreamResponse pushes every chunk of fullText to onChunk in word order.
// It returns after the last callback returns, on the first sink error, or
// when ctx is cancelled.
func (e *Emitter) StreamResponse(ctx context.Context, fullText string, onChunk ChunkFunc) error {
	chunks := e.Chunks(fullText)
	for {
		c, err := chunks.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := onChunk(c.Text, c.First, c.Last); err != nil {
			return &apperr.SinkError{Err: err}
		}
	}
}

// CreateProgressiveResponse emits an acknowledgment token (when enabled),
// pauses, then streams fullAIResponse. The final token carries
// PhaseComplete. ElapsedMs is measured from the start of this call.
func (e *Emitter) CreateProgressiveResponse(ctx context.Context, userUtterance, fullAIResponse string, onToken TokenFunc) error {
	start := e.now()
	elapsed := func() int64 { return e.now().Sub(start).Milliseconds() }

	if e.cfg.InstantAck {
		ack := models.StreamToken{
			Text:      e.GetInstantAcknowledgment(userUtterance) + " ",
			Phase:     models.PhaseAcknowledgment,
			ElapsedMs: elapsed(),
		}
		if err := onToken(ack); err != nil {
			return &apperr.SinkError{Err: err}
		}
		if err := e.sleep(ctx, e.cfg.AckPause); err != nil {
			return err
		}
	}

	chunks := e.Chunks(fullAIResponse)
	if chunks.Len() == 0 {
		if err := onToken(models.StreamToken{Phase: models.PhaseComplete, ElapsedMs: elapsed()}); err != nil {
			return &apperr.SinkError{Err: err}
		}
		return nil
	}

	for {
		c, err := chunks.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		phase := models.PhaseStreaming
		if c.Last {
			phase = models.PhaseComplete
		}
		if err := onToken(models.StreamToken{Text: c.Text, Phase: phase, ElapsedMs: elapsed()}); err != nil {
			return &apperr.SinkError{Err: err}
		}
	}
}
