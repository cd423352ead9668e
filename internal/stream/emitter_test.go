package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

type fixedRand int

func (r fixedRand) Intn(n int) int { return int(r) % n }

type recordingSleeper struct {
	calls []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newTestEmitter(cfg Config) (*Emitter, *recordingSleeper) {
	s := &recordingSleeper{}
	return NewEmitter(cfg, WithRand(fixedRand(0)), WithSleep(s.sleep)), s
}

func TestStreamResponse_ChunkOrder(t *testing.T) {
	e, sleeper := newTestEmitter(DefaultConfig())

	var got strings.Builder
	var lastFlags []bool
	calls := 0
	err := e.StreamResponse(context.Background(), "a b c d e f g", func(text string, first, last bool) error {
		if calls == 0 && !first {
			t.Error("first chunk not flagged first")
		}
		if calls > 0 && first {
			t.Error("later chunk flagged first")
		}
		calls++
		got.WriteString(text)
		lastFlags = append(lastFlags, last)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamResponse: %v", err)
	}
	if got.String() != "a b c d e f g " {
		t.Errorf("expected %q, got %q", "a b c d e f g ", got.String())
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	for i, last := range lastFlags {
		if last != (i == len(lastFlags)-1) {
			t.Errorf("chunk %d: last=%v", i, last)
		}
	}
	if len(sleeper.calls) != 3 || sleeper.calls[0] != DefaultChunkDelay {
		t.Errorf("expected 3 sleeps of %s, got %v", DefaultChunkDelay, sleeper.calls)
	}
}

func TestStreamResponse_SinkErrorStops(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())
	boom := errors.New("boom")
	calls := 0
	err := e.StreamResponse(context.Background(), "one two three four five six seven", func(string, bool, bool) error {
		calls++
		return boom
	})
	var sinkErr *apperr.SinkError
	if !errors.As(err, &sinkErr) || !errors.Is(err, boom) {
		t.Fatalf("expected SinkError wrapping boom, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected emission to halt after 1 call, got %d", calls)
	}
}

func TestStreamResponse_Cancelled(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := e.StreamResponse(ctx, "a b c d e f g h i", func(string, bool, bool) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no chunks after cancellation, got %d calls", calls)
	}
}

func TestChunkStream_Pull(t *testing.T) {
	e, _ := newTestEmitter(Config{WordsPerChunk: 2})
	s := e.Chunks("  one two\nthree  ")
	if s.Len() != 2 {
		t.Fatalf("expected 2 chunks, got %d", s.Len())
	}
	ctx := context.Background()
	c1, err := s.Next(ctx)
	if err != nil || c1.Text != "one two " || !c1.First || c1.Last {
		t.Fatalf("unexpected first chunk %+v, %v", c1, err)
	}
	c2, err := s.Next(ctx)
	if err != nil || c2.Text != "three " || !c2.Last {
		t.Fatalf("unexpected second chunk %+v, %v", c2, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	// not restartable
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on reuse, got %v", err)
	}
}

func TestCreateProgressiveResponse_PhaseOrder(t *testing.T) {
	e, sleeper := newTestEmitter(DefaultConfig())

	var tokens []models.StreamToken
	err := e.CreateProgressiveResponse(context.Background(), "How does my outfit look?",
		"You look sharp in that navy blazer today", func(tok models.StreamToken) error {
			tokens = append(tokens, tok)
			return nil
		})
	if err != nil {
		t.Fatalf("CreateProgressiveResponse: %v", err)
	}

	if len(tokens) != 4 {
		t.Fatalf("expected ack + 3 chunks, got %d tokens", len(tokens))
	}
	if tokens[0].Phase != models.PhaseAcknowledgment {
		t.Errorf("first token phase %s", tokens[0].Phase)
	}
	if tokens[0].Text != "Let me take a look at your outfit... " {
		t.Errorf("unexpected acknowledgment %q", tokens[0].Text)
	}
	acks, completes := 0, 0
	for i, tok := range tokens {
		switch tok.Phase {
		case models.PhaseAcknowledgment:
			acks++
		case models.PhaseComplete:
			completes++
			if i != len(tokens)-1 {
				t.Errorf("complete token at position %d", i)
			}
		}
	}
	if acks != 1 || completes != 1 {
		t.Errorf("expected one ack and one complete, got %d and %d", acks, completes)
	}
	if tokens[1].Phase != models.PhaseStreaming {
		t.Errorf("expected streaming after ack, got %s", tokens[1].Phase)
	}
	if sleeper.calls[0] != DefaultAckPause {
		t.Errorf("expected ack pause first, got %v", sleeper.calls)
	}
}

func TestCreateProgressiveResponse_ElapsedFromCallStart(t *testing.T) {
	s := &recordingSleeper{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	clock := func() time.Time {
		step++
		return base.Add(time.Duration(step) * 100 * time.Millisecond)
	}
	e := NewEmitter(DefaultConfig(), WithRand(fixedRand(0)), WithSleep(s.sleep), WithClock(clock))

	var elapsed []int64
	err := e.CreateProgressiveResponse(context.Background(), "hi", "one two three four", func(tok models.StreamToken) error {
		elapsed = append(elapsed, tok.ElapsedMs)
		return nil
	})
	if err != nil {
		t.Fatalf("CreateProgressiveResponse: %v", err)
	}
	for i := 1; i < len(elapsed); i++ {
		if elapsed[i] <= elapsed[i-1] {
			t.Errorf("elapsed not increasing: %v", elapsed)
		}
	}
	if elapsed[0] != 100 {
		t.Errorf("expected first token 100ms after start, got %d", elapsed[0])
	}
}

func TestCreateProgressiveResponse_NoAck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InstantAck = false
	e, sleeper := newTestEmitter(cfg)

	var phases []models.Phase
	err := e.CreateProgressiveResponse(context.Background(), "hi", "one", func(tok models.StreamToken) error {
		phases = append(phases, tok.Phase)
		return nil
	})
	if err != nil {
		t.Fatalf("CreateProgressiveResponse: %v", err)
	}
	if len(phases) != 1 || phases[0] != models.PhaseComplete {
		t.Errorf("expected single complete token, got %v", phases)
	}
	for _, d := range sleeper.calls {
		if d == DefaultAckPause {
			t.Error("ack pause should be skipped")
		}
	}
}

func TestCreateProgressiveResponse_EmptyReply(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())
	var tokens []models.StreamToken
	err := e.CreateProgressiveResponse(context.Background(), "hi", "   ", func(tok models.StreamToken) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("CreateProgressiveResponse: %v", err)
	}
	if len(tokens) != 2 || tokens[1].Phase != models.PhaseComplete || tokens[1].Text != "" {
		t.Errorf("expected ack + empty complete token, got %+v", tokens)
	}
}

func TestCreateProgressiveResponse_AckSinkError(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())
	calls := 0
	err := e.CreateProgressiveResponse(context.Background(), "hi", "a b c", func(models.StreamToken) error {
		calls++
		return errors.New("closed")
	})
	var sinkErr *apperr.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestGetInstantAcknowledgment_Buckets(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())
	tests := []struct {
		utterance string
		bucket    string
	}{
		{"How do I look?", "how_look"},
		{"how is this outfit", "how_look"},
		{"What do you think?", "what_think"},
		{"What about shoes", "what_think"},
		{"Is this color right?", "color"},
		{"nice shade", "color"},
		{"hello", "general"},
	}
	for _, tt := range tests {
		got := e.GetInstantAcknowledgment(tt.utterance)
		if got != acknowledgments[tt.bucket][0] {
			t.Errorf("%q: expected %q, got %q", tt.utterance, acknowledgments[tt.bucket][0], got)
		}
	}
}

func TestTryQuickTemplate(t *testing.T) {
	e, _ := newTestEmitter(DefaultConfig())

	if _, ok := e.TryQuickTemplate("how do I look", nil); ok {
		t.Error("expected no template without metadata")
	}

	got, ok := e.TryQuickTemplate("How does the color look?", &models.ImageMetadata{DominantColor: "red"})
	if !ok || got != "That red outfit really suits you!" {
		t.Errorf("unexpected color template %q", got)
	}

	got, ok = e.TryQuickTemplate("thoughts?", &models.ImageMetadata{DominantColor: "red", ClothingType: "dress"})
	if !ok || got != "That dress is a great choice!" {
		t.Errorf("unexpected style template %q", got)
	}

	if _, ok := e.TryQuickTemplate("thoughts?", &models.ImageMetadata{DominantColor: "red"}); ok {
		t.Error("expected no template when color is not asked about and no clothing type")
	}
}
