package stylist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/storage"
	"github.com/xaenox/stylist-bot/internal/stream"
	"github.com/xaenox/stylist-bot/internal/vision"
)

type fakeRouter struct {
	reply   string
	err     error
	calls   int
	prompts []string
	images  []string
}

func (f *fakeRouter) Route(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imageRef)
	return f.reply, f.err
}

type fakeVision struct {
	reply string
	calls int
}

func (f *fakeVision) Analyze(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	f.calls++
	return f.reply, nil
}

type fixedSelector struct{ model models.ModelDescriptor }

func (s fixedSelector) Current(ctx context.Context) models.ModelDescriptor { return s.model }

type fakeEnricher struct{}

func (fakeEnricher) Enrich(ctx context.Context, reply string) (*models.ExchangeMetadata, error) {
	return &models.ExchangeMetadata{DetectedItems: []string{"blazer"}, DetectedColors: []string{"navy"}}, nil
}

type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testDeps(r *fakeRouter) Deps {
	return Deps{
		Emitter:  stream.NewEmitter(stream.DefaultConfig(), stream.WithRand(zeroRand{}), stream.WithSleep(noSleep)),
		Router:   r,
		Selector: fixedSelector{model: models.RecommendedModel()},
	}
}

func collect(tokens *[]models.StreamToken) stream.TokenFunc {
	return func(tok models.StreamToken) error {
		*tokens = append(*tokens, tok)
		return nil
	}
}

func TestRespond_ModelPath(t *testing.T) {
	r := &fakeRouter{reply: "Yes, the blue shirt looks great!"}
	s := NewSession("s1", testDeps(r))

	var tokens []models.StreamToken
	reply, err := s.Respond(context.Background(), Request{Text: "Do you like my blue shirt?"}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Source != SourceModel || reply.ModelID != models.RecommendedModel().ID {
		t.Errorf("unexpected reply %+v", reply)
	}
	if r.calls != 1 {
		t.Errorf("expected 1 model call, got %d", r.calls)
	}
	if tokens[0].Phase != models.PhaseAcknowledgment || tokens[len(tokens)-1].Phase != models.PhaseComplete {
		t.Errorf("unexpected token phases %+v", tokens)
	}
	var streamed strings.Builder
	for _, tok := range tokens[1:] {
		streamed.WriteString(tok.Text)
	}
	if strings.TrimSpace(streamed.String()) != reply.Text {
		t.Errorf("streamed %q, reply %q", streamed.String(), reply.Text)
	}
	if s.Memory().Len() != 1 || reply.Exchange.Sentiment != models.SentimentPositive {
		t.Errorf("exchange not recorded: %+v", reply.Exchange)
	}
	if !strings.Contains(r.prompts[0], "User: Do you like my blue shirt?") {
		t.Errorf("prompt missing utterance: %q", r.prompts[0])
	}
}

func TestRespond_GenericReferenceAfterExchange(t *testing.T) {
	r := &fakeRouter{reply: "Yes, the blue shirt looks great!"}
	s := NewSession("s1", testDeps(r))
	ctx := context.Background()
	var tokens []models.StreamToken

	if _, err := s.Respond(ctx, Request{Text: "Do you like my blue shirt?"}, collect(&tokens)); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	r.reply = "It works too."
	reply, err := s.Respond(ctx, Request{Text: "what about that other one"}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.Reference.HasReference || reply.Reference.ReferredExchange != nil {
		t.Errorf("expected unresolved generic reference, got %+v", reply.Reference)
	}
	if !strings.Contains(r.prompts[1], "Recent conversation:") {
		t.Errorf("expected history in second prompt: %q", r.prompts[1])
	}
}

func TestRespond_QuickTemplateSkipsModel(t *testing.T) {
	r := &fakeRouter{reply: "unused"}
	s := NewSession("s1", testDeps(r))

	var tokens []models.StreamToken
	reply, err := s.Respond(context.Background(), Request{
		Text:     "How does this color look?",
		Metadata: &models.ImageMetadata{DominantColor: "green", ClothingType: "jacket"},
	}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.calls != 0 {
		t.Errorf("template hit must not call the model, got %d calls", r.calls)
	}
	if reply.Source != SourceTemplate || reply.Text != "That green jacket really suits you!" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if got := reply.Exchange.DetectedColors; len(got) != 1 || got[0] != "green" {
		t.Errorf("expected metadata colors, got %v", got)
	}
}

func TestRespond_ForceModel(t *testing.T) {
	r := &fakeRouter{reply: "Looks nice"}
	s := NewSession("s1", testDeps(r))
	var tokens []models.StreamToken
	_, err := s.Respond(context.Background(), Request{
		Text:       "How does this color look?",
		Metadata:   &models.ImageMetadata{DominantColor: "green"},
		ForceModel: true,
	}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.calls != 1 {
		t.Errorf("expected model call, got %d", r.calls)
	}
}

func TestRespond_ImageUsesVision(t *testing.T) {
	r := &fakeRouter{reply: "unused"}
	v := &fakeVision{reply: vision.FallbackMessage}
	deps := testDeps(r)
	deps.Vision = v
	s := NewSession("s1", deps)

	var tokens []models.StreamToken
	reply, err := s.Respond(context.Background(), Request{Text: "rate it", Image: "QUJD", ImageRef: "file-1"}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if v.calls != 1 || r.calls != 0 {
		t.Errorf("expected vision call only, got vision=%d router=%d", v.calls, r.calls)
	}
	if reply.Source != SourceFallback {
		t.Errorf("expected fallback source, got %s", reply.Source)
	}
	if reply.Exchange.ImageRef != "file-1" {
		t.Errorf("expected opaque image ref, got %q", reply.Exchange.ImageRef)
	}
}

func TestRespond_ModelErrorLeavesMemoryUntouched(t *testing.T) {
	r := &fakeRouter{err: &apperr.APIError{Provider: "gemini", StatusCode: 500, Message: "boom"}}
	s := NewSession("s1", testDeps(r))

	var tokens []models.StreamToken
	_, err := s.Respond(context.Background(), Request{Text: "hi"}, collect(&tokens))
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if len(tokens) != 0 || s.Memory().Len() != 0 {
		t.Errorf("expected no tokens and no exchange, got %d tokens, %d exchanges", len(tokens), s.Memory().Len())
	}
}

func TestRespond_EnricherAndArchive(t *testing.T) {
	r := &fakeRouter{reply: "A navy blazer is smart."}
	deps := testDeps(r)
	deps.Enricher = fakeEnricher{}
	archive := storage.NewMemoryStorage()
	deps.Archive = archive
	s := NewSession("s1", deps)

	var tokens []models.StreamToken
	reply, err := s.Respond(context.Background(), Request{Text: "hi"}, collect(&tokens))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := reply.Exchange.DetectedItems; len(got) != 1 || got[0] != "blazer" {
		t.Errorf("expected enriched items, got %v", got)
	}
	saved, _ := archive.GetSessionExchanges(context.Background(), "s1", 0)
	if len(saved) != 1 || saved[0].ID != reply.Exchange.ID {
		t.Errorf("exchange not archived: %+v", saved)
	}
}

func TestRespond_SinkError(t *testing.T) {
	r := &fakeRouter{reply: "one two three"}
	s := NewSession("s1", testDeps(r))
	_, err := s.Respond(context.Background(), Request{Text: "hi"}, func(models.StreamToken) error {
		return errors.New("client gone")
	})
	var sinkErr *apperr.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if s.Memory().Len() != 0 {
		t.Error("aborted stream must not be recorded")
	}
}

func TestRestoreAndReset(t *testing.T) {
	ctx := context.Background()
	archive := storage.NewMemoryStorage()
	for _, u := range []string{"a", "b", "c"} {
		archive.SaveExchange(ctx, "tg:1", &models.Exchange{ID: u, UserUtterance: u, Timestamp: time.Now()})
	}
	deps := testDeps(&fakeRouter{})
	deps.Archive = archive
	deps.MaxHistory = 2

	reg := NewRegistry(deps)
	s := reg.GetOrCreate(ctx, "tg:1")
	got := s.Memory().Exchanges()
	if len(got) != 2 || got[0].UserUtterance != "b" {
		t.Fatalf("unexpected restored window %+v", got)
	}
	if again := reg.GetOrCreate(ctx, "tg:1"); again != s {
		t.Error("expected the same session instance")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Memory().Len() != 0 {
		t.Error("expected empty window after reset")
	}
	if left, _ := archive.GetSessionExchanges(ctx, "tg:1", 0); len(left) != 0 {
		t.Errorf("expected archive cleared, %d left", len(left))
	}
}

func TestRegistry_IsolatesSessions(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testDeps(&fakeRouter{reply: "Nice red dress"}))
	a := reg.Create()
	b := reg.Create()
	if a.ID() == b.ID() {
		t.Fatal("expected distinct ids")
	}

	var tokens []models.StreamToken
	if _, err := a.Respond(ctx, Request{Text: "hi"}, collect(&tokens)); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if b.Memory().Len() != 0 {
		t.Error("exchange leaked into another session")
	}

	ok, err := reg.Delete(ctx, a.ID())
	if !ok || err != nil {
		t.Fatalf("Delete: %v, %v", ok, err)
	}
	if _, found := reg.Get(a.ID()); found {
		t.Error("expected session removed")
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 session left, got %d", reg.Len())
	}
}

// slowArchive blocks history reads until release is closed
type slowArchive struct {
	*storage.MemoryStorage
	reading chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *slowArchive) GetSessionExchanges(ctx context.Context, sessionID string, limit int) ([]*models.Exchange, error) {
	a.once.Do(func() { close(a.reading) })
	<-a.release
	return a.MemoryStorage.GetSessionExchanges(ctx, sessionID, limit)
}

func TestGetOrCreate_TurnWaitsForRestore(t *testing.T) {
	ctx := context.Background()
	archive := &slowArchive{
		MemoryStorage: storage.NewMemoryStorage(),
		reading:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	archive.MemoryStorage.SaveExchange(ctx, "tg:9", &models.Exchange{ID: "old", UserUtterance: "old", Timestamp: time.Now()})

	deps := testDeps(&fakeRouter{reply: "Nice"})
	deps.Archive = archive
	reg := NewRegistry(deps)

	created := make(chan *Session)
	go func() { created <- reg.GetOrCreate(ctx, "tg:9") }()
	<-archive.reading

	s, ok := reg.Get("tg:9")
	if !ok {
		t.Fatal("expected session to be published while restoring")
	}
	done := make(chan error)
	go func() {
		var tokens []models.StreamToken
		_, err := s.Respond(ctx, Request{Text: "hi"}, collect(&tokens))
		done <- err
	}()

	close(archive.release)
	<-created
	if err := <-done; err != nil {
		t.Fatalf("Respond: %v", err)
	}

	got := s.Memory().Exchanges()
	if len(got) != 2 || got[0].ID != "old" || got[1].UserUtterance != "hi" {
		t.Fatalf("expected archived exchange before the new one, got %+v", got)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	archive := storage.NewMemoryStorage()
	archive.SaveExchange(ctx, "archived", &models.Exchange{ID: "a", UserUtterance: "a", Timestamp: time.Now()})
	deps := testDeps(&fakeRouter{})
	deps.Archive = archive
	reg := NewRegistry(deps)

	if _, found, err := reg.Lookup(ctx, "random"); found || err != nil {
		t.Fatalf("expected unknown id to be absent, got %v, %v", found, err)
	}
	if reg.Len() != 0 {
		t.Errorf("lookup of an unknown id must not create a session, have %d", reg.Len())
	}

	s, found, err := reg.Lookup(ctx, "archived")
	if !found || err != nil {
		t.Fatalf("expected archived session, got %v, %v", found, err)
	}
	if s.Memory().Len() != 1 {
		t.Errorf("expected restored window, got %d exchanges", s.Memory().Len())
	}

	live := reg.Create()
	if got, found, _ := reg.Lookup(ctx, live.ID()); !found || got != live {
		t.Error("expected loaded session to be returned")
	}
}

func TestDelete_ArchivedOnly(t *testing.T) {
	ctx := context.Background()
	archive := storage.NewMemoryStorage()
	archive.SaveExchange(ctx, "old", &models.Exchange{ID: "a", Timestamp: time.Now()})
	deps := testDeps(&fakeRouter{})
	deps.Archive = archive
	reg := NewRegistry(deps)

	found, err := reg.Delete(ctx, "old")
	if !found || err != nil {
		t.Fatalf("expected archived session deleted, got %v, %v", found, err)
	}
	if left, _ := archive.GetSessionExchanges(ctx, "old", 0); len(left) != 0 {
		t.Errorf("expected archive cleared, %d left", len(left))
	}
	if found, _ := reg.Delete(ctx, "old"); found {
		t.Error("expected second delete to report unknown")
	}
}
