package settings

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/storage"
)

type failingStore struct{}

func (failingStore) GetSetting(ctx context.Context, key string) (string, error) {
	return "", errors.New("disk on fire")
}

func (failingStore) SetSetting(ctx context.Context, key, value string) error {
	return errors.New("disk on fire")
}

func TestCurrent_FallsBackToRecommended(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	s := NewSelector(store, zap.NewNop())
	rec := models.RecommendedModel()

	if got := s.Current(ctx); got.ID != rec.ID {
		t.Errorf("absent id: expected %s, got %s", rec.ID, got.ID)
	}

	store.SetSetting(ctx, SelectedModelKey, "no-such-model")
	if got := s.Current(ctx); got.ID != rec.ID {
		t.Errorf("unknown id: expected %s, got %s", rec.ID, got.ID)
	}

	if got := NewSelector(failingStore{}, zap.NewNop()).Current(ctx); got.ID != rec.ID {
		t.Errorf("read error: expected %s, got %s", rec.ID, got.ID)
	}
}

func TestSelect_ReadsLatestValue(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	s := NewSelector(store, zap.NewNop())

	if _, err := s.Select(ctx, "pollinations-openai"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := s.Current(ctx); got.Provider != models.ProviderPollinations {
		t.Errorf("expected pollinations, got %s", got.Provider)
	}

	// written behind the selector's back
	store.SetSetting(ctx, SelectedModelKey, "hf-qwen-vl")
	if got := s.Current(ctx); got.ID != "hf-qwen-vl" {
		t.Errorf("expected fresh read of hf-qwen-vl, got %s", got.ID)
	}
}

func TestSelect_RejectsUnknown(t *testing.T) {
	s := NewSelector(storage.NewMemoryStorage(), zap.NewNop())
	if _, err := s.Select(context.Background(), "gpt-99"); err == nil {
		t.Error("expected error for unknown model")
	}
}
