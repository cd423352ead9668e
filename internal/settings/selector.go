// Package settings resolves which catalog model the stylist should use.
package settings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/storage"
)

// SelectedModelKey is the key-value entry holding the chosen model id
const SelectedModelKey = "@stylist/selected_model"

// Selector reads the selected model on every call, so a change written by
// another process is picked up on the next request.
type Selector struct {
	store  storage.SettingsStore
	logger *zap.Logger
}

func NewSelector(store storage.SettingsStore, logger *zap.Logger) *Selector {
	return &Selector{store: store, logger: logger}
}

// Current returns the persisted model, or the recommended one when the stored
// id is missing, unknown or unreadable
func (s *Selector) Current(ctx context.Context) models.ModelDescriptor {
	id, err := s.store.GetSetting(ctx, SelectedModelKey)
	if err != nil {
		s.logger.Warn("Failed to read selected model, using recommended",
			zap.Error(err))
		return models.RecommendedModel()
	}
	if id == "" {
		return models.RecommendedModel()
	}
	m, ok := models.FindModel(id)
	if !ok {
		s.logger.Warn("Unknown model id in settings, using recommended",
			zap.String("model_id", id))
		return models.RecommendedModel()
	}
	return m
}

// Select persists id after checking it against the catalog
func (s *Selector) Select(ctx context.Context, id string) (models.ModelDescriptor, error) {
	m, ok := models.FindModel(id)
	if !ok {
		return models.ModelDescriptor{}, fmt.Errorf("unknown model %q", id)
	}
	if err := s.store.SetSetting(ctx, SelectedModelKey, id); err != nil {
		return models.ModelDescriptor{}, fmt.Errorf("save selected model: %w", err)
	}
	s.logger.Info("Selected model changed", zap.String("model_id", id))
	return m, nil
}

func (s *Selector) Catalog() []models.ModelDescriptor {
	return models.Catalog()
}
