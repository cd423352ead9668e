package storage

import (
	"context"

	"github.com/xaenox/stylist-bot/internal/models"
)

type Storage interface {
	SettingsStore
	ExchangeArchive
	Close() error
}

// SettingsStore is a string key-value store. GetSetting returns "" for a
// missing key.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ExchangeArchive keeps finished exchanges per conversation session
type ExchangeArchive interface {
	SaveExchange(ctx context.Context, sessionID string, exchange *models.Exchange) error
	// GetSessionExchanges returns up to limit of the newest exchanges, oldest first
	GetSessionExchanges(ctx context.Context, sessionID string, limit int) ([]*models.Exchange, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
