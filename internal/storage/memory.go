package storage

import (
	"context"
	"sync"

	"github.com/xaenox/stylist-bot/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	settings  map[string]string
	exchanges map[string][]*models.Exchange
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		settings:  make(map[string]string),
		exchanges: make(map[string][]*models.Exchange),
	}
}

func (s *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

func (s *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemoryStorage) SaveExchange(ctx context.Context, sessionID string, exchange *models.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *exchange
	s.exchanges[sessionID] = append(s.exchanges[sessionID], &saved)
	return nil
}

func (s *MemoryStorage) GetSessionExchanges(ctx context.Context, sessionID string, limit int) ([]*models.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.exchanges[sessionID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*models.Exchange, 0, len(all)-start)
	for _, ex := range all[start:] {
		cp := *ex
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStorage) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exchanges, sessionID)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
