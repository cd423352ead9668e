package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xaenox/stylist-bot/internal/models"
)

// timestampLayout has fixed width so stored values sort chronologically as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage is the single-file backend for local runs
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStorage(dbPath string, logger *zap.Logger) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Opened SQLite storage", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS exchanges (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		user_utterance  TEXT NOT NULL,
		ai_reply        TEXT NOT NULL,
		image_ref       TEXT NOT NULL DEFAULT '',
		detected_items  TEXT NOT NULL DEFAULT '[]',
		detected_colors TEXT NOT NULL DEFAULT '[]',
		sentiment       TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_session_created ON exchanges(session_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) SaveExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	items, err := json.Marshal(nonNil(ex.DetectedItems))
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	colors, err := json.Marshal(nonNil(ex.DetectedColors))
	if err != nil {
		return fmt.Errorf("encode colors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, session_id, user_utterance, ai_reply, image_ref,
			detected_items, detected_colors, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, sessionID, ex.UserUtterance, ex.AIReply, ex.ImageRef,
		string(items), string(colors), string(ex.Sentiment),
		ex.Timestamp.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSessionExchanges(ctx context.Context, sessionID string, limit int) ([]*models.Exchange, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_utterance, ai_reply, image_ref, detected_items, detected_colors, sentiment, created_at
		FROM (
			SELECT * FROM exchanges WHERE session_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*models.Exchange
	for rows.Next() {
		ex := &models.Exchange{}
		var items, colors, sentiment, createdAt string
		if err := rows.Scan(&ex.ID, &ex.UserUtterance, &ex.AIReply, &ex.ImageRef,
			&items, &colors, &sentiment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &ex.DetectedItems); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		if err := json.Unmarshal([]byte(colors), &ex.DetectedColors); err != nil {
			return nil, fmt.Errorf("decode colors: %w", err)
		}
		ex.Sentiment = models.Sentiment(sentiment)
		ex.Timestamp, _ = time.Parse(timestampLayout, createdAt)
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
