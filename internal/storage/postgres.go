package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error reading setting %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStorage) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("error writing setting %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) SaveExchange(ctx context.Context, sessionID string, ex *models.Exchange) error {
	query := `
		INSERT INTO exchanges (id, session_id, user_utterance, ai_reply, image_ref,
			detected_items, detected_colors, sentiment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.db.ExecContext(ctx, query, exchangeArgs(sessionID, ex)...); err != nil {
		return fmt.Errorf("error saving exchange: %w", err)
	}
	return nil
}

// exchangeArgs lists the insert parameters. Arrays are never NULL.
func exchangeArgs(sessionID string, ex *models.Exchange) []interface{} {
	return []interface{}{
		ex.ID,
		sessionID,
		ex.UserUtterance,
		ex.AIReply,
		ex.ImageRef,
		pq.Array(nonNil(ex.DetectedItems)),
		pq.Array(nonNil(ex.DetectedColors)),
		string(ex.Sentiment),
		ex.Timestamp,
	}
}

func (s *PostgresStorage) GetSessionExchanges(ctx context.Context, sessionID string, limit int) ([]*models.Exchange, error) {
	query := `
		SELECT id, user_utterance, ai_reply, image_ref, detected_items, detected_colors, sentiment, created_at
		FROM (
			SELECT * FROM exchanges
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*models.Exchange
	for rows.Next() {
		ex := &models.Exchange{}
		var sentiment string
		err := rows.Scan(
			&ex.ID,
			&ex.UserUtterance,
			&ex.AIReply,
			&ex.ImageRef,
			pq.Array(&ex.DetectedItems),
			pq.Array(&ex.DetectedColors),
			&sentiment,
			&ex.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning exchange: %w", err)
		}
		ex.Sentiment = models.Sentiment(sentiment)
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("error deleting session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
