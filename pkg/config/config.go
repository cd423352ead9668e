package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram     TelegramConfig   `mapstructure:"telegram"`
	Database     DatabaseConfig   `mapstructure:"database"`
	Gemini       GeminiConfig     `mapstructure:"gemini"`
	HuggingFace  TokenConfig      `mapstructure:"huggingface"`
	Pollinations TokenConfig      `mapstructure:"pollinations"`
	Context      ContextConfig    `mapstructure:"context"`
	Stream       StreamConfig     `mapstructure:"stream"`
	Router       RouterConfig     `mapstructure:"router"`
	Vision       VisionConfig     `mapstructure:"vision"`
	Classifier   ClassifierConfig `mapstructure:"classifier"`
	Server       ServerConfig     `mapstructure:"server"`
	Log          LogConfig        `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type TokenConfig struct {
	Token string `mapstructure:"token"`
}

type ContextConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

type StreamConfig struct {
	WordsPerChunk int           `mapstructure:"words_per_chunk"`
	ChunkDelay    time.Duration `mapstructure:"chunk_delay"`
	AckPause      time.Duration `mapstructure:"ack_pause"`
	InstantAck    bool          `mapstructure:"instant_ack"`
}

type RouterConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type VisionConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	GatewayWait time.Duration `mapstructure:"gateway_wait"`
}

type ClassifierConfig struct {
	// Mode is "keyword" or "gpt"
	Mode    string `mapstructure:"mode"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path (optional when empty or missing) and applies
// environment overrides. A .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "stylist.db")
	v.SetDefault("context.max_history", 5)
	v.SetDefault("stream.words_per_chunk", 3)
	v.SetDefault("stream.chunk_delay", "80ms")
	v.SetDefault("stream.ack_pause", "200ms")
	v.SetDefault("stream.instant_ack", true)
	v.SetDefault("router.timeout", "60s")
	v.SetDefault("vision.max_retries", 3)
	v.SetDefault("vision.gateway_wait", "5s")
	v.SetDefault("classifier.mode", "keyword")
	v.SetDefault("classifier.model", "openai")
	v.SetDefault("classifier.base_url", "https://text.pollinations.ai/openai")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.development", false)

	// Keys without a real default are registered so STYLIST_* env reaches them
	for _, key := range []string{
		"telegram.token",
		"database.password",
		"database.dbname",
		"gemini.api_key",
		"huggingface.token",
		"pollinations.token",
		"classifier.api_key",
	} {
		v.SetDefault(key, "")
	}

	// Nested keys map to STYLIST_SECTION_KEY
	v.SetEnvPrefix("stylist")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	env := viper.New()
	env.AutomaticEnv()

	if dbURL := env.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}
	if token := env.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if key := env.GetString("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if token := env.GetString("HF_TOKEN"); token != "" {
		config.HuggingFace.Token = token
	}

	return &config, nil
}
