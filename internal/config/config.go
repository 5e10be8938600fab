package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Server  ServerConfig
	Cache   CacheConfig
	Events  EventsConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Environment           string `validate:"required"`
	LogFilePath           string `validate:"required"`
	ConnectionLogFilePath string `validate:"required"`
}

// ServerConfig describes the remote processing service endpoint.
type ServerConfig struct {
	WebSocketURL     string        `validate:"required,url"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
	WriteWait        time.Duration `validate:"gt=0"`
	PingPeriod       time.Duration `validate:"gte=0"`
	MaxMessageBytes  int64         `validate:"gt=0"`
}

type CacheConfig struct {
	Backend    string `validate:"oneof=sqlite redis memory"`
	SQLitePath string `validate:"required_if=Backend sqlite"`
	RedisURL   string `validate:"required_if=Backend redis"`
	KeyPrefix  string
}

type EventsConfig struct {
	NatsURL string // empty disables the NATS mirror
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment:           getEnv("GO_ENV", "development"),
			LogFilePath:           getEnv("LOG_FILE_PATH", "logs/youwin.log"),
			ConnectionLogFilePath: getEnv("CONNECTION_LOG_FILE_PATH", "logs/connection.log"),
		},
		Server: ServerConfig{
			WebSocketURL:     getEnv("YOUWIN_WS_URL", "ws://localhost:8000/ws"),
			HandshakeTimeout: getEnvAsSeconds("WS_HANDSHAKE_TIMEOUT_SEC", 10),
			WriteWait:        getEnvAsSeconds("WS_WRITE_WAIT_SEC", 10),
			PingPeriod:       getEnvAsSeconds("WS_PING_PERIOD_SEC", 0),
			MaxMessageBytes:  int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 16<<20)),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "sqlite"),
			SQLitePath: getEnv("CACHE_SQLITE_PATH", defaultSQLitePath()),
			RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
			KeyPrefix:  getEnv("CACHE_KEY_PREFIX", "youwin_"),
		},
		Events: EventsConfig{
			NatsURL: getEnv("NATS_URL", ""),
		},
		Tracing: TracingConfig{
			Enabled:  getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

// Validate checks the struct tags and reports every violated field at once.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".youwin", "cache.db")
	}
	return filepath.Join(home, ".youwin", "cache.db")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}
