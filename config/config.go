// Package config holds the environment-driven settings of the gateway and
// the worker. Configuration is read once at startup and treated as
// read-only afterwards.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hibiken/asynq"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"doc-gateway"`
	Version     string `env:"VERSION" envDefault:"1.0.0"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8011"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`

	// Broker
	RedisURI        string        `env:"REDIS_URI" envDefault:"redis://localhost:6379/1"`
	Queue           string        `env:"TASK_QUEUE" envDefault:"default"`
	ResultRetention time.Duration `env:"RESULT_RETENTION" envDefault:"24h"`
	WorkerCount     int           `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// Lifecycle store; empty disables persistence (broker-only status).
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:""`

	// Storage
	StorageBasePath string `env:"STORAGE_BASE_PATH" envDefault:"/data/documents"`

	// Waiting / streaming
	WaitPollInterval time.Duration `env:"WAIT_POLL_INTERVAL" envDefault:"500ms"`
	StreamInterval   time.Duration `env:"STREAM_POLL_INTERVAL" envDefault:"1s"`
	StreamHeartbeat  time.Duration `env:"STREAM_HEARTBEAT" envDefault:"2s"`
	DefaultWait      time.Duration `env:"DEFAULT_WAIT_TIMEOUT" envDefault:"300s"`

	// OCR
	OCRLanguages []string `env:"OCR_LANGUAGES" envSeparator:"+" envDefault:"jpn+eng"`

	// Chunking
	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`

	// Authentication
	JWKSURL        string `env:"JWKS_URL" envDefault:"http://localhost:8002/.well-known/jwks.json"`
	JWTAudience    string `env:"JWT_AUDIENCE" envDefault:"doc-gateway"`
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"https://auth.example.com"`
	InternalSecret string `env:"INTERNAL_API_SECRET" envDefault:""`

	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// RedisOpt parses the configured Redis URI into an asynq connection option.
func (c Config) RedisOpt() (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(c.RedisURI)
	if err != nil {
		return nil, fmt.Errorf("config: parse redis uri: %w", err)
	}
	return opt, nil
}
