package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Redis   RedisConfig   `yaml:"redis"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host        string `yaml:"host"          env:"SERVER_HOST"          env-default:"0.0.0.0"`
	Port        int    `yaml:"port"          env:"SERVER_PORT"          env-default:"8080"`
	MaxUploadMB int64  `yaml:"max_upload_mb" env:"SERVER_MAX_UPLOAD_MB" env-default:"512"`
	GinMode     string `yaml:"gin_mode"      env:"GIN_MODE"             env-default:"release"`
}

// GeminiConfig holds the model API settings
type GeminiConfig struct {
	APIKey            string        `yaml:"api_key"             env:"GEMINI_API_KEY"`
	Model             string        `yaml:"model"               env:"GEMINI_MODEL"               env-default:"gemini-2.0-flash"`
	Temperature       float32       `yaml:"temperature"         env:"GEMINI_TEMPERATURE"         env-default:"0.2"`
	InlineBudgetMB    int64         `yaml:"inline_budget_mb"    env:"GEMINI_INLINE_BUDGET_MB"    env-default:"14"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"GEMINI_REQUESTS_PER_MINUTE" env-default:"10"`
	Burst             int           `yaml:"burst"               env:"GEMINI_BURST"               env-default:"2"`
	Timeout           time.Duration `yaml:"timeout"             env:"GEMINI_TIMEOUT"             env-default:"10m"`
	FilePollInterval  time.Duration `yaml:"file_poll_interval"  env:"GEMINI_FILE_POLL_INTERVAL"  env-default:"2s"`
	CallerClientCache int           `yaml:"caller_client_cache" env:"GEMINI_CALLER_CLIENT_CACHE" env-default:"16"`
}

// InlineBudgetBytes caps the base64-encoded media plus prompt sent inline in
// one request; media past the budget go through the Files API. The API
// rejects requests over 20 MB.
func (g GeminiConfig) InlineBudgetBytes() int64 {
	return g.InlineBudgetMB << 20
}

// RedisConfig holds the redis connection used by the "redis" history backend
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"     env-default:"127.0.0.1:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
}

// History backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// HistoryConfig selects where analyses are kept and how many
type HistoryConfig struct {
	Backend string `yaml:"backend" env:"HISTORY_BACKEND" env-default:"redis"`
	Limit   int    `yaml:"limit"   env:"HISTORY_LIMIT"   env-default:"10"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file"  env:"LOG_FILE"`
}

// CORSConfig holds the headers set on every response
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	AllowedMethods string `yaml:"allowed_methods" env:"CORS_ALLOWED_METHODS" env-default:"GET, POST, PATCH, DELETE, OPTIONS"`
	AllowedHeaders string `yaml:"allowed_headers" env:"CORS_ALLOWED_HEADERS" env-default:"Content-Type, Authorization, X-Api-Key"`
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > env-default tags. The file path comes from
// CONFIG_PATH (fallback "./config.yaml"); a missing default file means
// ENV + defaults only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges. An empty Gemini API key is allowed: callers
// may pass their own key per request.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Server.GinMode) {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.gin_mode %q must be debug, release or test", c.Server.GinMode))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if strings.TrimSpace(c.Gemini.Model) == "" {
		errs = append(errs, errors.New("gemini.model is required"))
	}
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		errs = append(errs, fmt.Errorf("gemini.temperature %.2f out of range [0,2]", c.Gemini.Temperature))
	}
	if c.Gemini.InlineBudgetMB < 0 || c.Gemini.InlineBudgetMB > 19 {
		errs = append(errs, fmt.Errorf("gemini.inline_budget_mb %d out of range [0,19]", c.Gemini.InlineBudgetMB))
	}
	if c.Gemini.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("gemini.requests_per_minute must be positive"))
	}
	if c.Gemini.Burst <= 0 {
		errs = append(errs, errors.New("gemini.burst must be positive"))
	}
	if c.Gemini.CallerClientCache <= 0 {
		errs = append(errs, errors.New("gemini.caller_client_cache must be positive"))
	}
	if c.Gemini.FilePollInterval <= 0 {
		errs = append(errs, errors.New("gemini.file_poll_interval must be positive"))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, errors.New("history.limit must be positive"))
	}
	switch c.History.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis history backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("history.backend %q must be %q or %q", c.History.Backend, BackendRedis, BackendMemory))
	}
	return errors.Join(errs...)
}
