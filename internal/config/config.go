package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// AppConfig holds the application configuration
type AppConfig struct {
	Addr   string
	AppEnv string

	StoreBackend string
	RedisAddr    string
	RedisPrefix  string
	DatabaseURL  string

	ImgBBAPIKey    string
	ImgBBUploadURL string
	UploadTimeout  time.Duration

	JWTSecret string

	AMQPURL      string
	AMQPExchange string

	CORSOrigins []string

	// Warnings lists fallbacks taken while loading, for the caller to log
	// once a logger exists.
	Warnings []string
}

func (c *AppConfig) Development() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// LoadConfig loads configuration from environment variables
// It first tries to load from a .env file if present.
func LoadConfig(envPath string) (*AppConfig, error) {
	if envPath == "" {
		envPath = ".env"
	}
	cfg := &AppConfig{}
	if err := godotenv.Load(envPath); err != nil {
		cfg.warnf("could not load %s: %v; relying on environment variables", envPath, err)
	}

	cfg.Addr = getEnv("ADDR", ":8080")
	cfg.AppEnv = getEnv("APP_ENV", "production")
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", BackendMemory))
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPrefix = getEnv("REDIS_PREFIX", "admin-chat")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.ImgBBAPIKey = getEnv("IMGBB_API_KEY", "")
	cfg.ImgBBUploadURL = getEnv("IMGBB_UPLOAD_URL", "https://api.imgbb.com/1/upload")
	cfg.UploadTimeout = cfg.duration("UPLOAD_TIMEOUT", 30*time.Second)
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.AMQPURL = getEnv("AMQP_URL", "")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "admin-chat")
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "*"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: STORE_BACKEND=postgres needs DATABASE_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.ImgBBAPIKey == "" {
		c.warnf("IMGBB_API_KEY is not set; image uploads will be rejected")
	}
	return nil
}

func (c *AppConfig) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warnf("invalid %s value %q, using default %v", key, raw, fallback)
		return fallback
	}
	return d
}

func (c *AppConfig) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// getEnv reads an environment variable or returns a default value
func getEnv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
