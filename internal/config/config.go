package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  string        `envconfig:"ALLOWED_ORIGINS" default:""`
	MaxBodyBytes    int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"1048576"`
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	Driver            string        `envconfig:"DATABASE_DRIVER" default:"postgres"` // postgres or sqlite
	URL               string        `envconfig:"DATABASE_URL" default:""`
	SQLitePath        string        `envconfig:"SQLITE_PATH" default:"./data/reconciler.db"`
	SQLiteBusyTimeout time.Duration `envconfig:"SQLITE_BUSY_TIMEOUT" default:"5s"`
	MaxConns          int32         `envconfig:"DATABASE_MAX_CONNS" default:"10"`
}

// CacheConfig holds price cache settings.
type CacheConfig struct {
	Type string        `envconfig:"PRICE_CACHE" default:"none"` // none, memory or redis; previews only
	TTL  time.Duration `envconfig:"PRICE_CACHE_TTL" default:"1m"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"reconciler"`
}

// EngineConfig tunes reconciliation behaviour.
type EngineConfig struct {
	StockPolicy   string        `envconfig:"STOCK_POLICY" default:"allow_backorder"`
	MaxRetries    uint          `envconfig:"RECONCILE_MAX_RETRIES" default:"3"`
	RetryInterval time.Duration `envconfig:"RECONCILE_RETRY_INTERVAL" default:"50ms"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or text
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins splits ALLOWED_ORIGINS; empty means any origin.
func (s *ServerConfig) Origins() []string {
	if strings.TrimSpace(s.AllowedOrigins) == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver)
	}
	switch c.Cache.Type {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown PRICE_CACHE %q", c.Cache.Type)
	}
	switch c.Engine.StockPolicy {
	case "allow_backorder", "reject_negative":
	default:
		return fmt.Errorf("unknown STOCK_POLICY %q", c.Engine.StockPolicy)
	}
	if c.Engine.MaxRetries == 0 {
		return fmt.Errorf("RECONCILE_MAX_RETRIES must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
