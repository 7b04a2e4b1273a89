// Package config provides unified configuration loading for the SmartShop engine.
// Supports YAML files, .env files, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the SmartShop engine.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Cache          CacheConfig          `yaml:"cache"`
	Recommendation RecommendationConfig `yaml:"recommendation"`
	Negotiation    NegotiationConfig    `yaml:"negotiation"`
	Dialogue       DialogueConfig       `yaml:"dialogue"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// CatalogConfig selects where products are loaded from.
type CatalogConfig struct {
	Source             string         `yaml:"source"` // csv, sqlite or postgres
	CSVDir             string         `yaml:"csv_dir"`
	DefaultDeliveryFee float64        `yaml:"default_delivery_fee"`
	MarkupRatio        float64        `yaml:"markup_ratio"`
	SQLite             SQLiteConfig   `yaml:"sqlite"`
	Postgres           PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RecommendationConfig holds ranking settings.
type RecommendationConfig struct {
	DefaultK      int     `yaml:"default_k"`
	MaxK          int     `yaml:"max_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
	PremiumRatio  float64 `yaml:"premium_ratio"`
	HistoryBoost  float64 `yaml:"history_boost"`
	CacheResults  bool    `yaml:"cache_results"`
}

// NegotiationConfig holds bargaining settings.
type NegotiationConfig struct {
	DefaultMaxRounds int           `yaml:"default_max_rounds"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	JanitorInterval  time.Duration `yaml:"janitor_interval"`
	PolicyFile       string        `yaml:"policy_file"`
	AuditChannel     string        `yaml:"audit_channel"`
}

// DialogueConfig holds settings for rendering decisions as text.
type DialogueConfig struct {
	Provider       string        `yaml:"provider"` // template or llm
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	MaxRetries     int           `yaml:"max_retries"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file, loads a .env file if present
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Negotiation.PolicyFile != "" {
			cfg.Negotiation.PolicyFile = ResolveRelativePath(path, cfg.Negotiation.PolicyFile)
		}
	}

	_ = godotenv.Load() // Ignore error if .env doesn't exist

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   15 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Catalog: CatalogConfig{
			Source:             "csv",
			CSVDir:             "./data",
			DefaultDeliveryFee: 5.0,
			MarkupRatio:        1.3,
			SQLite: SQLiteConfig{
				Path:         "/tmp/smartshop.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Recommendation: RecommendationConfig{
			DefaultK:      5,
			MaxK:          50,
			MinSimilarity: 0.3,
			PremiumRatio:  0.2,
			HistoryBoost:  0.1,
			CacheResults:  true,
		},
		Negotiation: NegotiationConfig{
			DefaultMaxRounds: 3,
			IdleTimeout:      30 * time.Minute,
			JanitorInterval:  time.Minute,
			AuditChannel:     "negotiation.decisions",
		},
		Dialogue: DialogueConfig{
			Provider:       "template",
			Model:          "meta-llama/Llama-3.3-70B-Instruct-Turbo",
			BaseURL:        "https://api.together.xyz/v1",
			RequestsPerSec: 2,
			MaxRetries:     3,
			Timeout:        20 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "smartshop",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Catalog.Source {
	case "csv":
		if c.Catalog.CSVDir == "" {
			return fmt.Errorf("catalog csv_dir is required for csv source")
		}
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid catalog source: %s", c.Catalog.Source)
	}

	if c.Catalog.Source == "postgres" && c.Catalog.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required for postgres source")
	}

	if c.Catalog.MarkupRatio < 1 {
		return fmt.Errorf("markup_ratio must be >= 1, got %v", c.Catalog.MarkupRatio)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	r := c.Recommendation
	if r.DefaultK < 1 || r.MaxK < r.DefaultK {
		return fmt.Errorf("recommendation default_k must be between 1 and max_k")
	}
	if r.MinSimilarity <= 0 || r.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in (0, 1]")
	}
	if r.PremiumRatio < 0 {
		return fmt.Errorf("premium_ratio must be >= 0")
	}
	if r.HistoryBoost < 0 || r.HistoryBoost > 1 {
		return fmt.Errorf("history_boost must be in [0, 1]")
	}

	if c.Negotiation.DefaultMaxRounds < 1 {
		return fmt.Errorf("default_max_rounds must be >= 1")
	}

	switch c.Dialogue.Provider {
	case "template":
	case "llm":
		if c.Dialogue.APIKey == "" {
			return fmt.Errorf("dialogue api_key is required for llm provider")
		}
	default:
		return fmt.Errorf("invalid dialogue provider: %s", c.Dialogue.Provider)
	}

	return nil
}

// CatalogDSN returns the connection string for SQL catalog sources.
func (c *Config) CatalogDSN() string {
	if c.Catalog.Source == "sqlite" {
		dsn := c.Catalog.SQLite.Path
		if mode := c.Catalog.SQLite.JournalMode; mode != "" && !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=" + mode
		}
		return dsn
	}
	return c.Catalog.Postgres.DSN
}

// SetDatabaseURL points the catalog at a SQL database. URLs take the form
// sqlite:<path> or postgres://...
func (c *Config) SetDatabaseURL(url string) error {
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		c.Catalog.Source = "sqlite"
		c.Catalog.SQLite.Path = strings.TrimPrefix(url, "sqlite:")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		c.Catalog.Source = "postgres"
		c.Catalog.Postgres.DSN = url
	default:
		return fmt.Errorf("unsupported database url: %s", url)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("CATALOG_CSV_DIR"); v != "" {
		cfg.Catalog.Source = "csv"
		cfg.Catalog.CSVDir = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		_ = cfg.SetDatabaseURL(v)
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("NEGOTIATION_POLICY_FILE"); v != "" {
		cfg.Negotiation.PolicyFile = v
	}

	if v := os.Getenv("TOGETHER_API_KEY"); v != "" {
		cfg.Dialogue.APIKey = v
	}

	if v := os.Getenv("DIALOGUE_PROVIDER"); v != "" {
		cfg.Dialogue.Provider = v
	}

	if v := os.Getenv("DIALOGUE_MODEL"); v != "" {
		cfg.Dialogue.Model = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
