package core

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for an Engine.
//
// Example:
//
//	config := &core.Config{
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        DBPath:   "./engram.db",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	    },
//	}
type Config struct {
	// Storage selects and configures the snapshot backend.
	Storage StorageConfig `json:"storage"`

	// Embedder configures the embedding provider. An empty provider
	// disables semantic recall; the engine degrades to keyword-only.
	Embedder EmbedderConfig `json:"embedder"`

	// Skills configures the skill progression engine.
	Skills SkillsConfig `json:"skills"`

	// Sweeps configures the background maintenance intervals.
	Sweeps SweepConfig `json:"sweeps"`
}

// StorageConfig selects a snapshot backend.
//
// Supported providers: file, sqlite, postgres, mysql.
type StorageConfig struct {
	// Provider is the backend name (file, sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Dir is the snapshot directory for the file provider.
	Dir string `json:"dir,omitempty"`

	// DBPath is the database path for the sqlite provider.
	DBPath string `json:"db_path,omitempty"`

	// Host, Port, User, Password, and DBName configure the postgres and
	// mysql providers.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`

	// SSLMode is the postgres sslmode (default "disable").
	SSLMode string `json:"ssl_mode,omitempty"`
}

// EmbedderConfig configures the embedding provider.
//
// Supported providers: openai (and any OpenAI-compatible endpoint via
// BaseURL) and qwen, or empty to run without semantic recall.
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector length.
	Dimensions int `json:"dimensions,omitempty"`
}

// SkillsConfig tunes the skill progression engine.
type SkillsConfig struct {
	// IdleThresholdDays is how many idle days a skill tolerates before
	// decay starts. Default 7.
	IdleThresholdDays int `json:"idle_threshold_days,omitempty"`

	// DecayRatePerDay is the XP lost per idle day past the threshold.
	// Default 5.
	DecayRatePerDay int `json:"decay_rate_per_day,omitempty"`

	// DecayFloor names the level decay can never drop a skill below.
	// Default "intermediate".
	DecayFloor string `json:"decay_floor,omitempty"`
}

// SweepConfig sets the background maintenance intervals. Zero values take
// the defaults: hourly expiry, hourly decay, weekly consolidation.
type SweepConfig struct {
	ExpiryInterval        time.Duration `json:"expiry_interval,omitempty"`
	DecayInterval         time.Duration `json:"decay_interval,omitempty"`
	ConsolidationInterval time.Duration `json:"consolidation_interval,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function searches for a .env file (up to 5 directory levels up),
// loads it if found, and then reads:
//   - STORAGE_PROVIDER (file, sqlite, postgres, mysql; default file)
//   - FILE_STORAGE_DIR, SQLITE_PATH
//   - POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE/SSLMODE
//   - MYSQL_HOST/PORT/USER/PASSWORD/DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - SKILL_IDLE_DAYS, SKILL_DECAY_RATE, SKILL_DECAY_FLOOR
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Storage: StorageConfig{
			Provider: getEnvOrDefault("STORAGE_PROVIDER", "file"),
		},
		Embedder: EmbedderConfig{
			Provider: os.Getenv("EMBEDDING_PROVIDER"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
			Model:    os.Getenv("EMBEDDING_MODEL"),
			BaseURL:  os.Getenv("EMBEDDING_BASE_URL"),
		},
	}

	switch cfg.Storage.Provider {
	case "file":
		cfg.Storage.Dir = getEnvOrDefault("FILE_STORAGE_DIR", "./engram_data")
	case "sqlite":
		cfg.Storage.DBPath = getEnvOrDefault("SQLITE_PATH", "./engram.db")
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		cfg.Storage.Host = getEnvOrDefault("POSTGRES_HOST", "127.0.0.1")
		cfg.Storage.Port = port
		cfg.Storage.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		cfg.Storage.Password = os.Getenv("POSTGRES_PASSWORD")
		cfg.Storage.DBName = getEnvOrDefault("POSTGRES_DATABASE", "engram")
		cfg.Storage.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		cfg.Storage.Host = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		cfg.Storage.Port = port
		cfg.Storage.User = getEnvOrDefault("MYSQL_USER", "root")
		cfg.Storage.Password = os.Getenv("MYSQL_PASSWORD")
		cfg.Storage.DBName = getEnvOrDefault("MYSQL_DATABASE", "engram")
	default:
		return nil, NewEngineError("LoadConfigFromEnv", ErrInvalidConfig)
	}

	if dims := os.Getenv("EMBEDDING_DIMS"); dims != "" {
		cfg.Embedder.Dimensions, _ = strconv.Atoi(dims)
	}
	if days := os.Getenv("SKILL_IDLE_DAYS"); days != "" {
		cfg.Skills.IdleThresholdDays, _ = strconv.Atoi(days)
	}
	if rate := os.Getenv("SKILL_DECAY_RATE"); rate != "" {
		cfg.Skills.DecayRatePerDay, _ = strconv.Atoi(rate)
	}
	cfg.Skills.DecayFloor = os.Getenv("SKILL_DECAY_FLOOR")

	return cfg, nil
}

// Validate checks that the configuration is usable: a known storage
// provider, and an API key whenever an embedding provider is named.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "file", "sqlite", "postgres", "mysql":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Provider != "" && c.Embedder.APIKey == "" {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for a .env or .env.example file, first in the
// current directory and then up to 5 directory levels up. It returns the
// path of the first file found and whether one was found.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
