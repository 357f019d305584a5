// Package config provides configuration management for Squirrel.
// It loads settings from environment variables with the SQRL_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the squirrel daemon.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Extractor ExtractorConfig
	Policy    PolicyConfig
	Commit    CommitConfig
	RateLimit RateLimitConfig
}

// ServerConfig contains the IPC transport's socket configuration.
type ServerConfig struct {
	SocketPath string // Unix domain socket path (default: /tmp/sqrl_agent.sock)
}

// StorageConfig contains the per-project sqlite database location.
type StorageConfig struct {
	DBPath string // Path to the project's memory database (default: ./.sqrl/memory.db)
}

// EmbeddingConfig contains the embedding gateway's model and retry settings.
type EmbeddingConfig struct {
	Model        string        // Embedder identifier (default: text-embedding-3-small)
	Dimensions   int           // Expected vector dimension (default: 1536)
	MaxRetries   int           // Retry cap N (default: 3)
	RetryDelay   time.Duration // Initial backoff delta (default: 1s)
	RetryBackoff float64       // Backoff multiplier beta (default: 2.0)
	APIKey       string        // Provider API key
	BaseURL      string        // Provider base URL
}

// ExtractorConfig contains the remote memory-operation extractor's
// model identifier and circuit-breaker-protected endpoint.
type ExtractorConfig struct {
	StrongModel string // Required when ingest_chunk is called
	BaseURL     string // Extractor service base URL
}

// PolicyConfig contains the layered TOML policy loader's search paths.
type PolicyConfig struct {
	UserPath    string // e.g. ~/.config/squirrel/policy.toml
	ProjectPath string // e.g. <project_root>/.sqrl/policy.toml
}

// CommitConfig contains the commit layer's tunables.
type CommitConfig struct {
	ConfidenceThreshold  float64 // minimum MemoryOp.Confidence to commit (default: 0.8)
	MaxMemoriesPerEpisode int    // cap on extractor output per episode (default: 5)
}

// RateLimitConfig contains the IPC transport's per-connection token
// bucket settings. RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoadConfig loads configuration from environment variables with
// sensible defaults. All environment variables use the SQRL_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			SocketPath: getEnv("SQRL_SOCKET_PATH", "/tmp/sqrl_agent.sock"),
		},
		Storage: StorageConfig{
			DBPath: getEnv("SQRL_DB_PATH", "./.sqrl/memory.db"),
		},
		Embedding: EmbeddingConfig{
			Model:        getEnv("SQRL_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions:   getEnvInt("SQRL_EMBEDDING_DIMS", 1536),
			MaxRetries:   getEnvInt("SQRL_EMBEDDING_MAX_RETRIES", 3),
			RetryDelay:   getEnvSeconds("SQRL_EMBEDDING_RETRY_DELAY", 1.0),
			RetryBackoff: getEnvFloat("SQRL_EMBEDDING_RETRY_BACKOFF", 2.0),
			APIKey:       getEnv("SQRL_EMBEDDING_API_KEY", ""),
			BaseURL:      getEnv("SQRL_EMBEDDING_BASE_URL", ""),
		},
		Extractor: ExtractorConfig{
			StrongModel: getEnv("SQRL_STRONG_MODEL", ""),
			BaseURL:     getEnv("SQRL_EXTRACTOR_BASE_URL", ""),
		},
		Policy: PolicyConfig{
			UserPath:    getEnv("SQRL_USER_POLICY_PATH", defaultUserPolicyPath()),
			ProjectPath: getEnv("SQRL_PROJECT_POLICY_PATH", "./.sqrl/policy.toml"),
		},
		Commit: CommitConfig{
			ConfidenceThreshold:   getEnvFloat("SQRL_CONFIDENCE_THRESHOLD", 0.8),
			MaxMemoriesPerEpisode: getEnvInt("SQRL_MAX_MEMORIES_PER_EPISODE", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("SQRL_RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("SQRL_RATE_LIMIT_BURST", 40),
		},
	}, nil
}

func defaultUserPolicyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/squirrel/policy.toml"
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value. If the variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a
// default value. If the variable exists but cannot be parsed, it
// returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvSeconds retrieves a float environment variable expressed in
// seconds and converts it to a time.Duration.
func getEnvSeconds(key string, defaultSeconds float64) time.Duration {
	seconds := getEnvFloat(key, defaultSeconds)
	return time.Duration(seconds * float64(time.Second))
}
