package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	validBackends    = []string{"memory", "sqlite", "postgrest"}
	validAIProviders = []string{"chat", "anthropic", "gemini", "none"}
	validLogLevels   = []string{"debug", "info", "warn", "warning", "error"}
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend    string
	SQLiteDBPath   string
	MemorySeedFile string

	// PostgREST
	PostgRESTURL   string
	PostgRESTKey   string
	PostgRESTTable string

	// AI
	AIProvider      string
	AIEndpoint      string
	AIAPIKey        string
	AIModel         string
	AITemperature   float64
	AnthropicAPIKey string
	GeminiAPIKey    string
	ClassifyTimeout time.Duration

	// Saving
	SaveDebounce    time.Duration
	SaveMinInterval time.Duration
	SaveConcurrency int

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:    getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/budget.db"),
		MemorySeedFile: getEnv("MEMORY_SEED_FILE", ""),

		PostgRESTURL:   getEnv("POSTGREST_URL", ""),
		PostgRESTKey:   getEnv("POSTGREST_KEY", ""),
		PostgRESTTable: getEnv("POSTGREST_TABLE", "budgets"),

		AIProvider:      getEnv("AI_PROVIDER", "chat"),
		AIEndpoint:      getEnv("AI_ENDPOINT", "https://api.moonshot.cn/v1/chat/completions"),
		AIAPIKey:        getEnv("AI_API_KEY", ""),
		AIModel:         getEnv("AI_MODEL", ""),
		AITemperature:   getEnvFloat("AI_TEMPERATURE", 0.2),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		ClassifyTimeout: getEnvDuration("CLASSIFY_TIMEOUT", 10*time.Second),

		SaveDebounce:    getEnvDuration("SAVE_DEBOUNCE", 500*time.Millisecond),
		SaveMinInterval: getEnvDuration("SAVE_MIN_INTERVAL", 0),
		SaveConcurrency: getEnvInt("SAVE_CONCURRENCY", 4),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "classify_rows"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
	}

	return cfg
}

// Validate checks every setting and reports all problems at once. Missing
// AI keys are not an error: the features that need them degrade instead.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgrest":
		if c.PostgRESTURL == "" {
			errors = append(errors, "POSTGREST_URL is required when using postgrest backend")
		} else if err := checkHTTPURL(c.PostgRESTURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid PostgREST URL '%s': %v", c.PostgRESTURL, err))
		}
		if c.PostgRESTKey == "" {
			errors = append(errors, "POSTGREST_KEY is required when using postgrest backend")
		}
		if c.PostgRESTTable == "" {
			errors = append(errors, "PostgREST table name cannot be empty")
		}
	}

	if !slices.Contains(validAIProviders, c.AIProvider) {
		errors = append(errors, fmt.Sprintf("invalid AI provider '%s': must be one of %v", c.AIProvider, validAIProviders))
	}
	if c.AIProvider == "chat" && c.AIEndpoint != "" {
		if err := checkHTTPURL(c.AIEndpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AI endpoint '%s': %v", c.AIEndpoint, err))
		}
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		errors = append(errors, fmt.Sprintf("invalid AI temperature %g: must be between 0 and 2", c.AITemperature))
	}
	if c.ClassifyTimeout <= 0 || c.ClassifyTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid classify timeout %v: must be between 0 and 2m", c.ClassifyTimeout))
	}

	if c.SaveDebounce < 0 || c.SaveDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid save debounce %v: must be between 0 and 1m", c.SaveDebounce))
	}
	if c.SaveMinInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid save min interval %v: must not be negative", c.SaveMinInterval))
	}
	if c.SaveConcurrency < 1 || c.SaveConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid save concurrency %d: must be between 1 and 64", c.SaveConcurrency))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme '%s' must be 'http' or 'https'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
