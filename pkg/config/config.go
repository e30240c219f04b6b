package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// API configuration
	API struct {
		BaseURL     string
		Timeout     time.Duration
		UserAgent   string
		SearchLimit int
	}

	// Walker configuration
	Walker struct {
		DefaultSleep   time.Duration
		MaxRetries     int
		DefaultBackoff time.Duration
		MaxBackoff     time.Duration
	}

	// Replacement configuration
	Replace struct {
		MinLength int
		MaxLength int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability configuration
	Observability struct {
		MetricsAddr  string
		TraceEnabled bool
	}

	// Vault configuration (optional token source)
	Vault struct {
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
		SecretKey   string
		Timeout     time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// API config
		instance.API.BaseURL = getEnvString("DISCORD_API_URL", "https://discord.com/api/v9")
		instance.API.Timeout = getEnvDuration("API_TIMEOUT", 30*time.Second)
		instance.API.UserAgent = getEnvString("API_USER_AGENT", "discord-chat-cleaner")
		instance.API.SearchLimit = getEnvInt("API_SEARCH_LIMIT", 25)

		// Walker config
		instance.Walker.DefaultSleep = getEnvDuration("DEFAULT_SLEEP", 0)
		instance.Walker.MaxRetries = getEnvInt("RATE_LIMIT_RETRIES", 5)
		instance.Walker.DefaultBackoff = getEnvDuration("DEFAULT_BACKOFF", time.Second)
		instance.Walker.MaxBackoff = getEnvDuration("MAX_BACKOFF", 30*time.Second)

		// Replacement config
		instance.Replace.MinLength = getEnvInt("REPLACE_MIN_LENGTH", 5)
		instance.Replace.MaxLength = getEnvInt("REPLACE_MAX_LENGTH", 30)

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "text")

		// Observability config
		instance.Observability.MetricsAddr = getEnvString("METRICS_ADDR", "")
		instance.Observability.TraceEnabled = getEnvBool("TRACE_ENABLED", false)

		// Vault config
		instance.Vault.Address = getEnvString("VAULT_ADDR", "")
		instance.Vault.Token = getEnvString("VAULT_TOKEN", "")
		instance.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
		instance.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "secret/data/discord")
		instance.Vault.SecretKey = getEnvString("VAULT_SECRET_KEY", "token")
		instance.Vault.Timeout = getEnvDuration("VAULT_TIMEOUT", 10*time.Second)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
