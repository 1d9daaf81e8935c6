package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Postgres. DATABASE_URL wins; otherwise the URL is assembled from the
	// individual DB_* variables. Empty means the appointment store runs
	// disabled.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	OpenAIAPIKey      string
	OpenAIAssistantID string
	OpenAIModel       string

	WhatsAppAccessToken   string
	WhatsAppVerifyToken   string
	WhatsAppPhoneNumberID string
	GraphAPIVersion       string

	AdminJWTSecret string

	RunPollInterval time.Duration
	RunTimeout      time.Duration
	ThreadTTL       time.Duration
}

// Load reads configuration from environment variables. Secrets have no
// defaults; subsystems with absent credentials run disabled instead of
// failing startup.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: databaseURL(),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIAssistantID: getEnv("OPENAI_ASSISTANT_ID", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),

		WhatsAppAccessToken:   getEnv("ACCESS_TOKEN", ""),
		WhatsAppVerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),
		GraphAPIVersion:       getEnv("GRAPH_API_VERSION", "v18.0"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RunPollInterval: getEnvAsDuration("RUN_POLL_INTERVAL", time.Second),
		RunTimeout:      getEnvAsDuration("RUN_TIMEOUT", 60*time.Second),
		ThreadTTL:       getEnvAsDuration("THREAD_TTL", 24*time.Hour),
	}
}

// databaseURL resolves the Postgres connection string. DATABASE_URL takes
// precedence over the discrete DB_* variables.
func databaseURL() string {
	if raw := getEnv("DATABASE_URL", ""); raw != "" {
		return raw
	}
	host := getEnv("DB_HOST", "")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("DB_USER", "postgres"), getEnv("DB_PASSWORD", "")),
		Host:   fmt.Sprintf("%s:%s", host, getEnv("DB_PORT", "5432")),
		Path:   "/" + getEnv("DB_NAME", "postgres"),
	}
	return u.String()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
