package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Session persistence
	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration
	DatabaseURL   string

	// Dispatch
	UseMemoryQueue   bool
	DispatchLanes    int
	DispatchQueueURL string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Reply generation
	LLMProvider         string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	ResponderMaxRetries int
	ResponderTimeout    time.Duration

	// Qualification scoring
	ScoringConfigPath string

	// Monitoring
	MonitorMaxEntries int
	MonitorSink       string
	MonitorStreamMax  int64

	// Notification hand-off
	NotifyProvider      string
	NotifyRecipient     string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
	SESConfigurationSet string
	NotifyQueueURL      string

	AdminJWTSecret string

	// HTTP surface
	CORSAllowedOrigins []string
	MessageRateLimit   float64
	MessageBurst       int
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// LoadDotEnv reads a .env file into the process environment when present.
// Variables that are already set win over the file.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 72*time.Hour),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", true),
		DispatchLanes:    getEnvAsInt("DISPATCH_LANES", 4),
		DispatchQueueURL: getEnv("DISPATCH_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "template"))),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		ResponderMaxRetries: getEnvAsInt("RESPONDER_MAX_RETRIES", 2),
		ResponderTimeout:    getEnvAsDuration("RESPONDER_TIMEOUT", 20*time.Second),

		ScoringConfigPath: getEnv("SCORING_CONFIG_PATH", ""),

		MonitorMaxEntries: getEnvAsInt("MONITOR_MAX_ENTRIES", 10000),
		MonitorSink:       strings.ToLower(strings.TrimSpace(getEnv("MONITOR_SINK", "log"))),
		MonitorStreamMax:  int64(getEnvAsInt("MONITOR_STREAM_MAXLEN", 1000)),

		NotifyProvider:      strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_PROVIDER", "none"))),
		NotifyRecipient:     getEnv("NOTIFY_RECIPIENT", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Leadflow"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		NotifyQueueURL:      getEnv("NOTIFY_QUEUE_URL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		MessageRateLimit:   getEnvAsFloat("MESSAGE_RATE_LIMIT", 2),
		MessageBurst:       getEnvAsInt("MESSAGE_BURST", 5),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
