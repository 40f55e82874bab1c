// Package config resolves service configuration from the environment.
// A .env file in the working directory is loaded first when present, so
// local development can keep secrets out of the shell profile.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the publish status poll loop.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 2500 * time.Millisecond
)

// Config holds everything the HTTP service needs at startup.
type Config struct {
	Port         int
	DatabasePath string
	DynamoTable  string

	// Blob storage
	PostsBucket       string
	FramesBucket      string
	BlobPublicBaseURL string
	BlobEndpoint      string
	BlobURLExpiry     time.Duration

	// Facebook Graph API
	GraphBaseURL      string
	FacebookAppID     string
	FacebookAppSecret string

	// Generative AI
	GeminiAPIKey        string
	CaptionModels       []string
	CaptionLanguage     string
	ImagenModel         string
	ImagenEnabled       bool
	PollinationsURL     string
	AIRequestsPerMinute int

	// Identity
	JWTSecret   string
	JWTAudience string

	CORSOrigins []string

	PublishPollAttempts int
	PublishPollInterval time.Duration
}

// Load reads the configuration. It fails only when a value is present but
// unusable or when a required secret is missing.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	interval, err := getEnvDuration("PUBLISH_POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	expiry, err := getEnvDuration("BLOB_URL_EXPIRY", time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnvInt("PORT", 8080),
		DatabasePath: getEnv("DATABASE_PATH", "studio.db"),
		DynamoTable:  getEnv("DYNAMO_TABLE_NAME", ""),

		PostsBucket:       getEnv("POSTS_BUCKET", "posts"),
		FramesBucket:      getEnv("FRAMES_BUCKET", "frames"),
		BlobPublicBaseURL: getEnv("BLOB_PUBLIC_BASE_URL", ""),
		BlobEndpoint:      getEnv("BLOB_ENDPOINT", ""),
		BlobURLExpiry:     expiry,

		GraphBaseURL:      getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v18.0"),
		FacebookAppID:     getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret: getEnv("FACEBOOK_APP_SECRET", ""),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		CaptionModels:       getEnvList("CAPTION_MODELS", []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.5-flash-lite"}),
		CaptionLanguage:     getEnv("CAPTION_LANGUAGE", "Ukrainian"),
		ImagenModel:         getEnv("IMAGEN_MODEL", "imagen-3.0-generate-002"),
		ImagenEnabled:       getEnvBool("IMAGEN_ENABLED", true),
		PollinationsURL:     getEnv("POLLINATIONS_URL", "https://image.pollinations.ai/prompt/"),
		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 20),

		JWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
		JWTAudience: getEnv("AUTH_JWT_AUDIENCE", ""),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		PublishPollAttempts: getEnvInt("PUBLISH_POLL_ATTEMPTS", DefaultPollAttempts),
		PublishPollInterval: interval,
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.PublishPollAttempts < 1 {
		return nil, fmt.Errorf("PUBLISH_POLL_ATTEMPTS must be at least 1, got %d", cfg.PublishPollAttempts)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("2.5s") or bare milliseconds ("2500").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
