package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	CredentialsPath string
	CredentialsJSON string

	ProjectID     string
	Location      string
	Model         string
	VertexBaseURL string

	Bucket       string
	OutputPrefix string
	GCSBaseURL   string

	PollInterval            time.Duration
	PollDeadline            time.Duration
	PollMaxTransportRetries int
	FetchAttempts           int
	FetchRetryInterval      time.Duration

	LibraryDefaultLimit int
	LibraryMaxLimit     int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	CORSAllowedOrigins []string

	GeoIPDBPath   string
	DefaultLocale string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional here: the API entrypoint
// refuses to start without it, while the one-shot CLI runs history-less.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		CredentialsPath: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		CredentialsJSON: os.Getenv("VEO_CREDENTIALS_JSON"),

		ProjectID:     os.Getenv("VEO_PROJECT_ID"),
		Location:      getEnv("VEO_LOCATION", "us-central1"),
		Model:         getEnv("VEO_MODEL", "veo-2.0-generate-001"),
		VertexBaseURL: os.Getenv("VEO_BASE_URL"),

		Bucket:       os.Getenv("VEO_BUCKET"),
		OutputPrefix: getEnv("VEO_OUTPUT_PREFIX", "veo_outputs"),
		GCSBaseURL:   getEnv("GCS_BASE_URL", "https://storage.googleapis.com/storage/v1"),

		PollInterval:            time.Second * time.Duration(getEnvInt("VEO_POLL_INTERVAL_SECONDS", 10)),
		PollDeadline:            time.Second * time.Duration(getEnvInt("VEO_POLL_DEADLINE_SECONDS", 600)),
		PollMaxTransportRetries: getEnvInt("VEO_POLL_MAX_TRANSPORT_RETRIES", 3),
		FetchAttempts:           getEnvInt("GCS_FETCH_ATTEMPTS", 3),
		FetchRetryInterval:      time.Second * time.Duration(getEnvInt("GCS_FETCH_RETRY_SECONDS", 2)),

		LibraryDefaultLimit: getEnvInt("LIBRARY_DEFAULT_LIMIT", 20),
		LibraryMaxLimit:     getEnvInt("LIBRARY_MAX_LIMIT", 100),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		CORSAllowedOrigins: splitEnvList("CORS_ALLOWED_ORIGINS"),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("VEO_BUCKET is required")
	}

	// The generate handler blocks for up to the poll deadline; a shorter
	// write timeout would cut successful runs off mid-response.
	if cfg.HTTPWriteTimeout <= cfg.PollDeadline {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must exceed VEO_POLL_DEADLINE_SECONDS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
