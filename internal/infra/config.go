package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"

	devSigningKey = "clipstudio-dev-signing-key"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv       string
	LogLevel     string
	Port         string
	DatabaseURL  string
	DBMaxConns   int
	RegistryPath string

	ProviderBaseURL     string
	ProviderAPIKey      string
	ProviderAspectRatio string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiBaseURL       string

	StorageDriver     string
	StoragePath       string
	StorageBaseURL    string
	StorageSigningKey string
	AWSRegion         string
	S3Endpoint        string
	S3UsePathStyle    bool
	ReferenceBucket   string
	WorkspaceBucket   string

	TimelineMaxFrame     int
	TimelineFrameQuantum int
	TimelineMaxSlots     int

	JobPollInterval     time.Duration
	JobPollTimeout      time.Duration
	WorkerConcurrency   int
	WorkerClaimInterval time.Duration
	ArchiveResults      bool
	ArchiveMaxBytes     int64

	HTTPReadTimeout       time.Duration
	HTTPReadHeaderTimeout time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
	HTTPShutdownTimeout   time.Duration
	RateLimitPerMin       int
	CORSOrigins           []string
	DefaultLocale         string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Port:         port,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),
		RegistryPath: os.Getenv("REGISTRY_PATH"),

		ProviderBaseURL:     os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:      os.Getenv("PROVIDER_API_KEY"),
		ProviderAspectRatio: getEnv("PROVIDER_ASPECT_RATIO", "16:9"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "veo-3.0-generate-preview"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverLocal)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/v1/files"),
		StorageSigningKey: os.Getenv("STORAGE_SIGNING_KEY"),
		AWSRegion:         os.Getenv("AWS_REGION"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		ReferenceBucket:   getEnv("REFERENCE_BUCKET", "references"),
		WorkspaceBucket:   getEnv("WORKSPACE_BUCKET", "workspace"),

		TimelineMaxFrame:     getEnvInt("TIMELINE_MAX_FRAME", 160),
		TimelineFrameQuantum: getEnvInt("TIMELINE_FRAME_QUANTUM", 8),
		TimelineMaxSlots:     getEnvInt("TIMELINE_MAX_SLOTS", 10),

		JobPollInterval:     getEnvMillis("JOB_POLL_INTERVAL_MS", 5*time.Second),
		JobPollTimeout:      getEnvMillis("JOB_POLL_TIMEOUT_MS", 120*time.Second),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 16),
		WorkerClaimInterval: getEnvMillis("WORKER_CLAIM_INTERVAL_MS", 2*time.Second),
		ArchiveResults:      getEnvBool("ARCHIVE_RESULTS", true),
		ArchiveMaxBytes:     int64(getEnvInt("ARCHIVE_MAX_MB", 512)) << 20,

		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPReadHeaderTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_HEADER_TIMEOUT_SECONDS", 5)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		HTTPShutdownTimeout:   time.Second * time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 20)),
		RateLimitPerMin:       getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:           getEnvList("CORS_ALLOWED_ORIGINS"),
		DefaultLocale:         getEnv("DEFAULT_LOCALE", "en"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageDriver {
	case StorageDriverLocal:
		if cfg.StorageSigningKey == "" {
			if cfg.AppEnv != "development" {
				return nil, fmt.Errorf("STORAGE_SIGNING_KEY is required for the local storage driver")
			}
			cfg.StorageSigningKey = devSigningKey
		}
	case StorageDriverS3:
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverLocal, StorageDriverS3, cfg.StorageDriver)
	}

	if cfg.TimelineFrameQuantum <= 0 || cfg.TimelineMaxFrame <= 0 || cfg.TimelineMaxFrame%cfg.TimelineFrameQuantum != 0 {
		return nil, fmt.Errorf("TIMELINE_MAX_FRAME (%d) must be a positive multiple of TIMELINE_FRAME_QUANTUM (%d)", cfg.TimelineMaxFrame, cfg.TimelineFrameQuantum)
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

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if ms := getEnvInt(key, -1); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
