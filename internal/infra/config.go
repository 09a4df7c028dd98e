package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// History backends supported by the service.
const (
	HistoryBackendFile     = "file"
	HistoryBackendPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	OfflineMode        bool
	GeminiAPIKey       string
	GeminiTextModel    string
	GeminiImageModel   string
	PosterCandidates   int
	DefaultAspectRatio string
	LogoScale          float64
	RemoteCallTimeout  time.Duration
	RemoteMaxRetries   int
	HistoryBackend     string
	HistoryPath        string
	HistoryTable       string
	DatabaseURL        string
	DBMaxConns         int
	GeoIPDBPath        string
	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		OfflineMode:        getEnvBool("OFFLINE_MODE", false),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiTextModel:    getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash-001"),
		GeminiImageModel:   getEnv("GEMINI_IMAGE_MODEL", "imagen-4.0-generate-preview-06-06"),
		PosterCandidates:   getEnvInt("POSTER_CANDIDATES", 3),
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "9:16"),
		LogoScale:          float64(getEnvInt("LOGO_SCALE_PERCENT", 20)) / 100,
		RemoteCallTimeout:  time.Second * time.Duration(getEnvInt("REMOTE_CALL_TIMEOUT_SECONDS", 60)),
		RemoteMaxRetries:   getEnvInt("REMOTE_MAX_RETRIES", 2),
		HistoryBackend:     strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendFile)),
		HistoryPath:        getEnv("HISTORY_PATH", "data/history.json"),
		HistoryTable:       getEnv("HISTORY_TABLE", "generation_history"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 4),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 16)) << 20,
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if !cfg.OfflineMode && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.PosterCandidates < 1 || cfg.PosterCandidates > 4 {
		return nil, fmt.Errorf("POSTER_CANDIDATES must be between 1 and 4")
	}

	if cfg.LogoScale <= 0 || cfg.LogoScale > 1 {
		return nil, fmt.Errorf("LOGO_SCALE_PERCENT must be between 1 and 100")
	}

	switch cfg.HistoryBackend {
	case HistoryBackendFile:
		if strings.TrimSpace(cfg.HistoryPath) == "" {
			return nil, fmt.Errorf("HISTORY_PATH is required")
		}
	case HistoryBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return nil, fmt.Errorf("unsupported HISTORY_BACKEND %q", cfg.HistoryBackend)
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
