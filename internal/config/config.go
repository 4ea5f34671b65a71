package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds shared runtime configuration for the API and worker services.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StorageBucket    string
	StorageRegion    string
	StorageEndpoint  string
	StoragePathStyle bool
	// PublicBaseURL prefixes artifact URLs recorded on completed tasks.
	// Empty derives URLs from bucket and endpoint.
	PublicBaseURL string

	VisibilityTimeout  time.Duration
	WorkerPollInterval time.Duration
	MaxReceives        int
	UpdateRetries      int

	DownloadTimeout time.Duration
	MaxVideoBytes   int64
	FFmpegPath      string
	FFprobePath     string

	SpeechEndpoint   string
	SpeechAPIKey     string
	SpeechFolderID   string
	SpeechLanguage   string
	SpeechSampleRate int

	GeminiAPIKey string
	GeminiModel  string

	// AllowedVideoHosts restricts submission links to matching host suffixes.
	// Empty disables the host check.
	AllowedVideoHosts []string

	RateLimitCapacity int
	RateLimitRefill   float64
	DLQName           string
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "us-east-1"),
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StoragePathStyle: getEnvBool("STORAGE_PATH_STYLE", false),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),

		VisibilityTimeout:  getEnvDuration("VISIBILITY_TIMEOUT", 30*time.Minute),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		MaxReceives:        getEnvInt("MAX_RECEIVES", 5),
		UpdateRetries:      getEnvInt("UPDATE_RETRIES", 3),

		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
		MaxVideoBytes:   getEnvInt64("MAX_VIDEO_BYTES", 2*1024*1024*1024),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),

		SpeechEndpoint:   getEnv("SPEECH_ENDPOINT", "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"),
		SpeechAPIKey:     getEnv("SPEECH_API_KEY", ""),
		SpeechFolderID:   getEnv("SPEECH_FOLDER_ID", ""),
		SpeechLanguage:   getEnv("SPEECH_LANGUAGE", "auto"),
		SpeechSampleRate: getEnvInt("SPEECH_SAMPLE_RATE", 16000),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		AllowedVideoHosts: getEnvList("ALLOWED_VIDEO_HOSTS", nil),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 5),
		DLQName:           getEnv("DLQ_NAME", "lectures:dlq"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
