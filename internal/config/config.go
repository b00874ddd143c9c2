package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds shared runtime configuration for the intake API and the
// worker pool.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string
	APIKey      string
	// BaseURL is the externally reachable address used to build download
	// URLs returned to callers.
	BaseURL string

	// QueueBackend selects "memory" (in-process, default) or "redis".
	QueueBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueKey      string

	WorkerCount int

	// SaveLocation overrides the storage root. When empty the locator
	// falls back to MountPath if writable, then DefaultStorageDir.
	SaveLocation      string
	MountPath         string
	DefaultStorageDir string

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3PathStyle bool

	ImageDownloadTimeout time.Duration
	ImageMaxBytes        int64
	WebhookTimeout       time.Duration
}

// Load reads configuration from environment variables with sane defaults
// for local development.
func Load() Config {
	return Config{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
		APIKey:               getEnv("API_KEY", ""),
		BaseURL:              getEnv("API_BASE_URL", "http://localhost:8080"),
		QueueBackend:         getEnv("QUEUE_BACKEND", "memory"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		QueueKey:             getEnv("QUEUE_KEY", "queue:tasks"),
		WorkerCount:          getEnvInt("WORKER_COUNT", 4),
		SaveLocation:         getEnv("SAVE_LOCATION", ""),
		MountPath:            getEnv("STORAGE_MOUNT_PATH", "/var/www/html/storage/app"),
		DefaultStorageDir:    getEnv("STORAGE_DEFAULT_DIR", "./storage"),
		S3Endpoint:           getEnv("S3_ENDPOINT_URL", ""),
		S3Bucket:             getEnv("S3_BUCKET_NAME", ""),
		S3Region:             getEnv("S3_REGION", ""),
		S3PathStyle:          getEnvBool("S3_PATH_STYLE", false),
		ImageDownloadTimeout: getEnvDuration("IMAGE_DOWNLOAD_TIMEOUT", 30*time.Second),
		ImageMaxBytes:        getEnvInt64("IMAGE_MAX_BYTES", 25*1024*1024),
		WebhookTimeout:       getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
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
