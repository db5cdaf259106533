package config

import (
	"os"
	"strconv"
	"time"
)

// BackendKind selects the storage backend implementation. It is resolved
// once at startup; there is no runtime branching on bucket names.
type BackendKind string

const (
	BackendLocal BackendKind = "local"
	BackendMinIO BackendKind = "minio"
)

// LocalConfig holds settings for the filesystem backend.
type LocalConfig struct {
	Root string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// StorageConfig is the tagged backend configuration.
type StorageConfig struct {
	Backend BackendKind
	Local   LocalConfig
	MinIO   MinIOConfig
}

// AdminConfig holds the basic-auth credential pair for the administrative
// surface. Empty credentials disable the gate entirely (open access); this
// mirrors the historical default and should be reconsidered for anything
// reachable from the internet.
type AdminConfig struct {
	User     string
	Password string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	BaseURL        string
	Port           string
	MaxUploadBytes int64
	// TTL applied to new uploads; zero or negative disables expiry.
	TTL time.Duration
	// PurgeInterval is the cadence of the background purge run.
	PurgeInterval time.Duration
	// ListMax bounds the number of entries returned by the admin listing.
	ListMax      int
	MetadataPath string
	Storage      StorageConfig
	Admin        AdminConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		Port:           getEnv("PORT", "8080"), // default only for non-sensitive value
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 25<<20),
		TTL:            getEnvDuration("UPLOAD_TTL", 0),
		PurgeInterval:  getEnvDuration("PURGE_INTERVAL", 6*time.Hour),
		ListMax:        getEnvInt("LIST_MAX", 500),
		MetadataPath:   getEnv("METADATA_PATH", "data/metadata.json"),
		Storage: StorageConfig{
			Backend: BackendKind(getEnv("STORAGE_BACKEND", string(BackendLocal))),
			Local: LocalConfig{
				Root: getEnv("STORAGE_ROOT", "data/files"),
			},
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				Prefix:    getEnv("MINIO_PREFIX", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
		},
		Admin: AdminConfig{
			User:     getEnv("ADMIN_USER", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
