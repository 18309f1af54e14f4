package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	// 日志
	LogLevel      string
	LogFile       string // empty = stdout only
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogDev        bool

	// MySQL（曲库与持币余额）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO（流地址签名）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	PresignExpiry  time.Duration

	IPFSGateway string // e.g. https://ipfs.io/ipfs/

	JWTSecret string
	JWTExpiry time.Duration

	// IndexerToken authenticates the chain indexer pushing balances.
	IndexerToken string

	// CatalogFile switches the catalog to a YAML file instead of MySQL.
	CatalogFile string
	FeedLimit   int

	UnlockCacheTTL     time.Duration
	UnlockPrefetchSize int // 并发预取解锁状态的上限
	SnapshotTTL        time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		LogDev:        getEnvBool("LOG_DEV", false),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "vibelock"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "vibelock"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),
		PresignExpiry:  getEnvDuration("PRESIGN_EXPIRY", time.Hour),

		IPFSGateway: getEnv("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		IndexerToken: os.Getenv("INDEXER_TOKEN"),

		CatalogFile: getEnv("CATALOG_FILE", ""),
		FeedLimit:   getEnvInt("FEED_LIMIT", 50),

		UnlockCacheTTL:     getEnvDuration("UNLOCK_CACHE_TTL", 30*time.Second),
		UnlockPrefetchSize: getEnvInt("UNLOCK_PREFETCH_CONCURRENCY", 8),
		SnapshotTTL:        getEnvDuration("SNAPSHOT_TTL", 24*time.Hour),
	}
}

// MinioEnabled reports whether MinIO signing is configured.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != ""
}
