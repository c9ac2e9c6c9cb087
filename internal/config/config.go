package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	StoreDriver string

	ServerPort string

	JWTSecret string

	// RedisURL is optional; when set, live events are relayed across instances.
	RedisURL string

	LiveBufferSize  int
	LiveHeartbeat   time.Duration
	PublishTimeout  time.Duration
	ShutdownTimeout time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2FilePrefix      string
}

// FileDirectoryEnabled reports whether enough R2 settings are present to
// check file existence against the bucket.
func (c *Config) FileDirectoryEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	storeDriver := os.Getenv("STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = StoreDriverPostgres
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	filePrefix := os.Getenv("R2_FILE_PREFIX")
	if filePrefix == "" {
		filePrefix = "files"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		StoreDriver: storeDriver,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		LiveBufferSize:  positiveInt("LIVE_BUFFER_SIZE", 32),
		LiveHeartbeat:   time.Duration(positiveInt("LIVE_HEARTBEAT_SECONDS", 25)) * time.Second,
		PublishTimeout:  time.Duration(positiveInt("PUBLISH_TIMEOUT_MS", 2000)) * time.Millisecond,
		ShutdownTimeout: time.Duration(positiveInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2FilePrefix:      filePrefix,
	}, nil
}

// positiveInt reads an integer env var, falling back when unset or not positive.
func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
