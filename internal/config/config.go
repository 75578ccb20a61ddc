package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Storage   StorageConfig
	Progress  ProgressConfig
	Stager    StagerConfig
	Ingestion IngestionConfig
	Server    ServerConfig
}

// StorageConfig holds record-store configuration
type StorageConfig struct {
	Type        string // "postgres", "memory"
	PostgresURI string
}

// ProgressConfig holds progress-publisher configuration
type ProgressConfig struct {
	Backend       string // "memory", "mongodb", "dynamodb"
	MongoDBURI    string
	MongoDatabase string
	Region        string // For AWS DynamoDB
	TableName     string
	Endpoint      string // Custom endpoint for local testing
}

// StagerConfig holds archive-staging configuration
type StagerConfig struct {
	S3Endpoint      string // Custom endpoint for MinIO / local testing
	S3Region        string
	AccessKeyID     string
	SecretAccessKey string
	RetryCount      int
	Timeout         time.Duration
	TempDir         string
}

// IngestionConfig holds extraction-pipeline configuration
type IngestionConfig struct {
	BatchSize int // 0 means per-domain defaults
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "postgres"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
		},
		Progress: ProgressConfig{
			Backend:       getEnv("PROGRESS_BACKEND", "memory"),
			MongoDBURI:    getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "ufdr"),
			Region:        getEnv("AWS_REGION", "us-east-1"),
			TableName:     getEnv("PROGRESS_TABLE", "extraction_jobs"),
			Endpoint:      getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
		},
		Stager: StagerConfig{
			S3Endpoint:      getEnv("S3_ENDPOINT", ""),
			S3Region:        getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RetryCount:      getEnvInt("RETRY_COUNT", 3),
			Timeout:         getEnvDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
			TempDir:         getEnv("STAGING_DIR", os.TempDir()),
		},
		Ingestion: IngestionConfig{
			BatchSize: getEnvInt("BATCH_SIZE", 0),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
