package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Classifier ClassifierConfig
	Detection  DetectionConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS configuration for analysis events
type NATSConfig struct {
	URL     string
	Subject string
	Enabled bool
}

// ClassifierConfig holds classifier artifact configuration
type ClassifierConfig struct {
	ModelPath      string
	VectorizerPath string
	Threshold      float64
}

// DetectionConfig holds fraud detection tuning parameters
type DetectionConfig struct {
	DuplicateThreshold   float64       // duplicate_text rule fires above this
	DuplicateCorpusLimit int           // max prior reviews scanned per product
	UserRateWindow       time.Duration // trailing window for the rate_limit rule
	ProductRateWindow    time.Duration // trailing window for the burst_activity rule
	BurstGap             time.Duration // max gap between consecutive reviews in a burst
	BatchWorkers         int           // classifier workers during a batch run
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "reviewguard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Subject: getEnv("NATS_ANALYSIS_SUBJECT", "reviewguard.analysis.completed"),
			Enabled: getEnvAsBool("NATS_ENABLED", false),
		},
		Classifier: ClassifierConfig{
			ModelPath:      getEnv("CLASSIFIER_MODEL_PATH", "artifacts/model.json"),
			VectorizerPath: getEnv("CLASSIFIER_VECTORIZER_PATH", "artifacts/vectorizer.json"),
			Threshold:      getEnvAsFloat("CLASSIFIER_THRESHOLD", 0.5),
		},
		Detection: DetectionConfig{
			DuplicateThreshold:   getEnvAsFloat("DETECTION_DUPLICATE_THRESHOLD", 0.8),
			DuplicateCorpusLimit: getEnvAsInt("DETECTION_DUPLICATE_CORPUS_LIMIT", 1000),
			UserRateWindow:       getEnvAsDuration("DETECTION_USER_RATE_WINDOW", 5*time.Minute),
			ProductRateWindow:    getEnvAsDuration("DETECTION_PRODUCT_RATE_WINDOW", 10*time.Minute),
			BurstGap:             getEnvAsDuration("DETECTION_BURST_GAP", 5*time.Minute),
			BatchWorkers:         getEnvAsInt("DETECTION_BATCH_WORKERS", 8),
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
