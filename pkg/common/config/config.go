package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	SummaryCacheTTL time.Duration

	// Kafka
	KafkaBrokers []string
	// KafkaGroupID prefixes the per-replica consumer group of the dashboard service.
	KafkaGroupID string
	DatasetTopic string

	// Dataset
	DatasetSource         string
	DatasetPath           string
	CategoryCatalogPath   string
	PredictionWeightsPath string
	AllowedSources        []string
	SkipInvalidRows       bool
	MaxDatasetBytes       int64
	LoadHistoryTTL        time.Duration

	// Dashboard defaults
	TopDoctors  int
	AtRiskLimit int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "healthreport"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "healthreport"),
		PostgresDB:       getEnv("POSTGRES_DB", "healthreport"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		SummaryCacheTTL: getDuration("SUMMARY_CACHE_TTL", 5*time.Minute),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "healthreport-dashboard"),
		DatasetTopic: getEnv("DATASET_TOPIC", "healthreport.dataset"),

		DatasetSource:         strings.ToLower(getEnv("DATASET_SOURCE", "csv")),
		DatasetPath:           getEnv("DATASET_PATH", "healthcare_with_predictions_lim.csv"),
		CategoryCatalogPath:   getEnv("CATEGORY_CATALOG_PATH", ""),
		PredictionWeightsPath: getEnv("PREDICTION_WEIGHTS_PATH", ""),
		AllowedSources:        getStringSliceEnv("DATASET_ALLOWED_SOURCES", nil),
		SkipInvalidRows:       getBoolEnv("DATASET_SKIP_INVALID", false),
		MaxDatasetBytes:       int64(getIntEnv("DATASET_MAX_BYTES", 64*1024*1024)),
		LoadHistoryTTL:        getDuration("LOAD_HISTORY_TTL", 30*24*time.Hour),

		TopDoctors:  getIntEnv("TOP_DOCTORS", 3),
		AtRiskLimit: getIntEnv("AT_RISK_LIMIT", 5),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated list, dropping blank entries.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
