package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TOP_DOCTORS", "")

	cfg := Load()
	assert.Equal(t, "8090", cfg.ServerPort)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.TopDoctors)
	assert.Equal(t, 5, cfg.AtRiskLimit)
	assert.Equal(t, 5*time.Minute, cfg.SummaryCacheTTL)
	assert.False(t, cfg.SkipInvalidRows)
	assert.Nil(t, cfg.AllowedSources)
	assert.Equal(t, int64(64*1024*1024), cfg.MaxDatasetBytes)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TOP_DOCTORS", "10")
	t.Setenv("SUMMARY_CACHE_TTL", "90s")
	t.Setenv("DATASET_SOURCE", "Postgres")
	t.Setenv("AT_RISK_LIMIT", "not-a-number")
	t.Setenv("DATASET_SKIP_INVALID", "true")
	t.Setenv("DATASET_ALLOWED_SOURCES", "ehr-export,manual")

	cfg := Load()
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.TopDoctors)
	assert.Equal(t, 90*time.Second, cfg.SummaryCacheTTL)
	assert.Equal(t, "postgres", cfg.DatasetSource)
	assert.Equal(t, 5, cfg.AtRiskLimit)
	assert.True(t, cfg.SkipInvalidRows)
	assert.Equal(t, []string{"ehr-export", "manual"}, cfg.AllowedSources)
}
