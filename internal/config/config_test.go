package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, BackendMemory, cfg.QueueBackend)
	assert.Equal(t, BackendMemory, cfg.EventBus)
	assert.Equal(t, BlobLocal, cfg.Blob)
	assert.Equal(t, 60*time.Second, cfg.Workers.LockTTL)
	assert.Equal(t, 2*time.Second, cfg.Workers.RetryDelay)
	assert.Equal(t, 128, cfg.Processor.ThumbnailSize)
	assert.False(t, cfg.InlineWorkers)
	assert.False(t, cfg.Distributed())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/media")
	t.Setenv("QUEUE_BACKEND", "redis")
	t.Setenv("EVENT_BUS", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("THUMBNAIL_CONCURRENCY", "4")
	t.Setenv("RETRY_DELAY", "500ms")
	t.Setenv("INLINE_WORKERS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Workers.ThumbnailConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Workers.RetryDelay)
	assert.True(t, cfg.InlineWorkers)
	assert.True(t, cfg.Distributed())
	require.NoError(t, cfg.Validate())
}

func TestLoad_ReportsAllParseErrors(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	t.Setenv("LOCK_TTL", "forever")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "LOCK_TTL")
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"postgres without dsn", func(c *Config) { c.Store = StorePostgres }, "DATABASE_URL"},
		{"unknown store", func(c *Config) { c.Store = "mongo" }, "STORE_DRIVER"},
		{"unknown queue", func(c *Config) { c.QueueBackend = "sqs" }, "QUEUE_BACKEND"},
		{"unknown bus", func(c *Config) { c.EventBus = "nats" }, "EVENT_BUS"},
		{"kafka without brokers", func(c *Config) { c.EventBus = BackendKafka; c.Kafka.Brokers = nil }, "KAFKA_BROKERS"},
		{"minio without bucket", func(c *Config) { c.Blob = BlobMinIO; c.MinIO.Bucket = "" }, "MINIO_BUCKET"},
		{"negative concurrency", func(c *Config) { c.Workers.ConversionConcurrency = -1 }, "concurrency"},
		{"zero retry delay", func(c *Config) { c.Workers.RetryDelay = 0 }, "RETRY_DELAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
