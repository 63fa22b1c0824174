// Package config reads process configuration from the environment. cmd
// binaries load .env first, so variables there act as defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendKafka  = "kafka"

	BlobLocal = "local"
	BlobMinIO = "minio"
)

type Config struct {
	HTTPAddr       string
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string

	Store       string
	DatabaseURL string
	SQLitePath  string

	// QueueBackend also selects the owner lock: both must be shared by every
	// process that runs workers.
	QueueBackend    string
	Redis           Redis
	Visibility      time.Duration
	PollInterval    time.Duration
	PromoteInterval time.Duration

	EventBus      string
	EventsChannel string
	Kafka         Kafka

	Blob  string
	Local Local
	MinIO MinIO

	Workers   Workers
	Processor Processor

	// InlineWorkers runs the pools inside the API process.
	InlineWorkers bool
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers []string
	Topic   string
	// GroupPrefix is joined with the host name and pid so each process gets
	// its own consumer group and sees every event.
	GroupPrefix string
}

type Local struct {
	Dir     string
	BaseURL string
}

type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

type Workers struct {
	ThumbnailConcurrency  int
	ConversionConcurrency int
	LockTTL               time.Duration
	RetryDelay            time.Duration
	WorkDir               string
}

type Processor struct {
	FFmpegPath    string
	FFprobePath   string
	ThumbnailSize int
	ImageFormat   string
	VideoCodec    string
	VideoFormat   string
	Preset        string
	CRF           int
	AudioCodec    string
	AudioBitrate  string
}

// Load reads the environment. Values that are set but do not parse are
// reported together.
func Load() (Config, error) {
	p := &parser{}
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8081"),
		MaxUploadBytes: p.getInt64("MAX_UPLOAD_BYTES", 100<<20),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		Store:       strings.ToLower(getenv("STORE_DRIVER", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "media.db"),

		QueueBackend: strings.ToLower(getenv("QUEUE_BACKEND", BackendMemory)),
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.getInt("REDIS_DB", 0),
		},
		Visibility:      p.getDuration("QUEUE_VISIBILITY", 5*time.Minute),
		PollInterval:    p.getDuration("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
		PromoteInterval: p.getDuration("QUEUE_PROMOTE_INTERVAL", time.Second),

		EventBus:      strings.ToLower(getenv("EVENT_BUS", BackendMemory)),
		EventsChannel: getenv("EVENTS_CHANNEL", "media:events"),
		Kafka: Kafka{
			Brokers:     getenvCSV("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:       getenv("KAFKA_TOPIC", "media-events"),
			GroupPrefix: getenv("KAFKA_GROUP_PREFIX", "media-events"),
		},

		Blob: strings.ToLower(getenv("BLOB_BACKEND", BlobLocal)),
		Local: Local{
			Dir:     getenv("BLOB_DIR", "data"),
			BaseURL: getenv("PUBLIC_BASE_URL", "/artifacts"),
		},
		MinIO: MinIO{
			Endpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getenv("MINIO_BUCKET", "media"),
			Region:    os.Getenv("MINIO_REGION"),
			UseSSL:    p.getBool("MINIO_USE_SSL", false),
			PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},

		Workers: Workers{
			ThumbnailConcurrency:  p.getInt("THUMBNAIL_CONCURRENCY", 2),
			ConversionConcurrency: p.getInt("CONVERSION_CONCURRENCY", 1),
			LockTTL:               p.getDuration("LOCK_TTL", 60*time.Second),
			RetryDelay:            p.getDuration("RETRY_DELAY", 2*time.Second),
			WorkDir:               getenv("WORK_DIR", os.TempDir()),
		},
		Processor: Processor{
			FFmpegPath:    getenv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:   getenv("FFPROBE_PATH", "ffprobe"),
			ThumbnailSize: p.getInt("THUMBNAIL_SIZE", 128),
			ImageFormat:   getenv("CONVERT_IMAGE_FORMAT", "webp"),
			VideoCodec:    getenv("CONVERT_VIDEO_CODEC", "libx264"),
			VideoFormat:   getenv("CONVERT_VIDEO_FORMAT", "mp4"),
			Preset:        getenv("CONVERT_VIDEO_PRESET", "veryfast"),
			CRF:           p.getInt("CONVERT_VIDEO_CRF", 28),
			AudioCodec:    getenv("CONVERT_AUDIO_CODEC", "aac"),
			AudioBitrate:  getenv("CONVERT_AUDIO_BITRATE", "128k"),
		},

		InlineWorkers: p.getBool("INLINE_WORKERS", false),
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and combinations that cannot work.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store))
	}

	if c.QueueBackend != BackendMemory && c.QueueBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend))
	}

	switch c.EventBus {
	case BackendMemory, BackendRedis:
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka event bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_BUS %q", c.EventBus))
	}

	switch c.Blob {
	case BlobLocal:
		if c.Local.Dir == "" {
			errs = append(errs, errors.New("BLOB_DIR is empty"))
		}
	case BlobMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.Blob))
	}

	if c.Workers.ThumbnailConcurrency < 0 || c.Workers.ConversionConcurrency < 0 {
		errs = append(errs, errors.New("worker concurrency cannot be negative"))
	}
	if c.Workers.LockTTL <= 0 || c.Workers.RetryDelay <= 0 {
		errs = append(errs, errors.New("LOCK_TTL and RETRY_DELAY must be positive"))
	}
	return errors.Join(errs...)
}

// Distributed reports whether jobs can be handed between processes.
func (c Config) Distributed() bool {
	return c.QueueBackend != BackendMemory && c.Store != StoreMemory
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvCSV(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	values := splitCSV(raw)
	if len(values) == 0 {
		return fallback
	}
	return values
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}
