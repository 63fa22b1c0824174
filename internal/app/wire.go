package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/blob"
	"github.com/romariotrain/media-pipeline/internal/media/events"
	"github.com/romariotrain/media-pipeline/internal/media/kafka"
	"github.com/romariotrain/media-pipeline/internal/media/lock"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/processor"
	"github.com/romariotrain/media-pipeline/internal/media/queue"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
	"github.com/romariotrain/media-pipeline/internal/media/worker"
	"github.com/romariotrain/media-pipeline/internal/storage/postgres"
	"github.com/romariotrain/media-pipeline/internal/storage/sqlite"
	"github.com/romariotrain/media-pipeline/internal/storage/sqlstore"
)

type Options struct {
	// Subscribe starts the event relay so remote events reach local
	// subscribers. Processes without clients leave it off.
	Subscribe bool
}

// Infra holds every backend selected by configuration. Nothing is global:
// cmd binaries build one Infra and pass its parts down.
type Infra struct {
	Jobs        repository.JobRepository
	Thumbnails  queue.Queue
	Conversions queue.Queue
	Router      *queue.Router
	Locker      lock.Locker
	Hub         *events.Hub
	Bus         events.Bus
	Blobs       blob.Store
	Processor   processor.Processor
	// ArtifactsDir is set when artifacts live on the local disk.
	ArtifactsDir string

	cfg      config.Config
	logger   zerolog.Logger
	redis    *redis.Client
	promoter *queue.Promoter
	relay    events.Relay
	closers  []func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (_ *Infra, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	in := &Infra{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = in.Close()
		}
	}()

	if err := in.buildStore(ctx); err != nil {
		return nil, err
	}
	if err := in.buildQueues(ctx); err != nil {
		return nil, err
	}
	if err := in.buildBus(ctx, opts); err != nil {
		return nil, err
	}
	if err := in.buildBlobs(ctx); err != nil {
		return nil, err
	}
	in.Processor = processor.New(processor.Config{
		FFmpegPath:    cfg.Processor.FFmpegPath,
		FFprobePath:   cfg.Processor.FFprobePath,
		ThumbnailSize: cfg.Processor.ThumbnailSize,
		ImageFormat:   cfg.Processor.ImageFormat,
		VideoCodec:    cfg.Processor.VideoCodec,
		VideoFormat:   cfg.Processor.VideoFormat,
		Preset:        cfg.Processor.Preset,
		CRF:           cfg.Processor.CRF,
		AudioCodec:    cfg.Processor.AudioCodec,
		AudioBitrate:  cfg.Processor.AudioBitrate,
	}, nil)

	logger.Info().
		Str("store", cfg.Store).
		Str("queue", cfg.QueueBackend).
		Str("event_bus", cfg.EventBus).
		Str("blob", cfg.Blob).
		Msg("infrastructure ready")
	return in, nil
}

func (in *Infra) buildStore(ctx context.Context) error {
	switch in.cfg.Store {
	case config.StoreMemory:
		in.Jobs = repository.NewMemoryRepository()
		return nil
	case config.StorePostgres:
		db, err := postgres.Connect(ctx, in.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		in.closers = append(in.closers, db.Close)
		repo := sqlstore.NewJobRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		in.Jobs = repo
		return nil
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, in.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		in.closers = append(in.closers, db.Close)
		repo := sqlstore.NewJobRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		in.Jobs = repo
		return nil
	default:
		return fmt.Errorf("unknown store %q", in.cfg.Store)
	}
}

func (in *Infra) redisClient(ctx context.Context) (*redis.Client, error) {
	if in.redis != nil {
		return in.redis, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     in.cfg.Redis.Addr,
		Password: in.cfg.Redis.Password,
		DB:       in.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", in.cfg.Redis.Addr, err)
	}
	in.redis = client
	in.closers = append(in.closers, client.Close)
	return client, nil
}

func (in *Infra) buildQueues(ctx context.Context) error {
	opts := queue.Options{Visibility: in.cfg.Visibility, PollInterval: in.cfg.PollInterval}

	switch in.cfg.QueueBackend {
	case config.BackendMemory:
		in.Thumbnails = queue.NewMemoryQueue(models.ThumbnailQueue, opts)
		in.Conversions = queue.NewMemoryQueue(models.ConversionQueue, opts)
		in.Locker = lock.NewMemoryLocker()
	case config.BackendRedis:
		client, err := in.redisClient(ctx)
		if err != nil {
			return err
		}
		thumbs := queue.NewRedisQueue(client, models.ThumbnailQueue, opts)
		converts := queue.NewRedisQueue(client, models.ConversionQueue, opts)
		in.Thumbnails, in.Conversions = thumbs, converts
		in.Locker = lock.NewRedisLocker(client)

		p, err := queue.NewPromoter(queue.PromoterConfig{
			Queues:   []queue.Promotable{thumbs, converts},
			Interval: in.cfg.PromoteInterval,
			Logger:   in.logger,
		})
		if err != nil {
			return fmt.Errorf("queue promoter: %w", err)
		}
		in.promoter = p
	default:
		return fmt.Errorf("unknown queue backend %q", in.cfg.QueueBackend)
	}

	in.Router = queue.NewRouter(in.Thumbnails, in.Conversions)
	return nil
}

func (in *Infra) buildBus(ctx context.Context, opts Options) error {
	in.Hub = events.NewHub(0, in.logger)

	switch in.cfg.EventBus {
	case config.BackendMemory:
		in.Bus = in.Hub
	case config.BackendRedis:
		client, err := in.redisClient(ctx)
		if err != nil {
			return err
		}
		bus := events.NewRedisBus(client, in.cfg.EventsChannel, in.Hub, in.logger)
		in.Bus = bus
		if opts.Subscribe {
			in.relay = bus
		}
	case config.BackendKafka:
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: in.cfg.Kafka.Brokers,
			Topic:   in.cfg.Kafka.Topic,
			Logger:  in.logger,
		})
		if err != nil {
			return err
		}
		in.closers = append(in.closers, producer.Close)

		var sub *kafka.Subscriber
		if opts.Subscribe {
			sub, err = kafka.NewSubscriber(kafka.SubscriberConfig{
				Brokers: in.cfg.Kafka.Brokers,
				Topic:   in.cfg.Kafka.Topic,
				GroupID: instanceGroup(in.cfg.Kafka.GroupPrefix),
				Logger:  in.logger,
			})
			if err != nil {
				return err
			}
			in.closers = append(in.closers, sub.Close)
		}
		bus := events.NewKafkaBus(producer, sub, in.Hub, in.logger)
		in.Bus = bus
		if sub != nil {
			in.relay = bus
		}
	default:
		return fmt.Errorf("unknown event bus %q", in.cfg.EventBus)
	}
	return nil
}

func (in *Infra) buildBlobs(ctx context.Context) error {
	switch in.cfg.Blob {
	case config.BlobLocal:
		store, err := blob.NewLocalStore(in.cfg.Local.Dir, in.cfg.Local.BaseURL)
		if err != nil {
			return err
		}
		in.Blobs = store
		in.ArtifactsDir = store.Root()
	case config.BlobMinIO:
		store, err := blob.NewMinIOStore(ctx, blob.MinIOConfig{
			Endpoint:  in.cfg.MinIO.Endpoint,
			AccessKey: in.cfg.MinIO.AccessKey,
			SecretKey: in.cfg.MinIO.SecretKey,
			UseSSL:    in.cfg.MinIO.UseSSL,
			Region:    in.cfg.MinIO.Region,
			Bucket:    in.cfg.MinIO.Bucket,
			PublicURL: in.cfg.MinIO.PublicURL,
		})
		if err != nil {
			return err
		}
		in.Blobs = store
	default:
		return fmt.Errorf("unknown blob backend %q", in.cfg.Blob)
	}
	return nil
}

// Pools builds one worker pool per queue. A queue whose concurrency is set
// to zero gets no pool.
func (in *Infra) Pools() ([]*worker.Pool, error) {
	specs := []struct {
		q queue.Queue
		n int
	}{
		{in.Thumbnails, in.cfg.Workers.ThumbnailConcurrency},
		{in.Conversions, in.cfg.Workers.ConversionConcurrency},
	}

	var pools []*worker.Pool
	for _, s := range specs {
		if s.n == 0 {
			in.logger.Warn().Str("queue", s.q.Name()).Msg("no workers configured for queue")
			continue
		}
		p, err := worker.NewPool(worker.Deps{
			Queue:     s.q,
			Locker:    in.Locker,
			Jobs:      in.Jobs,
			Blobs:     in.Blobs,
			Processor: in.Processor,
			Events:    in.Bus,
		}, worker.Config{
			Concurrency: s.n,
			LockTTL:     in.cfg.Workers.LockTTL,
			RetryDelay:  in.cfg.Workers.RetryDelay,
			WorkDir:     in.cfg.Workers.WorkDir,
			Logger:      in.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("worker pool %s: %w", s.q.Name(), err)
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// Start launches the background loops (queue promoter, event relay) on g.
func (in *Infra) Start(ctx context.Context, g *errgroup.Group) {
	if in.promoter != nil {
		g.Go(func() error { return ignoreCanceled(in.promoter.Start(ctx)) })
	}
	if in.relay != nil {
		g.Go(func() error { return ignoreCanceled(in.relay.Run(ctx)) })
	}
}

// Close releases connections in reverse order of creation.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}

func instanceGroup(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%s-%d", prefix, host, os.Getpid())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
