package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/events"
	"github.com/romariotrain/media-pipeline/internal/media/lock"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/queue"
	"github.com/romariotrain/media-pipeline/internal/storage/sqlstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Store = config.StoreMemory
	cfg.QueueBackend = config.BackendMemory
	cfg.EventBus = config.BackendMemory
	cfg.Blob = config.BlobLocal
	cfg.Local.Dir = t.TempDir()
	cfg.Workers.WorkDir = t.TempDir()
	return cfg
}

func TestBuild_MemoryBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.ConversionConcurrency = 0

	in, err := Build(context.Background(), cfg, zerolog.Nop(), Options{Subscribe: true})
	require.NoError(t, err)
	defer in.Close()

	assert.IsType(t, &queue.MemoryQueue{}, in.Thumbnails)
	assert.IsType(t, &lock.MemoryLocker{}, in.Locker)
	assert.Same(t, in.Hub, in.Bus.(*events.Hub))
	assert.Equal(t, cfg.Local.Dir, in.ArtifactsDir)

	q, err := in.Router.For(models.Conversion)
	require.NoError(t, err)
	assert.Equal(t, models.ConversionQueue, q.Name())

	pools, err := in.Pools()
	require.NoError(t, err)
	assert.Len(t, pools, 1, "queue with zero concurrency gets no pool")
}

func TestBuild_SQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "media.db")

	in, err := Build(context.Background(), cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	defer in.Close()

	assert.IsType(t, &sqlstore.JobRepo{}, in.Jobs)
	jobs, err := in.Jobs.FindByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestBuild_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.QueueBackend = config.BackendRedis
	cfg.EventBus = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.PromoteInterval = 10 * time.Millisecond

	in, err := Build(context.Background(), cfg, zerolog.Nop(), Options{Subscribe: true})
	require.NoError(t, err)
	defer in.Close()

	assert.IsType(t, &queue.RedisQueue{}, in.Thumbnails)
	assert.IsType(t, &lock.RedisLocker{}, in.Locker)
	assert.IsType(t, &events.RedisBus{}, in.Bus)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	in.Start(gctx, g)

	sub, unsub := in.Bus.Subscribe(ctx)
	defer unsub()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(cfg.EventsChannel)[cfg.EventsChannel] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, in.Bus.Publish(ctx, models.NewJobFailed("j1", "boom")))
	select {
	case e := <-sub:
		assert.Equal(t, "j1", e.JobID)
	case <-time.After(time.Second):
		t.Fatal("event did not come back through the relay")
	}

	cancel()
	require.NoError(t, g.Wait())
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventBus = "carrier-pigeon"

	_, err := Build(context.Background(), cfg, zerolog.Nop(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_BUS")
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueBackend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg, zerolog.Nop(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, NewLogger("debug", "json").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("nonsense", "console").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("", "json").GetLevel())
}
