// Package worker runs the job pools. Each pool drains one queue with a fixed
// number of goroutines and serializes work per owner through the lock.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/media/blob"
	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/lock"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/processor"
	"github.com/romariotrain/media-pipeline/internal/media/queue"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

const (
	DefaultRetryDelay = 2 * time.Second
	releaseTimeout    = 5 * time.Second
)

// Publisher is the part of the event bus a worker needs.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
}

type Deps struct {
	Queue     queue.Queue
	Locker    lock.Locker
	Jobs      repository.JobRepository
	Blobs     blob.Store
	Processor processor.Processor
	Events    Publisher
}

type Config struct {
	Concurrency int
	LockTTL     time.Duration
	RetryDelay  time.Duration
	// WorkDir holds per-job scratch directories.
	WorkDir string
	Logger  zerolog.Logger
	// Clock stamps notBefore on deferred deliveries. It must agree with the
	// queue's clock. Defaults to time.Now.
	Clock func() time.Time
}

// GateOutcome is the result of trying to take the owner lock.
type GateOutcome int

const (
	GateProceed GateOutcome = iota
	GateDeferred
	GateError
)

type GateResult struct {
	Outcome GateOutcome
	Delay   time.Duration
	Err     error
}

type Stats struct {
	Completed int64
	Failed    int64
	Deferred  int64
	Skipped   int64
}

type Pool struct {
	deps   Deps
	cfg    Config
	clock  func() time.Time
	logger zerolog.Logger

	completed atomic.Int64
	failed    atomic.Int64
	deferred  atomic.Int64
	skipped   atomic.Int64
}

func NewPool(deps Deps, cfg Config) (*Pool, error) {
	switch {
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue is required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("locker is required")
	case deps.Jobs == nil:
		return nil, fmt.Errorf("job repository is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Processor == nil:
		return nil, fmt.Errorf("processor is required")
	case deps.Events == nil:
		return nil, fmt.Errorf("event publisher is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative, got: %d", cfg.Concurrency)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.DefaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Pool{
		deps:  deps,
		cfg:   cfg,
		clock: cfg.Clock,
		logger: cfg.Logger.With().
			Str("component", "worker_pool").
			Str("queue", deps.Queue.Name()).
			Logger(),
	}, nil
}

// Run blocks until ctx is done or a worker hits an infrastructure error.
// In the latter case the remaining workers are stopped and the error is
// returned; unacked deliveries come back through the queue.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().
		Int("concurrency", p.cfg.Concurrency).
		Dur("lock_ttl", p.cfg.LockTTL).
		Dur("retry_delay", p.cfg.RetryDelay).
		Msg("worker pool started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error { return p.loop(gctx, id) })
	}
	err := g.Wait()

	s := p.Stats()
	p.logger.Info().
		Err(err).
		Int64("completed", s.Completed).
		Int64("failed", s.Failed).
		Int64("deferred", s.Deferred).
		Int64("skipped", s.Skipped).
		Msg("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	for {
		d, err := p.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrMalformedMessage) {
				p.logger.Warn().Err(err).Int("worker", id).Msg("dropped malformed message")
				continue
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		if err := p.Handle(ctx, d); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Handle runs one delivery through the gate and, if the owner lock was taken,
// to a terminal job status. A returned error means the delivery was left
// unacked.
func (p *Pool) Handle(ctx context.Context, d *queue.Delivery) error {
	m := d.Message
	log := p.logger.With().
		Str("job_id", m.JobID).
		Str("owner_id", m.OwnerID).
		Logger()

	if m.JobID == "" || m.OwnerID == "" {
		log.Warn().Msg("message without job or owner id, dropping")
		p.skipped.Add(1)
		return p.ack(ctx, d)
	}

	gate := p.gate(ctx, m)
	switch gate.Outcome {
	case GateDeferred:
		notBefore := p.clock().Add(gate.Delay)
		if err := p.deps.Queue.Defer(ctx, d, notBefore); err != nil {
			return fmt.Errorf("defer job %s: %w", m.JobID, err)
		}
		p.deferred.Add(1)
		log.Debug().
			Time("not_before", notBefore).
			Int("deferrals", m.Deferrals+1).
			Msg("owner busy, job deferred")
		return nil
	case GateError:
		return fmt.Errorf("lock gate for job %s: %w", m.JobID, gate.Err)
	}

	defer p.release(ctx, m.OwnerID, log)
	return p.execute(ctx, d, log)
}

func (p *Pool) gate(ctx context.Context, m models.Message) GateResult {
	ok, err := p.deps.Locker.Acquire(ctx, m.OwnerID, p.cfg.LockTTL)
	switch {
	case err != nil:
		return GateResult{Outcome: GateError, Err: err}
	case !ok:
		return GateResult{Outcome: GateDeferred, Delay: p.cfg.RetryDelay}
	default:
		return GateResult{Outcome: GateProceed}
	}
}

func (p *Pool) release(ctx context.Context, owner string, log zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.deps.Locker.Release(rctx, owner); err != nil {
		// The TTL clears it eventually.
		log.Error().Err(err).Msg("failed to release owner lock")
	}
}

func (p *Pool) execute(ctx context.Context, d *queue.Delivery, log zerolog.Logger) error {
	jobID := d.Message.JobID

	job, err := p.deps.Jobs.GetByID(ctx, jobID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn().Msg("job record not found, dropping message")
		p.skipped.Add(1)
		return p.ack(ctx, d)
	case err != nil:
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if domain.IsTerminal(job.Status) {
		log.Info().Str("status", string(job.Status)).Msg("job already finished, acking redelivery")
		p.skipped.Add(1)
		return p.ack(ctx, d)
	}

	if _, err := p.deps.Jobs.UpdateStatus(ctx, jobID, models.StatusUpdate{Status: domain.Processing}); err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	log.Info().
		Str("media_kind", string(job.MediaKind)).
		Str("job_kind", string(job.JobKind)).
		Msg("job processing")

	url, err := p.produce(ctx, job)
	if err != nil {
		if domain.IsProcessingError(err) {
			return p.fail(ctx, d, err, log)
		}
		return fmt.Errorf("process job %s: %w", jobID, err)
	}
	return p.complete(ctx, d, url, log)
}

// produce fetches the source, runs the processor and stores the artifact.
func (p *Pool) produce(ctx context.Context, job *models.Job) (string, error) {
	dir, err := os.MkdirTemp(p.cfg.WorkDir, "job-"+job.ID+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source"+path.Ext(job.SourcePath))
	if err := p.deps.Blobs.Fetch(ctx, job.SourcePath, src); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NewProcessingError("fetch source", err)
		}
		return "", fmt.Errorf("fetch source: %w", err)
	}

	res, err := p.deps.Processor.Process(ctx, processor.Request{
		JobID:      job.ID,
		SourcePath: src,
		MediaKind:  job.MediaKind,
		JobKind:    job.JobKind,
		OutDir:     dir,
	})
	if err != nil {
		return "", err
	}

	url, err := p.deps.Blobs.Put(ctx, processor.ArtifactKey(job.ID, res), res.Path, res.ContentType)
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return url, nil
}

func (p *Pool) complete(ctx context.Context, d *queue.Delivery, url string, log zerolog.Logger) error {
	jobID := d.Message.JobID
	if _, err := p.deps.Jobs.UpdateStatus(ctx, jobID, models.StatusUpdate{
		Status:    domain.Completed,
		ResultURL: url,
	}); err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}

	p.publish(ctx, models.NewJobCompleted(jobID, url), log)
	if err := p.ack(ctx, d); err != nil {
		return err
	}
	p.completed.Add(1)
	log.Info().Str("result_url", url).Msg("job completed")
	return nil
}

func (p *Pool) fail(ctx context.Context, d *queue.Delivery, cause error, log zerolog.Logger) error {
	jobID := d.Message.JobID
	reason := cause.Error()
	if reason == "" {
		reason = "processing failed"
	}

	if _, err := p.deps.Jobs.UpdateStatus(ctx, jobID, models.StatusUpdate{
		Status: domain.Failed,
		Reason: reason,
	}); err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}

	p.publish(ctx, models.NewJobFailed(jobID, reason), log)
	if err := p.ack(ctx, d); err != nil {
		return err
	}
	p.failed.Add(1)
	log.Warn().Str("reason", reason).Msg("job failed")
	return nil
}

// publish is best-effort: the job record already holds the outcome.
func (p *Pool) publish(ctx context.Context, e models.Event, log zerolog.Logger) {
	if err := p.deps.Events.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("event", e.Name).Msg("failed to publish job event")
	}
}

func (p *Pool) ack(ctx context.Context, d *queue.Delivery) error {
	if err := p.deps.Queue.Ack(ctx, d); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Message.JobID, err)
	}
	return nil
}

func (p *Pool) Stats() Stats {
	return Stats{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Deferred:  p.deferred.Load(),
		Skipped:   p.skipped.Load(),
	}
}
