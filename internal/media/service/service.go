package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

// Enqueuer hands a message to the queue for its job kind.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.Message) error
}

type SubmitRequest struct {
	OwnerID      string
	SourcePath   string
	OriginalName string
	MimeType     string
	// MediaKind is derived from MimeType when empty.
	MediaKind models.MediaKind
	JobKind   models.JobKind
}

type Service struct {
	jobs     repository.JobRepository
	enqueuer Enqueuer
	clock    func() time.Time
	idGen    func() uuid.UUID
}

func New(jobs repository.JobRepository, enqueuer Enqueuer) *Service {
	return &Service{
		jobs:     jobs,
		enqueuer: enqueuer,
		clock:    time.Now,
		idGen:    uuid.New,
	}
}

// Submit creates the job record and only then enqueues it, so a worker never
// sees a message for a record that does not exist yet.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if req.OwnerID == "" || req.SourcePath == "" || !req.JobKind.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	kind := req.MediaKind
	if kind == "" {
		kind = models.MediaKindFromMIME(req.MimeType)
	}

	now := s.clock().UTC()
	j := &models.Job{
		ID:           s.idGen().String(),
		OwnerID:      req.OwnerID,
		SourcePath:   req.SourcePath,
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
		MediaKind:    kind,
		JobKind:      req.JobKind,
		Status:       domain.Queued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, err
	}

	if err := s.enqueuer.Enqueue(ctx, models.NewMessage(j, now)); err != nil {
		// Nothing will ever pick the record up, so it is closed here instead
		// of staying queued forever.
		reason := "enqueue failed: " + err.Error()
		if _, uerr := s.jobs.UpdateStatus(context.WithoutCancel(ctx), j.ID, models.StatusUpdate{
			Status: domain.Failed,
			Reason: reason,
		}); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return nil, fmt.Errorf("enqueue job %s: %w", j.ID, err)
	}
	return j, nil
}

// QueryJobs returns the owner's jobs, newest first.
func (s *Service) QueryJobs(ctx context.Context, ownerID string) ([]*models.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.jobs.FindByOwner(ctx, ownerID)
}

// GetJob returns a job by id. Domain errors pass through so the transport
// layer can map them.
func (s *Service) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.jobs.GetByID(ctx, id)
}
