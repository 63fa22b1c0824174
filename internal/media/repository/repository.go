package repository

import (
	"context"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// JobRepository is the job record store. Every write is a single-document
// update addressed by job id.
type JobRepository interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	// UpdateStatus applies u only if the transition is allowed from the
	// current status. Writing the current status again is a no-op.
	UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.Job, error)
	// FindByOwner returns the owner's jobs, newest first.
	FindByOwner(ctx context.Context, ownerID string) ([]*models.Job, error)
}
