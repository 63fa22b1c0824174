package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	data  map[string]*models.Job
	clock func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data:  make(map[string]*models.Job),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, j *models.Job) error {
	if j == nil || j.ID == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[j.ID]; exists {
		return domain.ErrConflict
	}

	// Store a copy so the caller cannot mutate the record behind our back.
	cp := *j
	r.data[j.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := domain.ValidateTransition(j.Status, u.Status); err != nil {
		return nil, err
	}
	if j.Status != u.Status {
		j.Status = u.Status
		switch u.Status {
		case domain.Completed:
			j.ResultURL = u.ResultURL
		case domain.Failed:
			j.Reason = u.Reason
		}
		j.UpdatedAt = r.clock()
	}

	cp := *j
	return &cp, nil
}

func (r *MemoryRepository) FindByOwner(ctx context.Context, ownerID string) ([]*models.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Job, 0)
	for _, j := range r.data {
		if j.OwnerID != ownerID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}
