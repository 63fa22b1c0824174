// Package sqlstore is the job record store on top of sqlx. Queries are written
// with '?' placeholders and rebound for the driver, so the same repository
// serves Postgres (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		source_path   TEXT NOT NULL,
		original_name TEXT NOT NULL DEFAULT '',
		mime_type     TEXT NOT NULL DEFAULT '',
		media_kind    TEXT NOT NULL,
		job_kind      TEXT NOT NULL,
		status        TEXT NOT NULL,
		result_url    TEXT NOT NULL DEFAULT '',
		reason        TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_owner_created_idx ON jobs (owner_id, created_at)`,
}

const jobColumns = `id, owner_id, source_path, original_name, mime_type, media_kind, job_kind,
	status, result_url, reason, created_at, updated_at`

type JobRepo struct {
	db    *sqlx.DB
	clock func() time.Time
}

func NewJobRepo(db *sqlx.DB) *JobRepo {
	return &JobRepo{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the jobs table if it does not exist yet.
func (r *JobRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w: %w", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	if j == nil || j.ID == "" {
		return domain.ErrInvalidArgument
	}
	q := r.db.Rebind(`
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, q,
		j.ID, j.OwnerID, j.SourcePath, j.OriginalName, j.MimeType, j.MediaKind, j.JobKind,
		j.Status, j.ResultURL, j.Reason, j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("job create: %w: %w", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job create: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	var j models.Job
	if err := r.db.GetContext(ctx, &j, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("job get by id: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return &j, nil
}

// UpdateStatus is a conditional single-row update: the WHERE clause only
// matches rows whose current status may move to u.Status. When nothing
// matches, the current row decides between a no-op and an invalid transition.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}

	set := `status = ?, updated_at = ?`
	args := []any{u.Status, r.clock()}
	switch u.Status {
	case domain.Completed:
		set += `, result_url = ?`
		args = append(args, u.ResultURL)
	case domain.Failed:
		set += `, reason = ?`
		args = append(args, u.Reason)
	}

	var from []domain.Status
	for _, s := range domain.Sources(u.Status) {
		if s != u.Status {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		// Nothing can move into u.Status; only a same-state no-op is possible.
		return r.noopOrInvalid(ctx, id, u.Status)
	}

	q, inArgs, err := sqlx.In(`UPDATE jobs SET `+set+` WHERE id = ? AND status IN (?)`, append(args, id, from)...)
	if err != nil {
		return nil, fmt.Errorf("job update status: build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("job update status: %w: %w", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("job update status: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return r.noopOrInvalid(ctx, id, u.Status)
	}
	return r.GetByID(ctx, id)
}

func (r *JobRepo) noopOrInvalid(ctx context.Context, id string, to domain.Status) (*models.Job, error) {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(cur.Status, to); err != nil {
		return nil, err
	}
	return cur, nil
}

func (r *JobRepo) FindByOwner(ctx context.Context, ownerID string) ([]*models.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = ? ORDER BY created_at DESC`)

	jobs := make([]*models.Job, 0)
	if err := r.db.SelectContext(ctx, &jobs, q, ownerID); err != nil {
		return nil, fmt.Errorf("job find by owner: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return jobs, nil
}
