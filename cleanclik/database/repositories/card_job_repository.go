package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/uptrace/bun"
)

var ErrJobNotFound = errors.New("card job not found")

type CardJobRepository interface {
	Create(ctx context.Context, job *models.CardJob) error
	GetByJobID(ctx context.Context, jobID string) (*models.CardJob, error)
	// GetPending returns queued jobs ordered for draining: per-user FIFO by
	// creation time.
	GetPending(ctx context.Context) ([]*models.CardJob, error)
	BumpRetry(ctx context.Context, jobID string, nextRetryAt time.Time) error
	Delete(ctx context.Context, jobID string) error
}

type cardJobRepository struct {
	db *bun.DB
}

func NewCardJobRepository(db *bun.DB) CardJobRepository {
	return &cardJobRepository{db: db}
}

func (r *cardJobRepository) Create(ctx context.Context, job *models.CardJob) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(job).Exec(ctx)

	if err != nil {
		slog.Error("Failed to persist card job",
			slog.String("type", "db"),
			slog.String("operation", "Create"),
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
		return err
	}

	slog.Debug("Card job persisted",
		slog.String("type", "db"),
		slog.String("operation", "Create"),
		slog.String("job_id", job.JobID),
		slog.String("user_id", job.UserID))
	return nil
}

func (r *cardJobRepository) GetByJobID(ctx context.Context, jobID string) (*models.CardJob, error) {
	job := new(models.CardJob)
	err := r.db.NewSelect().
		Model(job).
		Where("job_id = ?", jobID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return job, nil
}

func (r *cardJobRepository) GetPending(ctx context.Context) ([]*models.CardJob, error) {
	var jobs []*models.CardJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("status = ?", models.CardJobStatusQueued).
		Order("user_id ASC", "created_at ASC").
		Scan(ctx)
	return jobs, err
}

func (r *cardJobRepository) BumpRetry(ctx context.Context, jobID string, nextRetryAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.CardJob)(nil)).
		Set("retry_count = retry_count + 1").
		Set("next_retry_at = ?", nextRetryAt).
		Set("updated_at = ?", time.Now()).
		Where("job_id = ?", jobID).
		Exec(ctx)
	return err
}

func (r *cardJobRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.NewDelete().
		Model((*models.CardJob)(nil)).
		Where("job_id = ?", jobID).
		Exec(ctx)
	return err
}
