package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/uptrace/bun"
)

type ActivityRepository interface {
	Create(ctx context.Context, event *models.ActivityEvent) error
	GetRecent(ctx context.Context, userID string, limit int) ([]*models.ActivityEvent, error)
	LatestAchievement(ctx context.Context, userID string) (string, error)
}

type activityRepository struct {
	db *bun.DB
}

func NewActivityRepository(db *bun.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, event *models.ActivityEvent) error {
	event.CreatedAt = time.Now()
	_, err := r.db.NewInsert().Model(event).Exec(ctx)
	return err
}

func (r *activityRepository) GetRecent(ctx context.Context, userID string, limit int) ([]*models.ActivityEvent, error) {
	var events []*models.ActivityEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return events, err
}

// LatestAchievement returns the title of the user's most recent achievement,
// or "" when they have none yet.
func (r *activityRepository) LatestAchievement(ctx context.Context, userID string) (string, error) {
	event := new(models.ActivityEvent)
	err := r.db.NewSelect().
		Model(event).
		Where("user_id = ?", userID).
		Where("kind = ?", models.ActivityAchievement).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	return event.Title, nil
}
