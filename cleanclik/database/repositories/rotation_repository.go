package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/uptrace/bun"
)

type RotationRepository interface {
	// Peek returns the rotation index the next generation will use without
	// moving the counter.
	Peek(ctx context.Context, userID string, cycle int) (int, error)
	// Advance returns the rotation index to use for this generation and
	// moves the persisted counter one position forward.
	Advance(ctx context.Context, userID string, cycle int) (int, error)
}

type rotationRepository struct {
	db *bun.DB
}

func NewRotationRepository(db *bun.DB) RotationRepository {
	return &rotationRepository{db: db}
}

func (r *rotationRepository) Peek(ctx context.Context, userID string, cycle int) (int, error) {
	if cycle <= 0 {
		return 0, fmt.Errorf("rotation cycle must be positive, got %d", cycle)
	}

	rotation := new(models.TemplateRotation)
	err := r.db.NewSelect().
		Model(rotation).
		Where("user_id = ?", userID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read template rotation: %w", err)
	}
	return rotation.NextIndex % cycle, nil
}

func (r *rotationRepository) Advance(ctx context.Context, userID string, cycle int) (int, error) {
	if cycle <= 0 {
		return 0, fmt.Errorf("rotation cycle must be positive, got %d", cycle)
	}

	var index int
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		rotation := new(models.TemplateRotation)
		err := tx.NewSelect().
			Model(rotation).
			Where("user_id = ?", userID).
			For("UPDATE").
			Scan(ctx)

		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			rotation = &models.TemplateRotation{
				UserID:    userID,
				NextIndex: 1 % cycle,
				UpdatedAt: time.Now(),
			}
			if _, err := tx.NewInsert().Model(rotation).Exec(ctx); err != nil {
				return err
			}
			index = 0
			return nil
		}

		index = rotation.NextIndex % cycle
		_, err = tx.NewUpdate().
			Model((*models.TemplateRotation)(nil)).
			Set("next_index = ?", (index+1)%cycle).
			Set("updated_at = ?", time.Now()).
			Where("user_id = ?", userID).
			Exec(ctx)
		return err
	})

	if err != nil {
		return 0, fmt.Errorf("failed to advance template rotation: %w", err)
	}
	return index, nil
}
