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

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	GetPointsInWindow(ctx context.Context, userID string, since time.Time) (int64, error)
	TopUsers(ctx context.Context, limit int) ([]*models.RankedUser, error)
	TopUsersSince(ctx context.Context, since time.Time, limit int) ([]*models.RankedUser, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(user).Exec(ctx)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	slog.Debug("UserRepository.GetByID called",
		slog.String("type", "db"),
		slog.String("operation", "GetByID"),
		slog.String("user_id", id))

	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("User not found in database",
				slog.String("type", "db"),
				slog.String("operation", "GetByID"),
				slog.String("user_id", id),
				slog.String("error", "sql.ErrNoRows"))
		} else {
			slog.Error("Database error when getting user",
				slog.String("type", "db"),
				slog.String("operation", "GetByID"),
				slog.String("user_id", id),
				slog.String("error", err.Error()))
		}
		return user, err
	}

	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(user).
		WherePK().
		Exec(ctx)
	return err
}

func (r *userRepository) GetPointsInWindow(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.NewSelect().
		Model((*models.PointEvent)(nil)).
		ColumnExpr("COALESCE(SUM(points), 0)").
		Where("user_id = ?", userID).
		Where("created_at >= ?", since).
		Scan(ctx, &total)
	return total, err
}

func (r *userRepository) TopUsers(ctx context.Context, limit int) ([]*models.RankedUser, error) {
	slog.Debug("UserRepository.TopUsers called",
		slog.String("type", "db"),
		slog.String("operation", "TopUsers"),
		slog.Int("limit", limit))

	var ranked []*models.RankedUser
	err := r.db.NewSelect().
		Model((*models.User)(nil)).
		ColumnExpr("u.id AS user_id").
		ColumnExpr("u.display_name").
		ColumnExpr("u.avatar_url").
		ColumnExpr("u.total_points AS points").
		ColumnExpr("u.last_active").
		Where("u.total_points > 0").
		OrderExpr("u.total_points DESC").
		Limit(limit).
		Scan(ctx, &ranked)

	if err != nil {
		slog.Error("Database error when getting top users",
			slog.String("type", "db"),
			slog.String("operation", "TopUsers"),
			slog.String("error", err.Error()))
		return nil, err
	}

	return ranked, nil
}

func (r *userRepository) TopUsersSince(ctx context.Context, since time.Time, limit int) ([]*models.RankedUser, error) {
	var ranked []*models.RankedUser
	err := r.db.NewSelect().
		Model((*models.PointEvent)(nil)).
		ColumnExpr("u.id AS user_id").
		ColumnExpr("u.display_name").
		ColumnExpr("u.avatar_url").
		ColumnExpr("SUM(pe.points) AS points").
		ColumnExpr("u.last_active").
		Join("JOIN users AS u ON u.id = pe.user_id").
		Where("pe.created_at >= ?", since).
		GroupExpr("u.id, u.display_name, u.avatar_url, u.last_active").
		Having("SUM(pe.points) > 0").
		OrderExpr("points DESC").
		Limit(limit).
		Scan(ctx, &ranked)

	if err != nil {
		slog.Error("Database error when getting windowed top users",
			slog.String("type", "db"),
			slog.String("operation", "TopUsersSince"),
			slog.String("error", err.Error()))
		return nil, err
	}

	return ranked, nil
}
