package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/uptrace/bun"
)

var ErrSessionNotFound = errors.New("session not found or expired")

type SessionRepository interface {
	GetUserID(ctx context.Context, token string) (string, error)
}

type sessionRepository struct {
	db *bun.DB
}

func NewSessionRepository(db *bun.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) GetUserID(ctx context.Context, token string) (string, error) {
	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("token = ?", token).
		Where("expires_at > ?", time.Now()).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", err
	}

	return session.UserID, nil
}
