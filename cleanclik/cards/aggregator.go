package cards

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
)

// ProfileSource supplies the user's current stats. Backed by the user
// repository in production.
type ProfileSource interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetPointsInWindow(ctx context.Context, userID string, since time.Time) (int64, error)
}

// AchievementSource supplies the user's most recent achievement title, or ""
// when they have none.
type AchievementSource interface {
	LatestAchievement(ctx context.Context, userID string) (string, error)
}

// Aggregator collects the stats bundle a card renders from and remembers the
// last successful snapshot per user so a request hitting connectivity loss
// can still freeze something current-ish into the queue.
type Aggregator struct {
	profiles     ProfileSource
	achievements AchievementSource
	lastGood     sync.Map // userID -> models.StatsSnapshot
	logger       *slog.Logger
}

func NewAggregator(profiles ProfileSource, achievements AchievementSource) *Aggregator {
	if profiles == nil {
		panic("profile source cannot be nil")
	}
	if achievements == nil {
		panic("achievement source cannot be nil")
	}
	return &Aggregator{
		profiles:     profiles,
		achievements: achievements,
		logger:       slog.With(slog.String("service", "stats_aggregator")),
	}
}

// Snapshot aggregates the user's current stats. On success the result is
// cached as the user's last-good snapshot.
func (a *Aggregator) Snapshot(ctx context.Context, userID string) (models.StatsSnapshot, error) {
	user, err := a.profiles.GetByID(ctx, userID)
	if err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	achievement, err := a.achievements.LatestAchievement(ctx, userID)
	if err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("failed to aggregate recent achievements: %w", err)
	}

	weekly, err := a.profiles.GetPointsInWindow(ctx, userID, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("failed to aggregate weekly points: %w", err)
	}

	snap := models.StatsSnapshot{
		UserID:            user.ID,
		DisplayName:       user.DisplayName,
		Points:            user.TotalPoints,
		Level:             models.LevelForPoints(user.TotalPoints),
		StreakDays:        user.CurrentStreak,
		RecentAchievement: achievement,
		ItemsCollected:    user.ItemsCollected,
		CO2SavedGrams:     user.CO2SavedGrams,
		WeeklyPoints:      weekly,
		CapturedAt:        time.Now(),
	}

	a.lastGood.Store(userID, snap)
	return snap, nil
}

// LastGood returns the most recent successful snapshot for the user, if any.
func (a *Aggregator) LastGood(userID string) (models.StatsSnapshot, bool) {
	v, ok := a.lastGood.Load(userID)
	if !ok {
		return models.StatsSnapshot{}, false
	}
	return v.(models.StatsSnapshot), true
}
