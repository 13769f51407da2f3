package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CardJobStatus string

const (
	CardJobStatusQueued    CardJobStatus = "queued"
	CardJobStatusRendering CardJobStatus = "rendering"
	CardJobStatusReady     CardJobStatus = "ready"
	CardJobStatusFailed    CardJobStatus = "failed"
)

// StatsSnapshot is the frozen data bundle a queued card renders from. Once a
// job is enqueued the snapshot is never refreshed.
type StatsSnapshot struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	Points            int64     `json:"points"`
	Level             int       `json:"level"`
	StreakDays        int       `json:"streak_days"`
	RecentAchievement string    `json:"recent_achievement,omitempty"`
	ItemsCollected    int64     `json:"items_collected"`
	CO2SavedGrams     int64     `json:"co2_saved_grams"`
	WeeklyPoints      int64     `json:"weekly_points"`
	CapturedAt        time.Time `json:"captured_at"`
}

// CardJob is one durable record of the offline card queue. It survives
// process restart and is removed on a terminal state.
type CardJob struct {
	bun.BaseModel `bun:"table:card_jobs,alias:cj"`

	ID          int64         `bun:"id,pk,autoincrement"`
	JobID       string        `bun:"job_id,notnull,unique"`
	UserID      string        `bun:"user_id,notnull"`
	Template    string        `bun:"template,notnull"`
	Platform    string        `bun:"platform,notnull"`
	Status      CardJobStatus `bun:"status,notnull"`
	Snapshot    StatsSnapshot `bun:"snapshot,type:jsonb"`
	RetryCount  int           `bun:"retry_count,notnull,default:0"`
	NextRetryAt time.Time     `bun:"next_retry_at"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
