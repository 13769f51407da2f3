package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ActivityKind string

const (
	ActivityCleanup     ActivityKind = "cleanup"
	ActivityCategorized ActivityKind = "categorized"
	ActivityAchievement ActivityKind = "achievement"
	ActivityLevelUp     ActivityKind = "level_up"
)

type ActivityEvent struct {
	bun.BaseModel `bun:"table:activity_events,alias:ae"`

	ID        int64        `bun:"id,pk,autoincrement"`
	UserID    string       `bun:"user_id,notnull"`
	Kind      ActivityKind `bun:"kind,notnull"`
	Title     string       `bun:"title,notnull"`
	Points    int64        `bun:"points,notnull,default:0"`
	CreatedAt time.Time    `bun:"created_at,notnull,default:current_timestamp"`
}
