package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PointEvent is one row of the point ledger. The core only reads these;
// the categorization pipeline writes them.
type PointEvent struct {
	bun.BaseModel `bun:"table:point_events,alias:pe"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    string    `bun:"user_id,notnull"`
	Points    int64     `bun:"points,notnull"`
	Category  string    `bun:"category"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RankedUser is the scan target for leaderboard queries. It carries only the
// public aggregate fields; rank is filled in by the engine.
type RankedUser struct {
	UserID      string    `bun:"user_id"`
	DisplayName string    `bun:"display_name"`
	AvatarURL   string    `bun:"avatar_url"`
	Points      int64     `bun:"points"`
	LastActive  time.Time `bun:"last_active"`
}
