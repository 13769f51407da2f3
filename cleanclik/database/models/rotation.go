package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TemplateRotation tracks which template kind a user's next unthemed card
// should use. Persisted so rotation survives restarts and stays consistent
// across concurrent sessions for the same user.
type TemplateRotation struct {
	bun.BaseModel `bun:"table:template_rotations,alias:tr"`

	UserID    string    `bun:"user_id,pk"`
	NextIndex int       `bun:"next_index,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
