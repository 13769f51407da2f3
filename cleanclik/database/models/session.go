package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session maps a bearer token to an authenticated user. Sessions are issued
// by the identity collaborator; the core only reads them.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	Token     string    `bun:"token,pk"`
	UserID    string    `bun:"user_id,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
