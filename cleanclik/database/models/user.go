package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string `bun:"id,pk"`
	Username    string `bun:"username,notnull"`
	DisplayName string `bun:"display_name,notnull"`
	AvatarURL   string `bun:"avatar_url"`

	// Points and progression
	TotalPoints int64 `bun:"total_points,notnull,default:0"`
	Level       int   `bun:"level,notnull,default:1"`

	// Streaks
	CurrentStreak int       `bun:"current_streak,notnull,default:0"`
	LongestStreak int       `bun:"longest_streak,notnull,default:0"`
	LastActive    time.Time `bun:"last_active,notnull"`

	// Environmental impact
	ItemsCollected int64 `bun:"items_collected,notnull,default:0"`
	CO2SavedGrams  int64 `bun:"co2_saved_grams,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// levelThresholds holds the minimum total points for each level, 1-based.
var levelThresholds = []int64{0, 100, 300, 600, 1000, 1500, 2500, 4000, 6000, 10000}

// LevelForPoints derives a user's level from their total points.
func LevelForPoints(points int64) int {
	level := 1
	for i, threshold := range levelThresholds {
		if points < threshold {
			break
		}
		level = i + 1
	}
	return level
}

// NextLevelThreshold returns the points required for the next level, or -1
// when the user is already at the top level.
func NextLevelThreshold(points int64) int64 {
	for _, threshold := range levelThresholds {
		if points < threshold {
			return threshold
		}
	}
	return -1
}
