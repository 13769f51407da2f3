package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/sahilm/fuzzy"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrDataUnavailable = errors.New("leaderboard data unavailable")
	ErrInvalidPeriod   = errors.New("invalid leaderboard period")
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all-time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
	// SearchDepth bounds how far down the all-time ranking name search
	// reaches, independently of the page size callers can request.
	SearchDepth = 1000
)

// Entry is one ranked row of the leaderboard. Derived per query, never
// stored. Ties share a rank and the next distinct total continues at rank+1.
type Entry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Points      int64     `json:"points"`
	Level       int       `json:"level"`
	Rank        int       `json:"rank"`
	LastActive  time.Time `json:"last_active"`
}

// Ledger is the read-only view of the point ledger the engine ranks over.
type Ledger interface {
	TopUsers(ctx context.Context, limit int) ([]*models.RankedUser, error)
	TopUsersSince(ctx context.Context, since time.Time, limit int) ([]*models.RankedUser, error)
}

type Engine struct {
	ledger Ledger
	logger *slog.Logger
}

func NewEngine(ledger Ledger) *Engine {
	if ledger == nil {
		panic("point ledger cannot be nil")
	}
	return &Engine{
		ledger: ledger,
		logger: slog.With(slog.String("service", "leaderboard")),
	}
}

// GetLeaderboard returns at most limit ranked entries for the period. It
// fails closed on missing caller identity and fails fast when the ledger is
// unreachable rather than fabricating a partial ranking.
func (e *Engine) GetLeaderboard(ctx context.Context, callerID string, period Period, limit int) ([]Entry, error) {
	if callerID == "" {
		return nil, ErrAccessDenied
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start := time.Now()

	ranked, err := e.fetch(ctx, period, limit)
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			return nil, err
		}
		e.logger.Error("Point ledger unreachable",
			slog.String("period", string(period)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	entries := rank(ranked)

	e.logger.Debug("Leaderboard computed",
		slog.String("period", string(period)),
		slog.Int("entries", len(entries)),
		slog.Duration("took", time.Since(start)))

	return entries, nil
}

// Search fuzzy-matches display names over the top SearchDepth rows of the
// all-time ranking and returns the matched entries with their ranks intact.
// Users ranked below SearchDepth are not findable by name.
func (e *Engine) Search(ctx context.Context, callerID string, query string, limit int) ([]Entry, error) {
	if callerID == "" {
		return nil, ErrAccessDenied
	}
	if query == "" {
		return nil, nil
	}

	ranked, err := e.ledger.TopUsers(ctx, SearchDepth)
	if err != nil {
		e.logger.Error("Point ledger unreachable",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	entries := rank(ranked)

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.DisplayName
	}

	matches := fuzzy.Find(query, names)
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}

	results := make([]Entry, 0, limit)
	for _, match := range matches[:limit] {
		results = append(results, entries[match.Index])
	}
	return results, nil
}

func (e *Engine) fetch(ctx context.Context, period Period, limit int) ([]*models.RankedUser, error) {
	switch period {
	case PeriodAllTime, "":
		return e.ledger.TopUsers(ctx, limit)
	case PeriodDaily:
		return e.ledger.TopUsersSince(ctx, time.Now().Add(-24*time.Hour), limit)
	case PeriodWeekly:
		return e.ledger.TopUsersSince(ctx, time.Now().Add(-7*24*time.Hour), limit)
	case PeriodMonthly:
		return e.ledger.TopUsersSince(ctx, time.Now().Add(-30*24*time.Hour), limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// rank assigns dense 1-based ranks over rows already ordered by points
// descending. Rows with points <= 0 are dropped as a safety net; the ledger
// queries already filter them.
func rank(ranked []*models.RankedUser) []Entry {
	entries := make([]Entry, 0, len(ranked))
	current := 0
	var prevPoints int64 = -1

	for _, row := range ranked {
		if row.Points <= 0 {
			continue
		}
		if row.Points != prevPoints {
			current++
			prevPoints = row.Points
		}
		entries = append(entries, Entry{
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			AvatarURL:   row.AvatarURL,
			Points:      row.Points,
			Level:       models.LevelForPoints(row.Points),
			Rank:        current,
			LastActive:  row.LastActive,
		})
	}
	return entries
}

// ValidPeriod reports whether s names a supported leaderboard period.
func ValidPeriod(s string) bool {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime, "":
		return true
	}
	return false
}
